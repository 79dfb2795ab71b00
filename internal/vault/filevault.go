package vault

import (
	"crypto/rand"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	credentialFile = "credential.enc"
	keyFile        = "credential.key"
	probeFile      = "credential.probe"

	keySize   = 32
	nonceSize = 24
)

// FileVault is an encrypted-file Vault. The credential is sealed with
// NaCl secretbox under a machine-local key created on first use. Writes
// go through a temp file and an atomic rename, so there is no window
// where two values coexist under the slot.
type FileVault struct {
	dir string
	key [keySize]byte
}

// NewFileVault opens (creating if necessary) a vault rooted at dir.
func NewFileVault(dir string) (*FileVault, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	v := &FileVault{dir: dir}
	if err := v.loadOrCreateKey(); err != nil {
		return nil, err
	}
	return v, nil
}

// loadOrCreateKey reads the sealing key, generating one on first use.
func (v *FileVault) loadOrCreateKey() error {
	path := filepath.Join(v.dir, keyFile)

	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != keySize {
			return fmt.Errorf("vault key file is corrupt (%d bytes)", len(data))
		}
		copy(v.key[:], data)
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read vault key: %w", err)
	}

	if _, err := io.ReadFull(rand.Reader, v.key[:]); err != nil {
		return fmt.Errorf("failed to generate vault key: %w", err)
	}
	if err := os.WriteFile(path, v.key[:], 0600); err != nil {
		return fmt.Errorf("failed to write vault key: %w", err)
	}
	return nil
}

// seal encrypts a plaintext with a fresh random nonce.
func (v *FileVault) seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &v.key), nil
}

// open decrypts a sealed blob.
func (v *FileVault) open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("sealed credential is truncated")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &v.key)
	if !ok {
		return nil, fmt.Errorf("failed to decrypt credential")
	}
	return plaintext, nil
}

// writeSealed writes a sealed blob to name via temp file + atomic rename.
func (v *FileVault) writeSealed(name string, sealed []byte) error {
	path := filepath.Join(v.dir, name)

	tmp, err := os.CreateTemp(v.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set credential permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close credential file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace credential: %w", err)
	}
	return nil
}

// IsAvailable probes the storage path with a write-then-delete of a
// throwaway value against a sibling file.
func (v *FileVault) IsAvailable() bool {
	sealed, err := v.seal([]byte("probe"))
	if err != nil {
		return false
	}
	if err := v.writeSealed(probeFile, sealed); err != nil {
		return false
	}

	path := filepath.Join(v.dir, probeFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if _, err := v.open(data); err != nil {
		return false
	}
	return os.Remove(path) == nil
}

// Store validates the secret's format and persists it, superseding any
// previous value.
func (v *FileVault) Store(secret string) error {
	if err := ValidateFormat(secret); err != nil {
		return err
	}

	sealed, err := v.seal([]byte(secret))
	if err != nil {
		return err
	}
	if err := v.writeSealed(credentialFile, sealed); err != nil {
		return err
	}

	log.Printf("🔑 Credential stored (%s)", Mask(secret))
	return nil
}

// Retrieve returns the stored secret.
func (v *FileVault) Retrieve() (string, error) {
	data, err := os.ReadFile(filepath.Join(v.dir, credentialFile))
	if os.IsNotExist(err) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}

	plaintext, err := v.open(data)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Delete removes the stored secret; deleting a non-existent credential
// succeeds.
func (v *FileVault) Delete() error {
	err := os.Remove(filepath.Join(v.dir, credentialFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// HasCredential reports whether Retrieve would succeed.
func (v *FileVault) HasCredential() bool {
	_, err := v.Retrieve()
	return err == nil
}
