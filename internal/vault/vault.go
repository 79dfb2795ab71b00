// Package vault stores the vision provider credential at rest, encrypted,
// behind a storage-agnostic interface.
package vault

import "errors"

// Sentinel errors. Callers distinguish "nothing stored" from a broken
// storage layer, which is reported as a wrapped non-sentinel error.
var (
	ErrNoCredential = errors.New("no credential stored")
	ErrEmptySecret  = errors.New("credential must not be empty")
	ErrUnavailable  = errors.New("secure storage is unavailable")
)

// Vault stores exactly one secret under a single logical slot. Storing a
// new value supersedes the old one.
type Vault interface {
	// IsAvailable probes the storage mechanism with a write-then-delete
	// of a throwaway value. A false result means the mechanism itself is
	// unusable, which is distinct from no credential being stored.
	IsAvailable() bool

	// Store validates the secret's format and persists it atomically.
	Store(secret string) error

	// Retrieve returns the stored secret, ErrNoCredential when nothing
	// is stored, or a wrapped storage error.
	Retrieve() (string, error)

	// Delete removes the stored secret. Deleting a non-existent
	// credential succeeds.
	Delete() error

	// HasCredential is derived from Retrieve success, not a separate
	// existence check.
	HasCredential() bool
}

// Mask returns a loggable form of a secret: the vendor prefix and the
// last four characters. The full value never reaches logs.
func Mask(secret string) string {
	if len(secret) <= 12 {
		return "****"
	}
	return secret[:7] + "…" + secret[len(secret)-4:]
}
