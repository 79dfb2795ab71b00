package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/hoopscore/scorelens/internal/vault"
)

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

// GetCredential reports whether a key is stored and its masked form.
// The full value never leaves the vault.
func GetCredential(v vault.Vault) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret, err := v.Retrieve()
		if errors.Is(err, vault.ErrNoCredential) {
			c.JSON(200, gin.H{"configured": false})
			return
		}
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to read credential storage"})
			return
		}
		c.JSON(200, gin.H{
			"configured": true,
			"masked":     vault.Mask(secret),
		})
	}
}

// PutCredential validates and stores a new key, superseding any previous
// one. The response echoes only the masked form.
func PutCredential(v vault.Vault) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "Invalid request body"})
			return
		}

		if err := v.Store(req.APIKey); err != nil {
			var ferr *vault.FormatError
			switch {
			case errors.Is(err, vault.ErrEmptySecret):
				c.JSON(400, gin.H{"error": "API key must not be empty"})
			case errors.As(err, &ferr):
				c.JSON(400, gin.H{"error": "API key format is invalid: " + ferr.Reason})
			default:
				c.JSON(500, gin.H{"error": "Failed to store the API key"})
			}
			return
		}

		c.JSON(200, gin.H{
			"message": "API key stored",
			"masked":  vault.Mask(req.APIKey),
		})
	}
}

// DeleteCredential removes the stored key. Deleting when nothing is
// stored still succeeds.
func DeleteCredential(v vault.Vault) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := v.Delete(); err != nil {
			c.JSON(500, gin.H{"error": "Failed to delete the API key"})
			return
		}
		c.JSON(200, gin.H{"message": "API key deleted"})
	}
}

// CredentialAvailability probes the storage mechanism itself, which is
// distinct from whether a key is stored.
func CredentialAvailability(v vault.Vault) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{
			"available":  v.IsAvailable(),
			"configured": v.HasCredential(),
		})
	}
}
