package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hoopscore/scorelens/internal/history"
)

// GetHistory lists recent analysis attempts, newest first.
func GetHistory(m *history.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		entries, err := m.List(limit)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to read analysis history"})
			return
		}
		c.JSON(200, gin.H{
			"entries": entries,
			"count":   len(entries),
		})
	}
}

// ClearHistory deletes all recorded attempts.
func ClearHistory(m *history.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := m.Clear()
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to clear analysis history"})
			return
		}
		c.JSON(200, gin.H{"message": "Analysis history cleared", "deleted": n})
	}
}
