package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/hoopscore/scorelens/internal/usage"
)

// GetUsage returns the current window counts, limits, and advisory state.
func GetUsage(l *usage.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, l.Status())
	}
}

// UpdateLimits replaces the call ceilings. Values are normalized so the
// per-minute <= per-hour <= per-day ordering always holds. Changes go
// through the override file when one is configured, so an explicit
// change survives a restart instead of being clobbered by a stale file.
func UpdateLimits(l *usage.Limiter, lf *usage.LimitsFile) gin.HandlerFunc {
	return func(c *gin.Context) {
		var limits usage.Limits
		if err := c.ShouldBindJSON(&limits); err != nil {
			c.JSON(400, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}

		if limits.PerMinute < 1 || limits.PerHour < 1 || limits.PerDay < 1 {
			c.JSON(400, gin.H{"error": "All limits must be positive"})
			return
		}
		if limits.PerDay > 100000 {
			c.JSON(400, gin.H{"error": "Per-day limit cannot exceed 100,000"})
			return
		}

		var err error
		if lf != nil {
			err = lf.Update(limits)
		} else {
			err = l.SetLimits(limits)
		}
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to save limits: " + err.Error()})
			return
		}

		c.JSON(200, gin.H{
			"message": "Usage limits updated",
			"limits":  l.Limits(),
		})
	}
}

// ResetUsage clears all recorded call events.
func ResetUsage(l *usage.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := l.Reset(); err != nil {
			c.JSON(500, gin.H{"error": "Failed to reset usage: " + err.Error()})
			return
		}
		c.JSON(200, gin.H{"message": "Usage counters reset", "status": l.Status()})
	}
}

// ResetExpiredUsage prunes only events past the retention horizon. Events
// still inside the day window keep counting toward the day limit.
func ResetExpiredUsage(l *usage.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := l.ResetExpired(); err != nil {
			c.JSON(500, gin.H{"error": "Failed to prune usage: " + err.Error()})
			return
		}
		c.JSON(200, gin.H{"message": "Expired usage events pruned", "status": l.Status()})
	}
}
