package handlers

import "github.com/gin-gonic/gin"

// HealthCheck returns basic liveness only, no system details.
func HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "healthy",
		})
	}
}
