package handlers

import (
	"net/http"

	"github.com/Antonioedwardsd/devlab/internal/middleware"

	"github.com/gin-gonic/gin"
)

func Welcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to To-Do Backend!"})
}

// Protected echoes the verified token claims back to the caller.
func Protected(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "You are authenticated!",
		"user":    claims,
	})
}
