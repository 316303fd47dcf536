// Package response centralizes the JSON envelope every control-plane
// handler writes.
package response

import "github.com/gin-gonic/gin"

func OK(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": code, "message": message})
}
