package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// errorResponse returns an error payload with the given status code.
func errorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"error": message,
	})
}

// successResponse returns a 200 payload.
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// notFoundResponse returns a 404 for a missing resource.
func notFoundResponse(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, gin.H{
		"error": resource + " not found",
	})
}

// badRequestResponse returns a 400 response.
func badRequestResponse(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": message,
	})
}
