// Package handlers wires the HTTP surface: public product search and cart
// comparison under /api/v1, authenticated saved carts, and the internal
// ingestion admin endpoints. Handlers validate input and translate service
// errors to status codes; all domain logic lives in the service packages.
package handlers

import "github.com/gin-gonic/gin"

// ErrorResponse is the envelope for every non-2xx body. Code is a stable
// machine-readable identifier; Error is the human-readable message.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// abortError writes the error envelope and stops the handler chain.
func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Code: code})
}
