package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentra-io/sentra-backend/internal/keyauth"
)

// ErrorResponse is the stable shape of every terminal error. Internal
// detail never reaches the caller verbatim.
type ErrorResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Success: false, Message: message, Code: code})
}

// authFailure maps an authentication error to its response. Verdicts are
// 401 with the taxonomy code; infrastructure trouble is 503 and says
// nothing about the credential.
func authFailure(c *gin.Context, err error) {
	if code := keyauth.FailureCode(err); code != "" {
		abortError(c, http.StatusUnauthorized, code, authMessage(code))
		return
	}
	if errors.Is(err, keyauth.ErrKeyStoreUnavailable) {
		abortError(c, http.StatusServiceUnavailable, "store_unavailable", "Authentication backend unavailable")
		return
	}
	abortError(c, http.StatusUnauthorized, "unauthorized", "Authentication failed")
}

func authMessage(code string) string {
	switch code {
	case "invalid_format":
		return "API credential has invalid format"
	case "not_found":
		return "API key not found or revoked"
	case "expired":
		return "API credential expired"
	case "invalid_signature":
		return "API credential signature is invalid"
	}
	return "Authentication failed"
}
