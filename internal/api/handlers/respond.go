package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"shiptrack-api-server/internal/api/middleware"
	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/shipment"
)

// Uploader stores a blob and returns its public URL.
type Uploader interface {
	UploadFile(ctx context.Context, r io.Reader, key, contentType string) (string, error)
}

func statusFor(code apperrors.Code) int {
	switch code {
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeInvalidTransition, apperrors.CodeConflict:
		return http.StatusConflict
	case apperrors.CodeValidation:
		return http.StatusBadRequest
	case apperrors.CodeForbidden:
		return http.StatusForbidden
	case apperrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.CodeTransport:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err using the error taxonomy. Anything outside it is
// reported as an internal error without leaking the cause.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var ae *apperrors.Error
	if !errors.As(err, &ae) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	body := gin.H{"error": ae.Message, "code": ae.Code}
	if len(ae.Details) > 0 {
		body["details"] = ae.Details
	}
	if ae.Retryable {
		body["retryable"] = true
	}
	c.JSON(statusFor(ae.Code), body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperrors.CodeValidation})
}

// actorFrom builds the caller from the claims Authenticate stored.
func actorFrom(c *gin.Context) shipment.Actor {
	return shipment.Actor{
		ID:   c.GetString(middleware.KeyUserID),
		Role: c.GetString(middleware.KeyUserRole),
	}
}
