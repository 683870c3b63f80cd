package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/and161185/signdesk/internal/errs"
	"github.com/and161185/signdesk/internal/workflow"
)

// statusOf maps domain sentinels to HTTP status codes. Unknown errors fall
// through to 500.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrInvalidGeometry),
		errors.Is(err, errs.ErrInvalidAssignment),
		errors.Is(err, errs.ErrEmptyInput),
		errors.Is(err, errs.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errs.ErrDocumentLocked),
		errors.Is(err, errs.ErrWrongSigner),
		errors.Is(err, errs.ErrOrderViolation),
		errors.Is(err, errs.ErrFieldSigned),
		errors.Is(err, errs.ErrSignerTerminal),
		errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errs.ErrPersistence):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a domain error. A write-behind persistence failure
// still carries the applied document state, so the client gets the snapshot
// alongside the error.
func writeError(c *gin.Context, err error) {
	var pe *workflow.PersistError
	if errors.As(err, &pe) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "state applied but not persisted",
			"document": pe.Snapshot,
		})
		return
	}
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}
