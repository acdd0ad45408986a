package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/ledger-service/ledger_service/internal/domain/errors"
)

// ErrorResponse is the envelope every error leaves the API in
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SuccessResponse wraps successful payloads
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, ErrorResponse{Code: code, Message: message, Details: details})
}

func respondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, "INVALID_REQUEST", message, nil)
}

// respondDomainError maps the error taxonomy onto HTTP statuses. Busy
// deliberately maps to 503 with Retry-After: the caller did nothing
// wrong, the wallet is just contended.
func respondDomainError(c *gin.Context, err error) {
	var domainErr *apperrors.DomainError
	code := apperrors.GetErrorCode(err)
	message := err.Error()
	var details map[string]interface{}
	if errors.As(err, &domainErr) {
		message = domainErr.Message
		details = domainErr.Details
	}

	switch {
	case apperrors.IsDuplicateReference(err):
		respondError(c, http.StatusConflict, code, message, details)
	case apperrors.IsAlreadyExists(err):
		respondError(c, http.StatusConflict, code, message, details)
	case apperrors.IsInsufficientBalance(err):
		respondError(c, http.StatusUnprocessableEntity, code, message, details)
	case apperrors.IsInvalidAmount(err), errors.Is(err, apperrors.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, code, message, details)
	case apperrors.IsNotFound(err):
		respondError(c, http.StatusNotFound, code, message, details)
	case apperrors.IsBusy(err):
		c.Header("Retry-After", "1")
		respondError(c, http.StatusServiceUnavailable, code, message, details)
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
	}
}

// parseUUIDParam parses a UUID path parameter
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondBadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// parseUUID parses a UUID from a request body field
func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// queryInt reads an integer query parameter, falling back to def
func queryInt(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getRequestID(c *gin.Context) string {
	return c.GetString("request_id")
}
