package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yungbote/intentbase-backend/internal/pkg/errors"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondServiceError maps the service layer's sentinel errors onto HTTP
// statuses.
func RespondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		RespondError(c, http.StatusBadRequest, "validation_failed", err)
	case errors.Is(err, apperrors.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, apperrors.ErrDuplicateTaxonomy):
		RespondError(c, http.StatusConflict, "duplicate_taxonomy", err)
	case errors.Is(err, apperrors.ErrConflict):
		RespondError(c, http.StatusConflict, "conflict", err)
	case errors.Is(err, apperrors.ErrExternalStore):
		RespondError(c, http.StatusBadGateway, "external_store", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
