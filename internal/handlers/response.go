package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scriptdeck/greenlight-backend/internal/pkg/apperr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Size    int    `json:"size,omitempty"`
	Limit   int    `json:"limit,omitempty"`
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

// RespondAppError maps a classified error onto its HTTP status, keeping
// the size/limit detail for payload_too_large so the caller knows how
// much to trim.
func RespondAppError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	out := APIError{
		Message: err.Error(),
		Code:    string(kind),
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind == apperr.KindPayloadTooLarge {
		out.Size = ae.Size
		out.Limit = ae.Limit
	}
	c.JSON(apperr.HTTPStatus(err), ErrorEnvelope{Error: out})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
