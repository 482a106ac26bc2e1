package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vaultsim/vaultd/internal/service"
	"github.com/vaultsim/vaultd/internal/storage"
	"github.com/vaultsim/vaultd/internal/txstate"
	"github.com/vaultsim/vaultd/internal/validation"
)

type errorResponse struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Fields  []validation.FieldError `json:"fields,omitempty"`
}

func writeError(c *gin.Context, status int, code, message string, fields []validation.FieldError) {
	c.JSON(status, errorResponse{Code: code, Message: message, Fields: fields})
}

// writeServiceError maps the error taxonomy onto stable HTTP codes.
// Internal error text never reaches the caller.
func writeServiceError(c *gin.Context, logger *slog.Logger, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", verr.Error(), nil)
		return
	}
	var insufficient *storage.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		writeError(c, http.StatusBadRequest, "INSUFFICIENT_BALANCE", insufficient.Error(), nil)
		return
	}
	var conflict *storage.StateConflictError
	if errors.As(err, &conflict) {
		writeError(c, http.StatusConflict, "CONFLICT", conflict.Error(), nil)
		return
	}
	var invalid *txstate.InvalidTransitionError
	if errors.As(err, &invalid) {
		writeError(c, http.StatusConflict, "CONFLICT", invalid.Error(), nil)
		return
	}
	if errors.Is(err, storage.ErrDuplicateExternalID) {
		writeError(c, http.StatusConflict, "CONFLICT", "external transaction id already used", nil)
		return
	}
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrWalletNotFound) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
		return
	}
	logger.Error("request failed", "error", err)
	writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
}
