package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"storefront/internal/apperror"
	"storefront/internal/logger"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string         `json:"error"`
	Code    apperror.Kind  `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Warn("failed to encode response", zap.Error(err))
	}
}

func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindUnauthorized:
		return http.StatusUnauthorized
	case apperror.KindForbidden:
		return http.StatusForbidden
	case apperror.KindInsufficientStock, apperror.KindInvalidTransition, apperror.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto the JSON error envelope. Unclassified errors are
// logged and surfaced as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) || statusFor(appErr.Kind) == http.StatusInternalServerError {
		logger.FromCtx(r.Context()).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: "internal server error",
			Code:  apperror.KindStoreFailure,
		})
		return
	}

	writeJSON(w, statusFor(appErr.Kind), errorResponse{
		Error:   appErr.Error(),
		Code:    appErr.Kind,
		Details: appErr.Details,
	})
}

// decodeJSON reads a single JSON document from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.Validation("request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperror.Validation("request body too large")
		}
		return apperror.Validation("invalid request body: %v", err)
	}
	return nil
}
