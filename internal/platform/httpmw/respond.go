package httpmw

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/protocol-bank/wallet-onboarding/internal/apperr"
)

// WriteError maps an error to its taxonomy status code and writes a
// JSON body carrying the request ID, instead of leaking the raw error to
// the caller. Anything not wrapped in *apperr.Error is logged in full and
// reported as a generic internal error.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())

	var appErr *apperr.Error
	status := http.StatusInternalServerError
	message := "internal server error"

	if errors.As(err, &appErr) {
		message = appErr.Message
		switch appErr.Code {
		case apperr.CodeInvalidInput:
			status = http.StatusBadRequest
		case apperr.CodeDocumentTooLarge:
			status = http.StatusRequestEntityTooLarge
		case apperr.CodeWalletNotFound:
			status = http.StatusNotFound
		case apperr.CodeWalletAlreadyExists:
			status = http.StatusConflict
		case apperr.CodeWalletGenerationFail, apperr.CodeMnemonicSecurity, apperr.CodePublishFailed, apperr.CodeInternal:
			status = http.StatusInternalServerError
		}
	} else {
		log.Error().Err(err).Str("request_id", requestID).Msg("unhandled error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":      message,
		"request_id": requestID,
	})
}
