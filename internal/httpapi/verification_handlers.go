// Package httpapi wires chi routes for both services on top of the
// platform httpmw stack.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/protocol-bank/wallet-onboarding/internal/apperr"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/httpmw"
	"github.com/protocol-bank/wallet-onboarding/internal/verification"
)

type VerificationHandlers struct {
	core *verification.Core
}

func NewVerificationHandlers(core *verification.Core) *VerificationHandlers {
	return &VerificationHandlers{core: core}
}

type verifyRequest struct {
	UserID   string `json:"user_id"`
	Network  string `json:"network"`
	Document string `json:"document"`
}

type verifyResponse struct {
	Message        string `json:"message"`
	VerificationID string `json:"verification_id"`
	Status         string `json:"status"`
}

// HandleVerify implements POST /verify.
func (h *VerificationHandlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpmw.WriteError(w, r, apperr.Wrap(apperr.CodeInvalidInput, "malformed request body", err))
		return
	}

	document, err := base64.StdEncoding.DecodeString(req.Document)
	if err != nil {
		httpmw.WriteError(w, r, apperr.Wrap(apperr.CodeInvalidInput, "document is not valid base64", err))
		return
	}

	v, err := h.core.VerifyUser(r.Context(), req.UserID, req.Network, document)
	if err != nil {
		httpmw.WriteError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", middleware.GetReqID(r.Context()))
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(verifyResponse{
		Message:        "verification accepted",
		VerificationID: v.ID.String(),
		Status:         string(v.Status),
	})
}
