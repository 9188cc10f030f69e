package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/protocol-bank/wallet-onboarding/internal/apperr"
	"github.com/protocol-bank/wallet-onboarding/internal/domain"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/cache"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/httpmw"
	"github.com/protocol-bank/wallet-onboarding/internal/wallet"
)

type WalletHandlers struct {
	core  *wallet.Core
	cache *cache.Cache
}

func NewWalletHandlers(core *wallet.Core, c *cache.Cache) *WalletHandlers {
	return &WalletHandlers{core: core, cache: c}
}

type walletResponse struct {
	UserID        string  `json:"user_id"`
	Network       string  `json:"network"`
	WalletAddress string  `json:"wallet_address"`
	CreatedAt     string  `json:"created_at"`
}

// HandleGetWallet implements GET /wallet/{user_id}?network=...
func (h *WalletHandlers) HandleGetWallet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	networkRaw := r.URL.Query().Get("network")

	network, err := domain.ParseNetwork(networkRaw)
	if err != nil {
		httpmw.WriteError(w, r, apperr.Wrap(apperr.CodeInvalidInput, err.Error(), err))
		return
	}

	wlt, err := h.core.GetWallet(r.Context(), userID, network)
	if err != nil {
		httpmw.WriteError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(walletResponse{
		UserID:        wlt.UserID,
		Network:       string(wlt.Network),
		WalletAddress: wlt.WalletAddress,
		CreatedAt:     wlt.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// HandleCacheStats implements GET /internal/cache/stats, an operational
// introspection endpoint for the shared cache's current entry count, which
// includes both wallet lookups and the allocator's next-index entries.
func (h *WalletHandlers) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]int{
		"entries": h.cache.Len(),
	})
}
