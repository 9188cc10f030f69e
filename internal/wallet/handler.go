package wallet

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"

	"github.com/protocol-bank/wallet-onboarding/internal/apperr"
	"github.com/protocol-bank/wallet-onboarding/internal/domain"
	"github.com/protocol-bank/wallet-onboarding/internal/eventbus"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/metrics"
)

// dedupCapacity bounds the recent-event LRU to a fixed capacity instead of
// an unbounded set trimmed on overflow; the database's (user_id, network)
// unique constraint remains the durable guarantee either way.
const dedupCapacity = 10000

// walletCreator is the slice of Core the handler needs; defined here so
// tests can substitute a fake instead of a real Core.
type walletCreator interface {
	CreateWallet(ctx context.Context, userID string, network domain.Network) (*Wallet, error)
}

// Handler is the idempotent sink for user.verified records: a bounded
// recent-dedup filter backed by WalletCore.CreateWallet's own
// repository-level idempotence.
type Handler struct {
	processed *lru.Cache
	core      walletCreator
}

func NewHandler(core walletCreator) (*Handler, error) {
	processed, err := lru.New(dedupCapacity)
	if err != nil {
		return nil, fmt.Errorf("create dedup cache: %w", err)
	}
	return &Handler{processed: processed, core: core}, nil
}

func eventKey(e eventbus.UserVerifiedEvent) string {
	return fmt.Sprintf("%s:%s:%d", e.UserID, e.Network, e.Timestamp.Unix())
}

// HandleUserVerified is the RecordHandler wired into the Consumer. It must
// be safe to call multiple times for the same event.
func (h *Handler) HandleUserVerified(ctx context.Context, event eventbus.UserVerifiedEvent) error {
	key := eventKey(event)

	if h.processed.Contains(key) {
		metrics.EventDedupHitTotal.Inc()
		log.Info().Str("event_key", key).Msg("duplicate user.verified, skipping")
		return nil
	}
	h.processed.Add(key, struct{}{})

	_, err := h.core.CreateWallet(ctx, event.UserID, event.Network)
	if err != nil {
		if apperr.Is(err, apperr.CodeWalletAlreadyExists) {
			return nil
		}
		// Allow a retry to re-process this event.
		h.processed.Remove(key)
		return fmt.Errorf("create_wallet for %s/%s: %w", event.UserID, event.Network, err)
	}
	return nil
}
