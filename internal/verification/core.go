package verification

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/protocol-bank/wallet-onboarding/internal/apperr"
	"github.com/protocol-bank/wallet-onboarding/internal/domain"
	"github.com/protocol-bank/wallet-onboarding/internal/eventbus"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/metrics"
)

// verificationRepo is the slice of Repository the core needs; defined here
// so tests can substitute an in-memory fake instead of a real database.
type verificationRepo interface {
	GetByUserAndNetwork(ctx context.Context, userID string, network domain.Network) (*Verification, error)
	Insert(ctx context.Context, v *Verification) error
	MarkVerified(ctx context.Context, id uuid.UUID, verifiedAt time.Time) error
}

// publisher is the slice of eventbus.Producer the core needs.
type publisher interface {
	PublishWithRetry(ctx context.Context, topic string, event eventbus.Event, eventType string, at time.Time, extraHeaders map[string]string) error
}

// Core orchestrates VerifyUser: input validation, idempotent short-circuit
// on an already-verified row, persistence, the simulated processing delay,
// and best-effort async publish of UserVerifiedEvent.
type Core struct {
	repo             verificationRepo
	producer         publisher
	topic            string
	delay            time.Duration
	maxDocumentBytes int64
	sem              chan struct{}
}

func NewCore(repo verificationRepo, producer publisher, topic string, delaySeconds, maxDocumentSizeMB, maxConcurrent int) *Core {
	return &Core{
		repo:             repo,
		producer:         producer,
		topic:            topic,
		delay:            time.Duration(delaySeconds) * time.Second,
		maxDocumentBytes: int64(maxDocumentSizeMB) * 1024 * 1024,
		sem:              make(chan struct{}, maxConcurrent),
	}
}

// VerifyUser is the component's single operation. Concurrent calls beyond
// the configured max_concurrent_verifications queue on the semaphore.
func (c *Core) VerifyUser(ctx context.Context, userID string, networkRaw string, document []byte) (*Verification, error) {
	network, err := c.validateInput(userID, networkRaw, document)
	if err != nil {
		metrics.VerificationAttemptsTotal.WithLabelValues(string(network), "invalid_input").Inc()
		return nil, err
	}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	start := time.Now()
	v, err := c.verifyLocked(ctx, userID, network, document)
	metrics.VerificationDuration.WithLabelValues(string(network)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.VerificationAttemptsTotal.WithLabelValues(string(network), "failed").Inc()
		return nil, err
	}
	metrics.VerificationAttemptsTotal.WithLabelValues(string(network), "succeeded").Inc()
	return v, nil
}

func (c *Core) validateInput(userID, networkRaw string, document []byte) (domain.Network, error) {
	if len(userID) == 0 || len(userID) > 255 {
		return "", apperr.New(apperr.CodeInvalidInput, "user_id must be 1..255 bytes")
	}

	network, err := domain.ParseNetwork(networkRaw)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInvalidInput, err.Error(), err)
	}

	if int64(len(document)) > c.maxDocumentBytes {
		return network, apperr.New(apperr.CodeDocumentTooLarge, "document exceeds max_document_size_mb")
	}
	return network, nil
}

func (c *Core) verifyLocked(ctx context.Context, userID string, network domain.Network, document []byte) (*Verification, error) {
	existing, err := c.repo.GetByUserAndNetwork(ctx, userID, network)
	if err != nil {
		return nil, fmt.Errorf("lookup existing verification: %w", err)
	}
	if existing != nil && existing.Status == StatusVerified {
		return existing, nil
	}

	hash := sha256.Sum256(document)
	v := &Verification{
		UserID:       userID,
		Network:      network,
		DocumentHash: hash,
		Status:       StatusPending,
		CreatedAt:    time.Now(),
	}
	if err := c.repo.Insert(ctx, v); err != nil {
		return nil, fmt.Errorf("persist pending verification: %w", err)
	}

	select {
	case <-time.After(c.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	verifiedAt := time.Now()
	v.MarkVerified(verifiedAt)
	if err := c.repo.MarkVerified(ctx, v.ID, verifiedAt); err != nil {
		return nil, fmt.Errorf("persist verified status: %w", err)
	}

	c.publishAsync(v)
	return v, nil
}

// publishAsync fires UserVerifiedEvent without making the caller wait.
// Exhausted retries are logged and swallowed — the verification itself
// already succeeded from the API's perspective.
func (c *Core) publishAsync(v *Verification) {
	event := eventbus.NewUserVerifiedEvent(v.UserID, v.Network, *v.VerifiedAt)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.producer.PublishWithRetry(ctx, c.topic, event, eventbus.EventTypeUserVerified, *v.VerifiedAt, nil); err != nil {
			log.Error().Err(err).Str("user_id", v.UserID).Str("network", string(v.Network)).Msg("failed to publish user.verified after retries")
		}
	}()
}
