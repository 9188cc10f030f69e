package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/protocol-bank/wallet-onboarding/internal/apperr"
	"github.com/protocol-bank/wallet-onboarding/internal/domain"
	"github.com/protocol-bank/wallet-onboarding/internal/eventbus"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/cache"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/metrics"
)

// walletRepo is the slice of Repository the core needs; defined here so
// tests can substitute an in-memory fake instead of a real database.
type walletRepo interface {
	GetByUserAndNetwork(ctx context.Context, userID string, network domain.Network) (*Wallet, error)
	Insert(ctx context.Context, w *Wallet) error
	UpdateLastAccessed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// indexAllocator is the slice of Allocator the core needs.
type indexAllocator interface {
	NextIndex(ctx context.Context, network domain.Network) (uint32, error)
}

// publisher is the slice of eventbus.Producer the core needs.
type publisher interface {
	PublishWithRetry(ctx context.Context, topic string, event eventbus.Event, eventType string, at time.Time, extraHeaders map[string]string) error
}

// Core orchestrates wallet creation and lookup: cache-then-repository
// reads, allocator-then-generator-then-persist writes, and best-effort
// async publish of WalletCreatedEvent.
type Core struct {
	repo       walletRepo
	allocator  indexAllocator
	generators map[domain.Network]Generator
	producer   publisher
	topic      string
	mnemonic   string
	cache      *cache.Cache
	cacheTTL   time.Duration
	sem        chan struct{}
}

func NewCore(
	repo walletRepo,
	allocator indexAllocator,
	generators map[domain.Network]Generator,
	producer publisher,
	topic string,
	mnemonic string,
	c *cache.Cache,
	cacheTTLSeconds int,
	maxConcurrent int,
) *Core {
	return &Core{
		repo:       repo,
		allocator:  allocator,
		generators: generators,
		producer:   producer,
		topic:      topic,
		mnemonic:   mnemonic,
		cache:      c,
		cacheTTL:   time.Duration(cacheTTLSeconds) * time.Second,
		sem:        make(chan struct{}, maxConcurrent),
	}
}

func cacheKey(userID string, network domain.Network) string {
	return fmt.Sprintf("wallet:%s:%s", userID, network)
}

// CreateWallet is idempotent end to end: a cache hit or a repository hit
// both short-circuit before any index is allocated or any key derived.
func (c *Core) CreateWallet(ctx context.Context, userID string, network domain.Network) (*Wallet, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	key := cacheKey(userID, network)
	if cached, ok := c.cache.Get(key); ok {
		metrics.CacheHitTotal.WithLabelValues("wallet").Inc()
		return cached.(*Wallet), nil
	}
	metrics.CacheMissTotal.WithLabelValues("wallet").Inc()

	existing, err := c.repo.GetByUserAndNetwork(ctx, userID, network)
	if err != nil {
		return nil, fmt.Errorf("lookup existing wallet: %w", err)
	}
	if existing != nil {
		c.cache.Set(key, existing, c.cacheTTL)
		return existing, nil
	}

	start := time.Now()
	w, err := c.generateAndPersist(ctx, userID, network)
	metrics.WalletGenerationDuration.WithLabelValues(string(network)).Observe(time.Since(start).Seconds())
	if err != nil {
		if apperr.Is(err, apperr.CodeWalletAlreadyExists) {
			// Lost a concurrent create race; the winner's row is the
			// source of truth. Fetch and cache it instead of failing.
			metrics.WalletGenerationTotal.WithLabelValues(string(network), "already_exists").Inc()
			winner, getErr := c.repo.GetByUserAndNetwork(ctx, userID, network)
			if getErr != nil || winner == nil {
				// No row for this user and network: the conflict was on
				// another constraint, so this call failed.
				return nil, apperr.Wrap(apperr.CodeWalletGenerationFail, "wallet insert conflicted with another row", err)
			}
			c.cache.Set(key, winner, c.cacheTTL)
			return winner, nil
		}
		metrics.WalletGenerationTotal.WithLabelValues(string(network), "failed").Inc()
		return nil, err
	}

	metrics.WalletGenerationTotal.WithLabelValues(string(network), "succeeded").Inc()
	c.cache.Set(key, w, c.cacheTTL)
	c.publishAsync(w)
	return w, nil
}

// generateAndPersist allocates an index, derives the address, and persists
// the wallet. Any failure leaves the allocated index unreclaimed: indices
// are monotone, holes are permitted.
func (c *Core) generateAndPersist(ctx context.Context, userID string, network domain.Network) (*Wallet, error) {
	generator, ok := c.generators[network]
	if !ok {
		return nil, apperr.New(apperr.CodeWalletGenerationFail, fmt.Sprintf("no generator registered for network %q", network))
	}

	index, err := c.allocator.NextIndex(ctx, network)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeWalletGenerationFail, "failed to allocate derivation index", err)
	}

	address, err := generator.Generate(c.mnemonic, userID, index)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeWalletGenerationFail, "address generation failed", err)
	}

	w, err := NewWallet(userID, network, address, index)
	if err != nil {
		return nil, err
	}

	if err := c.repo.Insert(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// GetWallet serves the cache first; on a hit it fires an async
// last-accessed bump and returns immediately. On a miss it reads the
// repository, populates the cache, and synchronously updates
// last_accessed_at before returning.
func (c *Core) GetWallet(ctx context.Context, userID string, network domain.Network) (*Wallet, error) {
	key := cacheKey(userID, network)

	if cached, ok := c.cache.Get(key); ok {
		metrics.CacheHitTotal.WithLabelValues("wallet").Inc()
		w := cached.(*Wallet)
		go c.touchLastAccessed(w.ID)
		return w, nil
	}
	metrics.CacheMissTotal.WithLabelValues("wallet").Inc()

	w, err := c.repo.GetByUserAndNetwork(ctx, userID, network)
	if err != nil {
		return nil, fmt.Errorf("lookup wallet: %w", err)
	}
	if w == nil {
		return nil, apperr.New(apperr.CodeWalletNotFound, "no wallet for user and network")
	}

	now := time.Now()
	if err := c.repo.UpdateLastAccessed(ctx, w.ID, now); err != nil {
		return nil, fmt.Errorf("update last_accessed_at: %w", err)
	}
	w.LastAccessedAt = &now

	c.cache.Set(key, w, c.cacheTTL)
	return w, nil
}

func (c *Core) touchLastAccessed(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.repo.UpdateLastAccessed(ctx, id, time.Now()); err != nil {
		log.Warn().Err(err).Msg("failed to update last_accessed_at from cache hit")
	}
}

// publishAsync fires WalletCreatedEvent with a three-attempt
// exponential-backoff retry without blocking the caller. Exhausted
// retries are logged and swallowed.
func (c *Core) publishAsync(w *Wallet) {
	now := time.Now()
	event := eventbus.NewWalletCreatedEvent(w.UserID, w.Network, w.WalletAddress, now)
	headers := map[string]string{"network": string(w.Network)}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.producer.PublishWithRetry(ctx, c.topic, event, eventbus.EventTypeWalletCreated, now, headers); err != nil {
			log.Error().Err(err).Str("user_id", w.UserID).Str("network", string(w.Network)).Msg("failed to publish wallet.created after retries")
		}
	}()
}
