package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/protocol-bank/wallet-onboarding/internal/domain"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/cache"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/metrics"
)

// indexCacheTTL keeps an allocated "next index" alive far longer than the
// wallet-lookup cache entries sharing the same Cache instance; re-seeding
// from the repository is always safe, this just avoids doing it needlessly.
const indexCacheTTL = 24 * time.Hour

// indexSource is the subset of Repository the allocator needs to seed
// itself when its cache is cold.
type indexSource interface {
	MaxDerivationIndex(ctx context.Context, network domain.Network) (int64, error)
}

// Allocator hands out a strictly increasing, non-negative index per
// network. It is correct within a single process only: horizontal scaling
// needs a database sequence or an INSERT ... RETURNING that computes
// max+1 in the wallet insert's own transaction; this is the minimal
// correct design for one process.
//
// Allocated indices are never reclaimed, even when the caller that
// received one later fails to persist a wallet — sparse holes are
// permitted and expected.
type Allocator struct {
	repo    indexSource
	cache   *cache.Cache
	mus     map[domain.Network]*sync.Mutex
	mapLock sync.Mutex
}

func NewAllocator(repo indexSource, c *cache.Cache) *Allocator {
	return &Allocator{
		repo:  repo,
		cache: c,
		mus:   make(map[domain.Network]*sync.Mutex),
	}
}

func (a *Allocator) mutexFor(network domain.Network) *sync.Mutex {
	a.mapLock.Lock()
	defer a.mapLock.Unlock()
	m, ok := a.mus[network]
	if !ok {
		m = &sync.Mutex{}
		a.mus[network] = m
	}
	return m
}

// NextIndex returns the next index for network and advances the cache by
// one. Under the per-network mutex, successive calls strictly increase
// within this process.
func (a *Allocator) NextIndex(ctx context.Context, network domain.Network) (uint32, error) {
	mu := a.mutexFor(network)
	mu.Lock()
	defer mu.Unlock()

	key := fmt.Sprintf("next_index:%s", network)

	if cached, ok := a.cache.Get(key); ok {
		next := cached.(uint32)
		a.cache.Set(key, next+1, indexCacheTTL)
		metrics.DerivationIndexAllocatedTotal.WithLabelValues(string(network)).Inc()
		return next, nil
	}

	max, err := a.repo.MaxDerivationIndex(ctx, network)
	if err != nil {
		return 0, fmt.Errorf("seed derivation index from repository: %w", err)
	}
	next := uint32(max + 1)
	a.cache.Set(key, next+1, indexCacheTTL)
	metrics.DerivationIndexAllocatedTotal.WithLabelValues(string(network)).Inc()
	return next, nil
}
