package wallet

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protocol-bank/wallet-onboarding/internal/apperr"
	"github.com/protocol-bank/wallet-onboarding/internal/domain"
	"github.com/protocol-bank/wallet-onboarding/internal/eventbus"
	"github.com/protocol-bank/wallet-onboarding/internal/platform/cache"
)

// fakeWalletRepo is an in-memory stand-in for Repository, enforcing the
// same (user_id, network) uniqueness the real Postgres constraint does.
type fakeWalletRepo struct {
	mu      sync.Mutex
	byKey   map[string]*Wallet
	inserts int32
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{byKey: make(map[string]*Wallet)}
}

func repoKey(userID string, network domain.Network) string {
	return userID + ":" + string(network)
}

func (r *fakeWalletRepo) GetByUserAndNetwork(ctx context.Context, userID string, network domain.Network) (*Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byKey[repoKey(userID, network)], nil
}

func (r *fakeWalletRepo) Insert(ctx context.Context, w *Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := repoKey(w.UserID, w.Network)
	if _, exists := r.byKey[key]; exists {
		return apperr.New(apperr.CodeWalletAlreadyExists, "wallet already exists for user and network")
	}
	w.ID = uuid.New()
	r.byKey[key] = w
	atomic.AddInt32(&r.inserts, 1)
	return nil
}

func (r *fakeWalletRepo) UpdateLastAccessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.byKey {
		if w.ID == id {
			w.LastAccessedAt = &at
		}
	}
	return nil
}

type sequentialAllocator struct {
	mu  sync.Mutex
	nxt uint32
}

func (a *sequentialAllocator) NextIndex(ctx context.Context, network domain.Network) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := a.nxt
	a.nxt++
	return idx, nil
}

type countingPublisher struct {
	count int32
}

func (p *countingPublisher) PublishWithRetry(ctx context.Context, topic string, event eventbus.Event, eventType string, at time.Time, extraHeaders map[string]string) error {
	atomic.AddInt32(&p.count, 1)
	return nil
}

func newTestCore(repo walletRepo, alloc indexAllocator, pub publisher) *Core {
	return NewCore(repo, alloc, Generators(), pub, "wallet.created", testMnemonic, cache.New(10*time.Minute), 600, 20)
}

func TestCreateWalletHappyPath(t *testing.T) {
	repo := newFakeWalletRepo()
	pub := &countingPublisher{}
	core := newTestCore(repo, &sequentialAllocator{}, pub)

	w, err := core.CreateWallet(context.Background(), "u1", domain.Ethereum)
	require.NoError(t, err)
	assert.Equal(t, "u1", w.UserID)
	assert.Contains(t, w.WalletAddress, "0x")
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.inserts))

	// Give the fire-and-forget publish goroutine a moment to run.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&pub.count))
}

func TestCreateWalletCacheHitSkipsRepository(t *testing.T) {
	repo := newFakeWalletRepo()
	core := newTestCore(repo, &sequentialAllocator{}, &countingPublisher{})

	first, err := core.CreateWallet(context.Background(), "u1", domain.Ethereum)
	require.NoError(t, err)

	second, err := core.CreateWallet(context.Background(), "u1", domain.Ethereum)
	require.NoError(t, err)

	assert.Equal(t, first.WalletAddress, second.WalletAddress)
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.inserts), "second call must be served from cache, not a second insert")
}

func TestCreateWalletRepositoryHitPopulatesCache(t *testing.T) {
	repo := newFakeWalletRepo()
	existing, err := NewWallet("u1", domain.Ethereum, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", 7)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(), existing))

	core := newTestCore(repo, &sequentialAllocator{}, &countingPublisher{})
	w, err := core.CreateWallet(context.Background(), "u1", domain.Ethereum)
	require.NoError(t, err)
	assert.Equal(t, existing.WalletAddress, w.WalletAddress)
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.inserts), "a pre-existing row must not trigger a new insert")
}

func TestCreateWalletConcurrentFirstTimeProvisioningInsertsOnce(t *testing.T) {
	repo := newFakeWalletRepo()
	core := newTestCore(repo, &sequentialAllocator{}, &countingPublisher{})

	const n = 10
	results := make([]*Wallet, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = core.CreateWallet(context.Background(), "concurrent-user", domain.Ethereum)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	first := results[0].WalletAddress
	for i := 1; i < n; i++ {
		assert.Equal(t, first, results[i].WalletAddress, "every concurrent caller must observe the same winning wallet")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.inserts))
}

func TestGetWalletCacheMissThenHit(t *testing.T) {
	repo := newFakeWalletRepo()
	w, err := NewWallet("u1", domain.Ethereum, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", 2)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(), w))

	core := newTestCore(repo, &sequentialAllocator{}, &countingPublisher{})

	got1, err := core.GetWallet(context.Background(), "u1", domain.Ethereum)
	require.NoError(t, err)
	assert.NotNil(t, got1.LastAccessedAt, "a synchronous repository-path lookup must update last_accessed_at before returning")

	got2, err := core.GetWallet(context.Background(), "u1", domain.Ethereum)
	require.NoError(t, err)
	assert.Equal(t, got1.WalletAddress, got2.WalletAddress)
}

func TestGetWalletNotFound(t *testing.T) {
	repo := newFakeWalletRepo()
	core := newTestCore(repo, &sequentialAllocator{}, &countingPublisher{})

	_, err := core.GetWallet(context.Background(), "ghost", domain.Ethereum)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeWalletNotFound))
}
