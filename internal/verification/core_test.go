package verification

import (
	"context"
	"crypto/sha256"
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
)

type fakeVerificationRepo struct {
	mu      sync.Mutex
	byKey   map[string]*Verification
	inserts int32
}

func newFakeVerificationRepo() *fakeVerificationRepo {
	return &fakeVerificationRepo{byKey: make(map[string]*Verification)}
}

func key(userID string, network domain.Network) string { return userID + ":" + string(network) }

func (r *fakeVerificationRepo) GetByUserAndNetwork(ctx context.Context, userID string, network domain.Network) (*Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byKey[key(userID, network)], nil
}

func (r *fakeVerificationRepo) Insert(ctx context.Context, v *Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v.ID = uuid.New()
	r.byKey[key(v.UserID, v.Network)] = v
	atomic.AddInt32(&r.inserts, 1)
	return nil
}

func (r *fakeVerificationRepo) MarkVerified(ctx context.Context, id uuid.UUID, verifiedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.byKey {
		if v.ID == id {
			v.MarkVerified(verifiedAt)
		}
	}
	return nil
}

type countingPublisher struct {
	count int32
}

func (p *countingPublisher) PublishWithRetry(ctx context.Context, topic string, event eventbus.Event, eventType string, at time.Time, extraHeaders map[string]string) error {
	atomic.AddInt32(&p.count, 1)
	return nil
}

func newTestCore(repo verificationRepo, pub publisher) *Core {
	return NewCore(repo, pub, "user.verified", 0 /* no delay in tests */, 1, 50)
}

func TestVerifyUserHappyPath(t *testing.T) {
	repo := newFakeVerificationRepo()
	pub := &countingPublisher{}
	core := newTestCore(repo, pub)

	v, err := core.VerifyUser(context.Background(), "u1", "ethereum", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, v.Status)
	require.NotNil(t, v.VerifiedAt)
	assert.False(t, v.VerifiedAt.Before(v.CreatedAt))
	assert.Equal(t, sha256.Sum256([]byte("hello")), v.DocumentHash)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&pub.count))
}

func TestVerifyUserNetworkCaseFolded(t *testing.T) {
	repo := newFakeVerificationRepo()
	core := newTestCore(repo, &countingPublisher{})

	v, err := core.VerifyUser(context.Background(), "u1", "ETHEREUM", []byte("doc"))
	require.NoError(t, err)
	assert.Equal(t, domain.Ethereum, v.Network)
}

func TestVerifyUserUnsupportedNetwork(t *testing.T) {
	repo := newFakeVerificationRepo()
	core := newTestCore(repo, &countingPublisher{})

	_, err := core.VerifyUser(context.Background(), "u1", "solana", []byte("doc"))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))
	assert.Contains(t, err.Error(), "Unsupported network")
}

func TestVerifyUserDocumentAtExactBoundaryAccepted(t *testing.T) {
	repo := newFakeVerificationRepo()
	core := newTestCore(repo, &countingPublisher{})
	core.maxDocumentBytes = 10

	doc := make([]byte, 10)
	_, err := core.VerifyUser(context.Background(), "u1", "ethereum", doc)
	assert.NoError(t, err)
}

func TestVerifyUserDocumentOneByteOverBoundaryRejected(t *testing.T) {
	repo := newFakeVerificationRepo()
	core := newTestCore(repo, &countingPublisher{})
	core.maxDocumentBytes = 10

	doc := make([]byte, 11)
	_, err := core.VerifyUser(context.Background(), "u1", "ethereum", doc)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeDocumentTooLarge))
}

func TestVerifyUserIdempotentOnAlreadyVerified(t *testing.T) {
	repo := newFakeVerificationRepo()
	pub := &countingPublisher{}
	core := newTestCore(repo, pub)

	first, err := core.VerifyUser(context.Background(), "u1", "ethereum", []byte("doc"))
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	second, err := core.VerifyUser(context.Background(), "u1", "ethereum", []byte("doc"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.inserts), "a second call against an already-verified row must not insert again")
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&pub.count), "no re-emit for an idempotent no-op")
}

func TestVerifyUserRejectsEmptyUserID(t *testing.T) {
	repo := newFakeVerificationRepo()
	core := newTestCore(repo, &countingPublisher{})

	_, err := core.VerifyUser(context.Background(), "", "ethereum", []byte("doc"))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))
}

func TestVerifyUserRejectsOverlongUserID(t *testing.T) {
	repo := newFakeVerificationRepo()
	core := newTestCore(repo, &countingPublisher{})

	longID := make([]byte, 256)
	for i := range longID {
		longID[i] = 'a'
	}
	_, err := core.VerifyUser(context.Background(), string(longID), "ethereum", []byte("doc"))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))
}
