package wallet

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protocol-bank/wallet-onboarding/internal/apperr"
	"github.com/protocol-bank/wallet-onboarding/internal/domain"
	"github.com/protocol-bank/wallet-onboarding/internal/eventbus"
)

type fakeWalletCreator struct {
	calls   int32
	err     error
	wallet  *Wallet
}

func (f *fakeWalletCreator) CreateWallet(ctx context.Context, userID string, network domain.Network) (*Wallet, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.wallet, nil
}

func sampleEvent() eventbus.UserVerifiedEvent {
	return eventbus.NewUserVerifiedEvent("u1", domain.Ethereum, time.Unix(1700000000, 0))
}

func TestHandlerCallsCreateWalletOnce(t *testing.T) {
	creator := &fakeWalletCreator{wallet: &Wallet{UserID: "u1", Network: domain.Ethereum}}
	h, err := NewHandler(creator)
	require.NoError(t, err)

	err = h.HandleUserVerified(context.Background(), sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&creator.calls))
}

func TestHandlerDedupesSameEvent(t *testing.T) {
	creator := &fakeWalletCreator{wallet: &Wallet{UserID: "u1", Network: domain.Ethereum}}
	h, err := NewHandler(creator)
	require.NoError(t, err)

	event := sampleEvent()
	for i := 0; i < 5; i++ {
		err := h.HandleUserVerified(context.Background(), event)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&creator.calls), "a duplicate event must not re-invoke CreateWallet")
}

func TestHandlerDistinguishesEventsByTimestamp(t *testing.T) {
	creator := &fakeWalletCreator{wallet: &Wallet{UserID: "u1", Network: domain.Ethereum}}
	h, err := NewHandler(creator)
	require.NoError(t, err)

	e1 := eventbus.NewUserVerifiedEvent("u1", domain.Ethereum, time.Unix(1700000000, 0))
	e2 := eventbus.NewUserVerifiedEvent("u1", domain.Ethereum, time.Unix(1700000001, 0))

	require.NoError(t, h.HandleUserVerified(context.Background(), e1))
	require.NoError(t, h.HandleUserVerified(context.Background(), e2))
	assert.Equal(t, int32(2), atomic.LoadInt32(&creator.calls))
}

func TestHandlerTreatsAlreadyExistsAsSuccess(t *testing.T) {
	creator := &fakeWalletCreator{err: apperr.New(apperr.CodeWalletAlreadyExists, "dup")}
	h, err := NewHandler(creator)
	require.NoError(t, err)

	err = h.HandleUserVerified(context.Background(), sampleEvent())
	assert.NoError(t, err)
}

func TestHandlerAllowsRetryAfterOtherFailure(t *testing.T) {
	creator := &fakeWalletCreator{err: errors.New("db unreachable")}
	h, err := NewHandler(creator)
	require.NoError(t, err)

	event := sampleEvent()
	err = h.HandleUserVerified(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&creator.calls))

	// The key must have been evicted so a retry re-processes the event.
	creator.err = nil
	creator.wallet = &Wallet{UserID: "u1", Network: domain.Ethereum}
	err = h.HandleUserVerified(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&creator.calls))
}
