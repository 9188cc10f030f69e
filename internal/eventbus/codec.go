// Package eventbus implements the Kafka-backed messaging contract between
// the two services: bit-exact JSON encode/decode of the two event types,
// an ordered keyed publisher with retry/batching, and a batch-poll,
// parallel-dispatch, manual-commit consumer.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/protocol-bank/wallet-onboarding/internal/domain"
)

const (
	EventTypeUserVerified  = "user.verified"
	EventTypeWalletCreated = "wallet.created"
)

// UserVerifiedEvent is published by the verification service once a
// verification transitions to VERIFIED.
type UserVerifiedEvent struct {
	Event     string         `json:"event"`
	UserID    string         `json:"user_id"`
	Network   domain.Network `json:"network"`
	Timestamp time.Time      `json:"timestamp"`
}

// Key is the Kafka record key: raw UTF-8 bytes of user_id, preserving
// per-user ordering of user.verified records.
func (e UserVerifiedEvent) Key() []byte { return []byte(e.UserID) }

// WalletCreatedEvent is published by the wallet service once a wallet has
// been persisted.
type WalletCreatedEvent struct {
	Event         string         `json:"event"`
	UserID        string         `json:"user_id"`
	Network       domain.Network `json:"network"`
	WalletAddress string         `json:"wallet_address"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Key is the Kafka record key: "{user_id}:{network}", preserving
// per-(user,network) ordering of wallet.created records.
func (e WalletCreatedEvent) Key() []byte {
	return []byte(fmt.Sprintf("%s:%s", e.UserID, e.Network))
}

// NewUserVerifiedEvent builds the event emitted right after a verification
// flips to VERIFIED.
func NewUserVerifiedEvent(userID string, network domain.Network, at time.Time) UserVerifiedEvent {
	return UserVerifiedEvent{Event: EventTypeUserVerified, UserID: userID, Network: network, Timestamp: at}
}

// NewWalletCreatedEvent builds the event emitted right after a wallet row
// is persisted.
func NewWalletCreatedEvent(userID string, network domain.Network, address string, at time.Time) WalletCreatedEvent {
	return WalletCreatedEvent{Event: EventTypeWalletCreated, UserID: userID, Network: network, WalletAddress: address, Timestamp: at}
}

// DecodeUserVerified parses a user.verified record value.
func DecodeUserVerified(value []byte) (UserVerifiedEvent, error) {
	var e UserVerifiedEvent
	if err := json.Unmarshal(value, &e); err != nil {
		return UserVerifiedEvent{}, fmt.Errorf("decode user.verified: %w", err)
	}
	return e, nil
}

// DecodeWalletCreated parses a wallet.created record value.
func DecodeWalletCreated(value []byte) (WalletCreatedEvent, error) {
	var e WalletCreatedEvent
	if err := json.Unmarshal(value, &e); err != nil {
		return WalletCreatedEvent{}, fmt.Errorf("decode wallet.created: %w", err)
	}
	return e, nil
}
