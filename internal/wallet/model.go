// Package wallet implements the Wallet Service's core: address validation,
// HD derivation via per-network generators, the derivation-index
// allocator, persistence, the idempotent event handler, and the
// create/lookup orchestration.
package wallet

import (
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/protocol-bank/wallet-onboarding/internal/apperr"
	"github.com/protocol-bank/wallet-onboarding/internal/domain"
)

// Wallet is unique per (user_id, network).
type Wallet struct {
	ID              uuid.UUID
	UserID          string
	Network         domain.Network
	WalletAddress   string
	DerivationIndex uint32
	CreatedAt       time.Time
	LastAccessedAt  *time.Time
}

// NewWallet runs address-format validation in the constructor, matching
// the contract that a rejected format fails the whole create_wallet call
// with WALLET_GENERATION_FAILED.
func NewWallet(userID string, network domain.Network, address string, index uint32) (*Wallet, error) {
	if err := ValidateAddress(network, address); err != nil {
		return nil, apperr.Wrap(apperr.CodeWalletGenerationFail, "generated address failed format validation", err)
	}
	return &Wallet{
		UserID:          userID,
		Network:         network,
		WalletAddress:   address,
		DerivationIndex: index,
		CreatedAt:       time.Now(),
	}, nil
}

// ValidateAddress checks the address-format rule for network.
func ValidateAddress(network domain.Network, address string) error {
	switch network {
	case domain.Ethereum:
		return validateEthereumAddress(address)
	case domain.Tron:
		return validateTronAddress(address)
	case domain.Bitcoin:
		return validateBitcoinAddress(address)
	default:
		return fmt.Errorf("unknown network %q", network)
	}
}

func validateEthereumAddress(address string) error {
	if !strings.HasPrefix(address, "0x") || len(address) != 42 {
		return fmt.Errorf("wrong length or prefix: %q", address)
	}
	if !common.IsHexAddress(address) {
		return fmt.Errorf("not a valid hex address: %q", address)
	}
	if checksummed := common.HexToAddress(address).Hex(); address != checksummed {
		return fmt.Errorf("failed EIP-55 checksum: %q", address)
	}
	return nil
}

func validateTronAddress(address string) error {
	if !strings.HasPrefix(address, "T") || len(address) != 34 {
		return fmt.Errorf("wrong length or prefix: %q", address)
	}
	if _, _, err := base58.CheckDecode(address); err != nil {
		return fmt.Errorf("invalid base58check: %w", err)
	}
	return nil
}

func validateBitcoinAddress(address string) error {
	if len(address) < 26 || len(address) > 35 {
		return fmt.Errorf("wrong length: %q", address)
	}
	if _, _, err := base58.CheckDecode(address); err != nil {
		return fmt.Errorf("invalid base58check: %w", err)
	}
	return nil
}
