package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protocol-bank/wallet-onboarding/internal/apperr"
	"github.com/protocol-bank/wallet-onboarding/internal/domain"
)

func TestValidateEthereumAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		valid   bool
	}{
		{"valid checksummed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", true},
		{"all lowercase fails checksum", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", false},
		{"missing prefix", "5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", false},
		{"wrong length", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeA", false},
		{"non hex", "0xZZAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(domain.Ethereum, tt.address)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateTronAddress(t *testing.T) {
	valid := "TLa2f6VPqDgRE67v1736s7bJ8Ray5wYjU7"
	tests := []struct {
		name    string
		address string
		valid   bool
	}{
		{"valid", valid, true},
		{"wrong prefix", "X" + valid[1:], false},
		{"wrong length", valid[:33], false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(domain.Tron, tt.address)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateBitcoinAddress(t *testing.T) {
	valid := "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"
	tests := []struct {
		name    string
		address string
		valid   bool
	}{
		{"valid p2pkh", valid, true},
		{"too short", "1Boat", false},
		{"invalid base58check", "1BoatSLRHtKNngkdXEeobR76b53LETtpyX", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(domain.Bitcoin, tt.address)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNewWalletRejectsInvalidAddress(t *testing.T) {
	_, err := NewWallet("u1", domain.Ethereum, "not-an-address", 0)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeWalletGenerationFail))
}

func TestNewWalletAcceptsValidAddress(t *testing.T) {
	w, err := NewWallet("u1", domain.Ethereum, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", 3)
	require.NoError(t, err)
	assert.Equal(t, "u1", w.UserID)
	assert.Equal(t, uint32(3), w.DerivationIndex)
	assert.Nil(t, w.LastAccessedAt)
}
