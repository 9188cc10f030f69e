package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	"github.com/protocol-bank/wallet-onboarding/internal/apperr"
	"github.com/protocol-bank/wallet-onboarding/internal/domain"
)

const tronAddressVersion = 0x41

// Generator derives a deterministic per-network address from a shared
// mnemonic, a user ID, and an allocated index. Implementations are pure
// functions of their inputs: two calls with the same arguments return the
// same address.
type Generator interface {
	Generate(mnemonic, userID string, index uint32) (string, error)
}

// Generators maps each supported network to its Generator.
func Generators() map[domain.Network]Generator {
	return map[domain.Network]Generator{
		domain.Ethereum: ethereumGenerator{},
		domain.Tron:     tronGenerator{},
		domain.Bitcoin:  bitcoinGenerator{},
	}
}

// deriveChildKey walks the shared BIP-32 derivation pipeline: BIP-39 seed
// from (mnemonic, passphrase) bound to the user, then hardened purpose/
// coin/account, non-hardened change and index children. All three network
// generators reuse this helper and only differ in coin type and address
// encoding.
func deriveChildKey(mnemonic, userID string, network domain.Network, index uint32) (*hdkeychain.ExtendedKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, apperr.New(apperr.CodeMnemonicSecurity, "configured mnemonic failed BIP-39 validation")
	}

	passphrase := "wallet-service:" + userID
	seed := bip39.NewSeed(mnemonic, passphrase)
	defer scrub(seed)

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + network.CoinType(),
		hdkeychain.HardenedKeyStart + 0, // account
		0,                               // change
		index,
	}

	key := master
	for _, childIndex := range path {
		key, err = key.Derive(childIndex)
		if err != nil {
			return nil, fmt.Errorf("derive child key: %w", err)
		}
	}
	return key, nil
}

func scrub(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

type ethereumGenerator struct{}

func (ethereumGenerator) Generate(mnemonic, userID string, index uint32) (string, error) {
	key, err := deriveChildKey(mnemonic, userID, domain.Ethereum, index)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeWalletGenerationFail, "ethereum key derivation failed", err)
	}

	pubKey, err := key.ECPubKey()
	if err != nil {
		return "", apperr.Wrap(apperr.CodeWalletGenerationFail, "ethereum public key derivation failed", err)
	}

	checksummed := crypto.PubkeyToAddress(*pubKey.ToECDSA()).Hex()
	if err := ValidateAddress(domain.Ethereum, checksummed); err != nil {
		return "", apperr.Wrap(apperr.CodeWalletGenerationFail, "generated ethereum address failed validation", err)
	}
	return checksummed, nil
}

type tronGenerator struct{}

func (tronGenerator) Generate(mnemonic, userID string, index uint32) (string, error) {
	key, err := deriveChildKey(mnemonic, userID, domain.Tron, index)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeWalletGenerationFail, "tron key derivation failed", err)
	}

	pubKey, err := key.ECPubKey()
	if err != nil {
		return "", apperr.Wrap(apperr.CodeWalletGenerationFail, "tron public key derivation failed", err)
	}

	uncompressed := pubKey.SerializeUncompressed()
	hash := crypto.Keccak256(uncompressed[1:])
	payload := hash[12:]

	address := base58.CheckEncode(payload, tronAddressVersion)
	if err := ValidateAddress(domain.Tron, address); err != nil {
		return "", apperr.Wrap(apperr.CodeWalletGenerationFail, "generated tron address failed validation", err)
	}
	return address, nil
}

type bitcoinGenerator struct{}

func (bitcoinGenerator) Generate(mnemonic, userID string, index uint32) (string, error) {
	key, err := deriveChildKey(mnemonic, userID, domain.Bitcoin, index)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeWalletGenerationFail, "bitcoin key derivation failed", err)
	}

	pubKey, err := key.ECPubKey()
	if err != nil {
		return "", apperr.Wrap(apperr.CodeWalletGenerationFail, "bitcoin public key derivation failed", err)
	}

	pubKeyHash := btcutil.Hash160(pubKey.SerializeCompressed())
	addr, err := btcutil.NewAddressPubKeyHash(pubKeyHash, &chaincfg.MainNetParams)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeWalletGenerationFail, "failed to encode bitcoin address", err)
	}

	address := addr.EncodeAddress()
	if err := ValidateAddress(domain.Bitcoin, address); err != nil {
		return "", apperr.Wrap(apperr.CodeWalletGenerationFail, "generated bitcoin address failed validation", err)
	}
	return address, nil
}
