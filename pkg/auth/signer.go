package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
)

// ErrNoCredential means neither a seed phrase nor a private key was supplied.
var ErrNoCredential = errors.New("no signing credential configured")

// ethereumAccountPath is m/44'/60'/0'/0/0, the first account ethers.js derives from a mnemonic.
var ethereumAccountPath = []uint32{
	hdkeychain.HardenedKeyStart + 44,
	hdkeychain.HardenedKeyStart + 60,
	hdkeychain.HardenedKeyStart + 0,
	0,
	0,
}

// Signer holds the operator's secp256k1 key and signs EIP-191 messages with it.
type Signer struct {
	key     *btcec.PrivateKey
	address string
}

// NewSignerFromMnemonic derives the operator key from a BIP-39 seed phrase.
func NewSignerFromMnemonic(mnemonic, passphrase string) (*Signer, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if mnemonic == "" {
		return nil, ErrNoCredential
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("invalid seed phrase: %w", err)
	}

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	for _, idx := range ethereumAccountPath {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("derive child key %d: %w", idx, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extract private key: %w", err)
	}
	return newSigner(priv), nil
}

// NewSignerFromHex loads a raw 32-byte private key ("0x" prefix optional).
func NewSignerFromHex(hexKey string) (*Signer, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, ErrNoCredential
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return newSigner(priv), nil
}

func newSigner(priv *btcec.PrivateKey) *Signer {
	return &Signer{
		key:     priv,
		address: pubKeyToEthAddress(priv.PubKey()),
	}
}

// Address returns the EIP-55 checksummed address of the signing key.
func (s *Signer) Address() string {
	return s.address
}

// SignMessage produces a personal_sign signature: 65 bytes R|S|V with V in
// {27, 28}. It never fails for an in-memory key.
func (s *Signer) SignMessage(message []byte) ([]byte, error) {
	compact := ecdsa.SignCompact(s.key, PersonalMessageHash(message), false)
	// btcec layout is V|R|S; Ethereum wants R|S|V.
	sig := make([]byte, 65)
	copy(sig[0:64], compact[1:65])
	sig[64] = compact[0]
	return sig, nil
}
