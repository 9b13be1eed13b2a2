package auth

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/sha3"
)

// ============================================================================
// EIP-191 SIGNATURES
// ============================================================================

// PersonalMessageHash returns keccak256("\x19Ethereum Signed Message:\n" + len + message),
// the digest signed by personal_sign.
func PersonalMessageHash(message []byte) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return keccak256([]byte(prefixed))
}

// pubKeyToEthAddress derives an Ethereum address from a secp256k1 public key
func pubKeyToEthAddress(pubKey *btcec.PublicKey) string {
	// Ethereum uses uncompressed pubkey without the 0x04 prefix
	uncompressed := pubKey.SerializeUncompressed()
	hash := keccak256(uncompressed[1:])
	// Address is last 20 bytes of hash
	return toChecksumAddress(hex.EncodeToString(hash[12:]))
}

// NormalizeEthAddress converts an Ethereum address to checksum format
func NormalizeEthAddress(address string) (string, error) {
	addr := strings.TrimPrefix(strings.ToLower(address), "0x")
	if len(addr) != 40 {
		return "", fmt.Errorf("ethereum address must be 40 hex characters")
	}
	if _, err := hex.DecodeString(addr); err != nil {
		return "", fmt.Errorf("invalid hex in address: %w", err)
	}
	return toChecksumAddress(addr), nil
}

// toChecksumAddress applies EIP-55 checksum to an address
func toChecksumAddress(addr string) string {
	addr = strings.ToLower(addr)
	hash := keccak256([]byte(addr))

	result := make([]byte, 42)
	result[0] = '0'
	result[1] = 'x'

	for i := 0; i < 40; i++ {
		c := addr[i]
		hashNibble := hash[i/2]
		if i%2 == 0 {
			hashNibble >>= 4
		}
		hashNibble &= 0x0f

		if hashNibble >= 8 && c >= 'a' && c <= 'f' {
			result[i+2] = c - 32 // uppercase
		} else {
			result[i+2] = c
		}
	}
	return string(result)
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}
