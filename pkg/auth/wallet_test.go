package auth

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/require"
)

// Well-known development mnemonic; account 0 is published by every Ethereum toolchain.
const (
	devMnemonic   = "test test test test test test test test test test test junk"
	devPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestNormalizeEthAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    string
		wantErr bool
	}{
		{"lowercase", "0xd8da6bf26964af9d7eed9e03e53415d37aa96045", "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045", false},
		{"no prefix", "d8da6bf26964af9d7eed9e03e53415d37aa96045", "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045", false},
		{"too short", "0x1234", "", true},
		{"bad hex", "0xzz8da6bf26964af9d7eed9e03e53415d37aa9604", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeEthAddress(tt.address)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSignerFromMnemonicDerivesFirstAccount(t *testing.T) {
	s, err := NewSignerFromMnemonic("  test test test test test test test test test test test   junk ", "")
	require.NoError(t, err)
	require.Equal(t, devAddress, s.Address())
}

func TestSignerFromHex(t *testing.T) {
	s, err := NewSignerFromHex(devPrivateKey)
	require.NoError(t, err)
	require.Equal(t, devAddress, s.Address())

	_, err = NewSignerFromHex("0x1234")
	require.Error(t, err)
	_, err = NewSignerFromHex("")
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestSignerFromMnemonicRejectsBadPhrase(t *testing.T) {
	_, err := NewSignerFromMnemonic("not a real seed phrase", "")
	require.Error(t, err)
	_, err = NewSignerFromMnemonic("   ", "")
	require.ErrorIs(t, err, ErrNoCredential)
}

// recoverSigner reverses SignMessage's R|S|V layout into btcec's V|R|S and
// returns the address that produced sig.
func recoverSigner(t *testing.T, message, sig []byte) string {
	t.Helper()
	require.Len(t, sig, 65)
	compact := make([]byte, 65)
	compact[0] = sig[64]
	copy(compact[1:], sig[:64])
	pub, _, err := ecdsa.RecoverCompact(compact, PersonalMessageHash(message))
	require.NoError(t, err)
	return pubKeyToEthAddress(pub)
}

func TestSignMessageRecoversToSigner(t *testing.T) {
	s, err := NewSignerFromMnemonic(devMnemonic, "")
	require.NoError(t, err)

	msg := []byte(`{"method":"generateToken","params":{"timestamp":1658378621000}}`)
	sig, err := s.SignMessage(msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64])
	require.Equal(t, devAddress, recoverSigner(t, msg, sig))

	tampered := append([]byte(nil), msg...)
	tampered[len(tampered)-2] = '1'
	require.NotEqual(t, devAddress, recoverSigner(t, tampered, sig))
}

func TestSignMessageIsDeterministic(t *testing.T) {
	s, err := NewSignerFromHex(devPrivateKey)
	require.NoError(t, err)

	first, err := s.SignMessage([]byte("gm"))
	require.NoError(t, err)
	second, err := s.SignMessage([]byte("gm"))
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(first), hex.EncodeToString(second))
}
