package farcaster

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// MessageSigner produces EIP-191 personal_sign signatures.
type MessageSigner interface {
	SignMessage(message []byte) ([]byte, error)
}

// Token is a bearer credential for write calls.
type Token struct {
	Secret    string
	ExpiresAt time.Time
}

// tokenPayload marshals to canonical JSON: keys in lexicographic order, no
// whitespace. Field order matters.
type tokenPayload struct {
	Method string      `json:"method"`
	Params tokenParams `json:"params"`
}

type tokenParams struct {
	Timestamp int64 `json:"timestamp"`
}

type tokenResponse struct {
	Result struct {
		Token struct {
			Secret    string `json:"secret"`
			ExpiresAt int64  `json:"expiresAt"`
		} `json:"token"`
	} `json:"result"`
}

// GenerateTokenPayload returns the message signed for a token request at now.
func GenerateTokenPayload(now time.Time) ([]byte, error) {
	return json.Marshal(tokenPayload{
		Method: "generateToken",
		Params: tokenParams{Timestamp: now.UnixMilli()},
	})
}

// GenerateToken exchanges a signature from the custody key for a bearer token.
func (c *Client) GenerateToken(ctx context.Context, signer MessageSigner, now time.Time) (*Token, error) {
	payload, err := GenerateTokenPayload(now)
	if err != nil {
		return nil, err
	}
	sig, err := signer.SignMessage(payload)
	if err != nil {
		return nil, fmt.Errorf("sign token request: %w", err)
	}
	header := http.Header{
		"Authorization": {"Bearer eip191:" + base64.StdEncoding.EncodeToString(sig)},
	}

	const path = "/v2/auth"
	var out tokenResponse
	if err := c.do(ctx, c.writes, http.MethodPut, c.baseURL+path, path, payload, header, &out); err != nil {
		return nil, err
	}
	if out.Result.Token.Secret == "" {
		return nil, fmt.Errorf("farcaster %s: response carried no token", path)
	}

	tok := &Token{Secret: out.Result.Token.Secret}
	if out.Result.Token.ExpiresAt > 0 {
		tok.ExpiresAt = time.UnixMilli(out.Result.Token.ExpiresAt).UTC()
	}
	return tok, nil
}
