package farcaster

import (
	"context"
	"encoding/json"
	"net/http"
)

type recastRequest struct {
	CastHash string `json:"castHash"`
}

// Recast re-shares the cast identified by castHash as the token's owner.
func (c *Client) Recast(ctx context.Context, castHash string) error {
	header, err := c.bearer()
	if err != nil {
		return err
	}
	body, err := json.Marshal(recastRequest{CastHash: castHash})
	if err != nil {
		return err
	}
	const path = "/v2/recasts"
	return c.do(ctx, c.writes, http.MethodPut, c.baseURL+path, path, body, header, nil)
}
