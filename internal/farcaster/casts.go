package farcaster

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ncbot/internal/recast"
	"ncbot/pkg/auth"
	"ncbot/pkg/logging"
)

// RecastURIPrefix opens the text of legacy recasts, which were published as
// ordinary casts pointing at the original by merkle root.
const RecastURIPrefix = "recast:farcaster://casts/"

type castBody struct {
	Address     string `json:"address"`
	Username    string `json:"username"`
	PublishedAt int64  `json:"publishedAt"`
	Sequence    int64  `json:"sequence"`
	Data        struct {
		Text                  string `json:"text"`
		ReplyParentMerkleRoot string `json:"replyParentMerkleRoot"`
	} `json:"data"`
}

type castMeta struct {
	Recast       bool  `json:"recast"`
	NumRecasts   int   `json:"numRecasts"`
	RecastedCast *cast `json:"recastedCast"`
}

type cast struct {
	MerkleRoot string   `json:"merkleRoot"`
	Body       castBody `json:"body"`
	Meta       castMeta `json:"meta"`
}

type castsResponse struct {
	Result struct {
		Casts []cast `json:"casts"`
	} `json:"result"`
	Meta struct {
		Next string `json:"next"`
	} `json:"meta"`
}

func (c cast) toPost() recast.Post {
	p := recast.Post{
		ID:           c.MerkleRoot,
		AuthorID:     NormalizeAddress(c.Body.Address),
		AuthorHandle: c.Body.Username,
		PublishedAt:  time.UnixMilli(c.Body.PublishedAt).UTC(),
		Sequence:     c.Body.Sequence,
		Text:         c.Body.Data.Text,
		ParentID:     c.Body.Data.ReplyParentMerkleRoot,
		IsRecast:     c.Meta.Recast || strings.HasPrefix(c.Body.Data.Text, RecastURIPrefix),
		RecastCount:  c.Meta.NumRecasts,
	}
	if c.Meta.RecastedCast != nil {
		original := c.Meta.RecastedCast.toPost()
		p.IsRecast = true
		p.Original = &original
	} else if root := legacyRecastRoot(c.Body.Data.Text); root != "" {
		p.Original = &recast.Post{ID: root}
	}
	return p
}

// legacyRecastRoot returns the merkle root a legacy recast points at, or "".
func legacyRecastRoot(text string) string {
	if !strings.HasPrefix(text, RecastURIPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(text, RecastURIPrefix))
}

// NormalizeAddress returns the EIP-55 form of an address, or the input
// unchanged when it is not a valid address.
func NormalizeAddress(addr string) string {
	if n, err := auth.NormalizeEthAddress(addr); err == nil {
		return n
	}
	return addr
}

// FetchPage reads one newest-first page of an account's casts. The cursor is
// the previous page's meta.next: an absolute URL is followed as is, anything
// else is passed as the cursor query parameter.
func (c *Client) FetchPage(ctx context.Context, accountID, cursor string) (*recast.Page, error) {
	path := "/v1/profiles/" + url.PathEscape(accountID) + "/casts"
	reqURL := c.baseURL + path
	switch {
	case isAbsoluteURL(cursor):
		reqURL = cursor
	case cursor != "":
		reqURL += "?cursor=" + url.QueryEscape(cursor)
	}

	var out castsResponse
	if err := c.do(ctx, c.reads, http.MethodGet, reqURL, path, nil, nil, &out); err != nil {
		return nil, err
	}

	page := &recast.Page{
		Items:      make([]recast.Post, 0, len(out.Result.Casts)),
		NextCursor: out.Meta.Next,
	}
	for _, cs := range out.Result.Casts {
		page.Items = append(page.Items, cs.toPost())
	}

	if c.logger != nil {
		c.logger.WithFields(logging.Fields{
			"account_id": accountID,
			"casts":      len(page.Items),
			"has_next":   page.HasNext(),
		}).Debug("Fetched cast page")
	}
	return page, nil
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
