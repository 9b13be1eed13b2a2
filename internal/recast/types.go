// Package recast decides which posts from newly registered accounts the
// operator should re-share, and dispatches those recasts under a
// per-account quota.
//
// A run rebuilds everything it needs from the operator's own history, so
// nothing is persisted between invocations: the watermark index derived from
// past recasts is what keeps reruns idempotent.
package recast

import (
	"context"
	"time"

	"ncbot/pkg/pagination"
)

// Account is a candidate produced by the account source.
type Account struct {
	ID        string
	Handle    string
	Address   string
	CreatedAt time.Time
}

// Post is a single cast as read from the upstream history endpoint.
type Post struct {
	ID           string
	AuthorID     string
	AuthorHandle string
	PublishedAt  time.Time
	Sequence     int64
	Text         string
	// ParentID is set for replies.
	ParentID    string
	IsRecast    bool
	RecastCount int
	// Original is the re-shared post when IsRecast and the upstream embeds it.
	Original *Post
}

// IsReply reports whether the post answers another post.
func (p Post) IsReply() bool {
	return p.ParentID != ""
}

// Page is one newest-first batch of a post history.
type Page = pagination.Page[Post]

// IndexEntry records what the operator already re-shared from one author.
type IndexEntry struct {
	// LastTimestamp is the newest original publish time already recast.
	LastTimestamp time.Time
	// Count is how many of the author's posts were recast inside the window.
	Count int
}

// Index holds the recast watermark per author plus the IDs of every original
// already recast. It is built once per run and read-only afterwards.
type Index struct {
	authors map[string]IndexEntry
	posts   map[string]struct{}
}

func newIndex() Index {
	return Index{authors: map[string]IndexEntry{}, posts: map[string]struct{}{}}
}

// Lookup returns the entry for an author, if one exists.
func (idx Index) Lookup(authorID string) (IndexEntry, bool) {
	e, ok := idx.authors[authorID]
	return e, ok
}

// Authors returns how many authors have an entry.
func (idx Index) Authors() int {
	return len(idx.authors)
}

// Recasted reports whether the post with this ID was already recast.
func (idx Index) Recasted(postID string) bool {
	_, ok := idx.posts[postID]
	return ok
}

// observe folds one already-recast post into the index: the count always
// grows, the watermark only moves forward.
func (idx Index) observe(authorID string, publishedAt time.Time) {
	e, ok := idx.authors[authorID]
	e.Count++
	if !ok || publishedAt.After(e.LastTimestamp) {
		e.LastTimestamp = publishedAt
	}
	idx.authors[authorID] = e
}

func (idx Index) observePost(postID string) {
	if postID != "" {
		idx.posts[postID] = struct{}{}
	}
}

// AccountSource yields accounts created after since. Errors are fatal for a run.
type AccountSource interface {
	NewAccounts(ctx context.Context, since time.Time) ([]Account, error)
}

// HistoryReader fetches one page of an account's posts, newest first.
// cursor is "" for the first page. A non-nil error means the page could not
// be read, as opposed to an empty page.
type HistoryReader interface {
	FetchPage(ctx context.Context, accountID, cursor string) (*Page, error)
}

// Recaster performs the signed re-share of one post.
type Recaster interface {
	Recast(ctx context.Context, postID string) error
}

// Outcome is what happened to one dispatched post.
type Outcome string

const (
	OutcomeRecasted Outcome = "recasted"
	OutcomeDryRun   Outcome = "dry_run"
	OutcomeFailed   Outcome = "failed"
)

// Event is the audit record emitted for every dispatch attempt.
type Event struct {
	EventID     string    `json:"event_id"`
	RunID       string    `json:"run_id"`
	AccountID   string    `json:"account_id"`
	Handle      string    `json:"handle"`
	PostID      string    `json:"post_id"`
	PublishedAt time.Time `json:"published_at"`
	Outcome     Outcome   `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventSink receives audit events. Sink errors are logged by the caller and
// never change the outcome of a dispatch.
type EventSink interface {
	Record(ctx context.Context, event Event) error
}
