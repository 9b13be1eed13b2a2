package recast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

var errUpstream = errors.New("upstream unavailable")

// fakeHistory serves newest-first pages from in-memory feeds. Recasts sent
// through recaster() are appended to the self feed so reruns see them.
type fakeHistory struct {
	mu       sync.Mutex
	pageSize int
	feeds    map[string][]Post
	byID     map[string]Post
	selfID   string
	clock    func() time.Time
	// failAt makes the n-th page (1-based) of an account fail.
	failAt map[string]int
	calls  map[string]int
}

func newFakeHistory(selfID string, clock func() time.Time) *fakeHistory {
	return &fakeHistory{
		pageSize: 2,
		feeds:    map[string][]Post{},
		byID:     map[string]Post{},
		selfID:   selfID,
		clock:    clock,
		failAt:   map[string]int{},
		calls:    map[string]int{},
	}
}

// add stores posts; callers pass them newest first.
func (f *fakeHistory) add(accountID string, posts ...Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range posts {
		if p.AuthorID == "" {
			p.AuthorID = accountID
		}
		f.feeds[accountID] = append(f.feeds[accountID], p)
		f.byID[p.ID] = p
	}
}

func (f *fakeHistory) FetchPage(_ context.Context, accountID, cursor string) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[accountID]++
	if n, ok := f.failAt[accountID]; ok && f.calls[accountID] >= n {
		return nil, errUpstream
	}

	offset := 0
	if cursor != "" {
		var err error
		if offset, err = strconv.Atoi(cursor); err != nil {
			return nil, err
		}
	}
	feed := f.feeds[accountID]
	end := min(offset+f.pageSize, len(feed))
	page := &Page{Items: append([]Post(nil), feed[offset:end]...)}
	if end < len(feed) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (f *fakeHistory) recaster() *fakeRecaster {
	return &fakeRecaster{history: f}
}

type fakeRecaster struct {
	history *fakeHistory
	fail    map[string]bool
	sent    []string
}

func (r *fakeRecaster) Recast(_ context.Context, postID string) error {
	if r.fail[postID] {
		return fmt.Errorf("recast %s: %w", postID, errUpstream)
	}
	r.sent = append(r.sent, postID)
	if r.history == nil {
		return nil
	}

	h := r.history
	h.mu.Lock()
	original, ok := h.byID[postID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown post %s", postID)
	}
	own := Post{
		ID:          "recast-" + postID,
		AuthorID:    h.selfID,
		PublishedAt: h.clock(),
		IsRecast:    true,
		Original:    &original,
	}
	h.mu.Lock()
	h.feeds[h.selfID] = append([]Post{own}, h.feeds[h.selfID]...)
	h.mu.Unlock()
	return nil
}

type fakeAccounts struct {
	accounts []Account
	err      error
	since    time.Time
}

func (a *fakeAccounts) NewAccounts(_ context.Context, since time.Time) ([]Account, error) {
	a.since = since
	return a.accounts, a.err
}

type recordingSink struct {
	events []Event
	err    error
}

func (s *recordingSink) Record(_ context.Context, ev Event) error {
	s.events = append(s.events, ev)
	return s.err
}

func ownRecast(id string, at time.Time, original Post) Post {
	return Post{ID: id, AuthorID: "self", PublishedAt: at, IsRecast: true, Original: &original}
}

func rootPost(id, author string, at time.Time) Post {
	return Post{ID: id, AuthorID: author, PublishedAt: at, Text: "gm from " + id}
}
