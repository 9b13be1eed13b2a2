package recast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ncbot/pkg/logging"
	"ncbot/pkg/pagination"
)

func TestBuildIndexWatermarkAndCount(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newFakeHistory("self", func() time.Time { return now })

	t1 := now.Add(-5 * time.Hour)
	t2 := now.Add(-3 * time.Hour)
	// Newest first, but the older original arrives first to check the max.
	h.add("self",
		ownRecast("r3", now.Add(-time.Hour), rootPost("b1", "bob", now.Add(-2*time.Hour))),
		ownRecast("r2", now.Add(-2*time.Hour), rootPost("a1", "alice", t1)),
		ownRecast("r1", now.Add(-4*time.Hour), rootPost("a2", "alice", t2)),
		rootPost("own", "self", now.Add(-6*time.Hour)),
	)

	idx, stats := BuildIndex(context.Background(), h, "self", 72*time.Hour, now, logging.NewDiscardLogger())

	require.NoError(t, stats.Err)
	require.Equal(t, IndexEntry{LastTimestamp: t2, Count: 2}, entryOf(idx, "alice"))
	require.Equal(t, 1, entryOf(idx, "bob").Count)
	require.Equal(t, 2, idx.Authors())
	require.True(t, idx.Recasted("a1"))
	require.False(t, idx.Recasted("own"))
	require.Equal(t, 3, stats.Indexed)
	require.Equal(t, 1, stats.Unattributed)
	require.Equal(t, 2, stats.Pages)
	require.False(t, stats.CrossedThreshold)
}

func TestBuildIndexStopsAtThreshold(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newFakeHistory("self", func() time.Time { return now })
	h.pageSize = 3

	h.add("self",
		ownRecast("r1", now.Add(-time.Hour), rootPost("a1", "alice", now.Add(-2*time.Hour))),
		ownRecast("r2", now.Add(-80*time.Hour), rootPost("a2", "alice", now.Add(-81*time.Hour))),
		ownRecast("r3", now.Add(-81*time.Hour), rootPost("a3", "alice", now.Add(-82*time.Hour))),
		ownRecast("r4", now.Add(-90*time.Hour), rootPost("a4", "alice", now.Add(-91*time.Hour))),
	)

	idx, stats := BuildIndex(context.Background(), h, "self", 72*time.Hour, now, logging.NewDiscardLogger())

	require.True(t, stats.CrossedThreshold)
	require.Equal(t, 1, stats.Pages, "second page must not be requested")
	require.Equal(t, 1, h.calls["self"])
	require.Equal(t, 1, entryOf(idx, "alice").Count)
}

func TestBuildIndexExcludesOldOriginals(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newFakeHistory("self", func() time.Time { return now })

	h.add("self",
		ownRecast("r1", now.Add(-time.Hour), rootPost("old", "alice", now.Add(-100*time.Hour))),
		ownRecast("r2", now.Add(-2*time.Hour), rootPost("new", "carol", now.Add(-3*time.Hour))),
	)

	idx, stats := BuildIndex(context.Background(), h, "self", 72*time.Hour, now, logging.NewDiscardLogger())

	_, ok := idx.Lookup("alice")
	require.False(t, ok)
	require.Equal(t, 1, stats.OutsideWindow)
	require.Equal(t, 1, entryOf(idx, "carol").Count)
}

func TestBuildIndexKeepsPartialIndexOnFailure(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newFakeHistory("self", func() time.Time { return now })
	h.failAt["self"] = 2

	h.add("self",
		ownRecast("r1", now.Add(-time.Hour), rootPost("a1", "alice", now.Add(-2*time.Hour))),
		ownRecast("r2", now.Add(-2*time.Hour), rootPost("b1", "bob", now.Add(-3*time.Hour))),
		ownRecast("r3", now.Add(-3*time.Hour), rootPost("c1", "carol", now.Add(-4*time.Hour))),
	)

	idx, stats := BuildIndex(context.Background(), h, "self", 72*time.Hour, now, logging.NewDiscardLogger())

	require.ErrorIs(t, stats.Err, errUpstream)
	require.True(t, stats.Partial())
	require.Equal(t, 2, idx.Authors())
	_, ok := idx.Lookup("carol")
	require.False(t, ok)
}

func TestBuildIndexRecordsLegacyTextRecasts(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newFakeHistory("self", func() time.Time { return now })

	legacy := Post{ID: "r1", AuthorID: "self", PublishedAt: now.Add(-time.Hour), IsRecast: true,
		Text: "recast:farcaster://casts/0xlegacy", Original: &Post{ID: "0xlegacy"}}
	h.add("self",
		legacy,
		ownRecast("r2", now.Add(-2*time.Hour), rootPost("a1", "alice", now.Add(-3*time.Hour))),
	)

	idx, stats := BuildIndex(context.Background(), h, "self", 72*time.Hour, now, logging.NewDiscardLogger())

	require.True(t, idx.Recasted("0xlegacy"))
	require.Equal(t, 1, stats.IDOnly)
	require.Equal(t, 1, stats.Indexed)
	require.Equal(t, 1, idx.Authors(), "an ID-only recast moves no author watermark")
}

func entryOf(idx Index, author string) IndexEntry {
	e, _ := idx.Lookup(author)
	return e
}

type loopingHistory struct{ calls int }

func (l *loopingHistory) FetchPage(_ context.Context, _, _ string) (*Page, error) {
	l.calls++
	return &Page{NextCursor: "same"}, nil
}

func TestBuildIndexStopsOnRepeatedCursor(t *testing.T) {
	h := &loopingHistory{}

	_, stats := BuildIndex(context.Background(), h, "self", time.Hour, time.Now(), logging.NewDiscardLogger())

	require.ErrorIs(t, stats.Err, pagination.ErrCursorLoop)
	require.Equal(t, 2, h.calls)
}
