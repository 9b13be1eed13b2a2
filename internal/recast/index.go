package recast

import (
	"context"
	"errors"
	"time"

	"ncbot/pkg/logging"
	"ncbot/pkg/pagination"
)

// IndexStats summarizes one index build.
type IndexStats struct {
	Pages   int
	Scanned int
	// Indexed counts own posts folded into the index.
	Indexed int
	// Unattributed counts own posts that are not recasts, or recasts whose
	// original could not be identified.
	Unattributed int
	// IDOnly counts recasts whose original is known by ID but not by author,
	// as with legacy text recasts. They block that post but move no watermark.
	IDOnly int
	// OutsideWindow counts recasts of originals older than the window.
	OutsideWindow int
	// CrossedThreshold is set when the scan stopped on an old post rather
	// than at the end of history.
	CrossedThreshold bool
	// Err is the fetch error that cut the scan short, if any. The index is
	// still returned and holds everything read before the failure.
	Err error
}

// Partial reports whether pagination ended on a failure.
func (s IndexStats) Partial() bool {
	return s.Err != nil
}

// BuildIndex rebuilds the recast watermark index from the operator's own
// history. Pages are read newest first; the scan stops at the first own post
// published before now-window, or when the history runs out. Only recasts
// whose original was published inside the window are counted; every recast
// original's ID is recorded regardless.
//
// A page fetch failure ends the scan and keeps what was gathered so far.
func BuildIndex(ctx context.Context, reader HistoryReader, selfID string, window time.Duration, now time.Time, logger logging.Logger) (Index, IndexStats) {
	threshold := now.Add(-window)
	idx := newIndex()
	var stats IndexStats

	pager := pagination.NewPager(func(ctx context.Context, cursor string) (*Page, error) {
		return reader.FetchPage(ctx, selfID, cursor)
	})

	for page := range pager.All(ctx) {
		for _, post := range page.Items {
			if post.PublishedAt.Before(threshold) {
				stats.CrossedThreshold = true
				break
			}
			stats.Scanned++

			original, ok := recastTarget(post)
			if !ok {
				stats.Unattributed++
				continue
			}
			idx.observePost(original.ID)
			if original.AuthorID == "" {
				stats.IDOnly++
				continue
			}
			if original.PublishedAt.Before(threshold) {
				stats.OutsideWindow++
				continue
			}
			idx.observe(original.AuthorID, original.PublishedAt)
			stats.Indexed++
		}
		if stats.CrossedThreshold {
			break
		}
	}
	stats.Pages = pager.Pages()

	if err := pager.Err(); err != nil {
		stats.Err = err
		log := logger.WithError(err).WithFields(logging.Fields{
			"account_id": selfID,
			"pages":      stats.Pages,
		})
		if errors.Is(err, pagination.ErrCursorLoop) {
			log.Warn("Own history returned a repeated cursor; index built from pages read so far")
		} else {
			log.Warn("Could not fetch own history; index built from pages read so far")
		}
	}

	return idx, stats
}

// recastTarget resolves the post an own recast points at. The original may
// carry only an ID.
func recastTarget(post Post) (Post, bool) {
	if !post.IsRecast || post.Original == nil {
		return Post{}, false
	}
	if post.Original.ID == "" && post.Original.AuthorID == "" {
		return Post{}, false
	}
	return *post.Original, true
}
