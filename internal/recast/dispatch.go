package recast

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ncbot/pkg/logging"
)

// DispatchResult tallies one account's dispatch.
type DispatchResult struct {
	// Attempted is the number of posts sent to the recaster (or that would
	// have been, in dry run). It is what counts against the quota.
	Attempted int
	Recasted  int
	Failed    int
	// Deferred is how many eligible posts were left for a later run because
	// the account hit its quota.
	Deferred int
}

// Dispatcher sends eligible posts oldest first under a per-account quota.
// Failures are logged and counted, never retried within the run.
type Dispatcher struct {
	mode    Mode
	max     int
	runID   string
	sink    EventSink
	metrics *Metrics
	logger  logging.Logger
	now     func() time.Time
}

// NewDispatcher builds a dispatcher for one run. sink and metrics may be nil.
func NewDispatcher(mode Mode, maxPerAccount int, runID string, sink EventSink, metrics *Metrics, logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		mode:    mode,
		max:     maxPerAccount,
		runID:   runID,
		sink:    sink,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Dispatch walks posts, which must already be eligible and ordered oldest
// first. The quota counter starts at alreadyRecast, the account's count from
// the index, and grows by one per attempt whatever its outcome; once it
// reaches the cap the remaining posts are deferred.
func (d *Dispatcher) Dispatch(ctx context.Context, account Account, posts []Post, alreadyRecast int) DispatchResult {
	var res DispatchResult
	count := alreadyRecast
	log := d.logger.WithFields(logging.Fields{
		"run_id":     d.runID,
		"account_id": account.ID,
		"handle":     account.Handle,
	})

	for i, post := range posts {
		if count >= d.max {
			res.Deferred = len(posts) - i
			log.WithFields(logging.Fields{
				"recast_count": count,
				"deferred":     res.Deferred,
			}).Info("Per-account recast limit reached")
			break
		}
		if ctx.Err() != nil {
			res.Deferred = len(posts) - i
			log.WithError(ctx.Err()).Warn("Dispatch interrupted")
			break
		}

		count++
		res.Attempted++

		outcome, err := d.send(ctx, post)
		postLog := log.WithFields(logging.Fields{
			"post_id":      post.ID,
			"published_at": post.PublishedAt,
			"mode":         d.mode.String(),
		})
		switch outcome {
		case OutcomeRecasted:
			res.Recasted++
			postLog.Infof("Recasted @%s: %s", account.Handle, post.Text)
		case OutcomeDryRun:
			postLog.Infof("Would recast @%s: %s", account.Handle, post.Text)
		case OutcomeFailed:
			res.Failed++
			postLog.WithError(err).Warn("Recast failed")
		}
		d.metrics.recast(outcome)
		d.record(ctx, account, post, outcome, err)
	}

	d.metrics.deferred(res.Deferred)
	return res
}

func (d *Dispatcher) send(ctx context.Context, post Post) (Outcome, error) {
	if !d.mode.IsLive() {
		return OutcomeDryRun, nil
	}
	if err := d.mode.recaster.Recast(ctx, post.ID); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeRecasted, nil
}

func (d *Dispatcher) record(ctx context.Context, account Account, post Post, outcome Outcome, cause error) {
	if d.sink == nil {
		return
	}
	ev := Event{
		EventID:     uuid.NewString(),
		RunID:       d.runID,
		AccountID:   account.ID,
		Handle:      account.Handle,
		PostID:      post.ID,
		PublishedAt: post.PublishedAt,
		Outcome:     outcome,
		Timestamp:   d.now().UTC(),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	if err := d.sink.Record(ctx, ev); err != nil {
		d.logger.WithError(err).WithField("post_id", post.ID).Warn("Failed to record audit event")
	}
}
