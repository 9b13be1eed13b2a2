package recast

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"ncbot/pkg/logging"
	"ncbot/pkg/pagination"
)

// ErrAccountSource wraps failures loading candidate accounts. It is the only
// error that aborts a run.
var ErrAccountSource = errors.New("recast: account source failed")

// Summary reports what one run did.
type Summary struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	Mode       string    `json:"mode" yaml:"mode"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	AccountsLoaded    int `json:"accounts_loaded" yaml:"accounts_loaded"`
	AccountsSkipped   int `json:"accounts_skipped" yaml:"accounts_skipped"`
	AccountsProcessed int `json:"accounts_processed" yaml:"accounts_processed"`
	HistoryFailures   int `json:"history_failures" yaml:"history_failures"`

	IndexedAuthors int  `json:"indexed_authors" yaml:"indexed_authors"`
	IndexPartial   bool `json:"index_partial" yaml:"index_partial"`

	PostsExamined int            `json:"posts_examined" yaml:"posts_examined"`
	PostsEligible int            `json:"posts_eligible" yaml:"posts_eligible"`
	Rejected      map[Reason]int `json:"rejected" yaml:"rejected"`

	RecastsAttempted int `json:"recasts_attempted" yaml:"recasts_attempted"`
	RecastsSucceeded int `json:"recasts_succeeded" yaml:"recasts_succeeded"`
	RecastsFailed    int `json:"recasts_failed" yaml:"recasts_failed"`
	PostsDeferred    int `json:"posts_deferred" yaml:"posts_deferred"`
}

func (s *Summary) addDispatch(r DispatchResult) {
	s.RecastsAttempted += r.Attempted
	s.RecastsSucceeded += r.Recasted
	s.RecastsFailed += r.Failed
	s.PostsDeferred += r.Deferred
}

// Engine runs the discovery, eligibility and dispatch sequence. An Engine
// holds configuration only; every run starts from scratch.
type Engine struct {
	cfg      Config
	accounts AccountSource
	history  HistoryReader
	mode     Mode
	chain    *FilterChain
	sink     EventSink
	metrics  *Metrics
	logger   logging.Logger
	now      func() time.Time
	newRunID func() string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithEventSink sends one audit event per dispatch attempt to sink.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithMetrics records run metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine validates cfg and wires the engine's collaborators.
func NewEngine(cfg Config, accounts AccountSource, history HistoryReader, mode Mode, logger logging.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if accounts == nil || history == nil {
		return nil, fmt.Errorf("recast: account source and history reader are required")
	}
	e := &Engine{
		cfg:      cfg,
		accounts: accounts,
		history:  history,
		mode:     mode,
		chain:    NewFilterChain(cfg),
		logger:   logger,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Mode returns the dispatch mode the engine was built with.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Run executes one pass. Only an account source failure is returned as an
// error; history and dispatch failures are logged and reflected in the
// summary.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	now := e.now()
	sum := &Summary{
		RunID:     e.newRunID(),
		Mode:      e.mode.String(),
		StartedAt: now,
		Rejected:  make(map[Reason]int),
	}
	log := e.logger.WithFields(logging.Fields{"run_id": sum.RunID, "mode": sum.Mode})

	accounts, err := e.accounts.NewAccounts(ctx, now.Add(-e.cfg.DiscoveryWindow))
	if err != nil {
		sum.FinishedAt = e.now()
		e.metrics.runFinished(e.mode, "error", sum.StartedAt, sum.FinishedAt, 0)
		return sum, fmt.Errorf("%w: %w", ErrAccountSource, err)
	}
	sum.AccountsLoaded = len(accounts)
	log.Infof("There are %d new users created in the past %d hours.", len(accounts), int(e.cfg.DiscoveryWindow.Hours()))

	if len(accounts) == 0 {
		return e.finish(log, sum, 0), nil
	}

	index, stats := BuildIndex(ctx, e.history, e.cfg.SelfAccountID, e.cfg.DiscoveryWindow, now, e.logger)
	sum.IndexedAuthors = index.Authors()
	sum.IndexPartial = stats.Partial()
	if stats.Partial() {
		e.metrics.historyFailure("self")
	}
	log.WithFields(logging.Fields{
		"pages":          stats.Pages,
		"scanned":        stats.Scanned,
		"indexed":        stats.Indexed,
		"authors":        index.Authors(),
		"outside_window": stats.OutsideWindow,
		"id_only":        stats.IDOnly,
	}).Debug("Built recast index")

	dispatcher := NewDispatcher(e.mode, e.cfg.MaxRecastsPerAccount, sum.RunID, e.sink, e.metrics, e.logger)
	dispatcher.now = e.now

	for _, account := range accounts {
		if reason, skip := e.chain.SkipAccount(account); skip {
			sum.AccountsSkipped++
			e.metrics.account(string(reason))
			log.WithFields(logging.Fields{"handle": account.Handle, "reason": reason}).Debug("Skipping account")
			continue
		}

		posts, err := e.recentPosts(ctx, account.ID, now.Add(-e.cfg.CastWindow))
		if err != nil {
			sum.HistoryFailures++
			e.metrics.historyFailure("account")
			log.WithError(err).WithFields(logging.Fields{
				"account_id": account.ID,
				"handle":     account.Handle,
				"posts":      len(posts),
			}).Warn("Could not fetch account history; continuing with posts read so far")
		}
		sum.AccountsProcessed++
		e.metrics.account("processed")

		// Newest first from upstream; dispatch chronologically.
		slices.Reverse(posts)

		var eligible []Post
		for _, post := range posts {
			sum.PostsExamined++
			ok, reason := e.chain.Evaluate(post, account, index, now)
			e.metrics.post(ok, reason)
			if !ok {
				sum.Rejected[reason]++
				continue
			}
			eligible = append(eligible, post)
		}
		sum.PostsEligible += len(eligible)
		if len(eligible) == 0 {
			continue
		}

		entry, _ := index.Lookup(account.ID)
		sum.addDispatch(dispatcher.Dispatch(ctx, account, eligible, entry.Count))
	}

	return e.finish(log, sum, index.Authors()), nil
}

func (e *Engine) finish(log logging.Entry, sum *Summary, indexed int) *Summary {
	sum.FinishedAt = e.now()
	e.metrics.runFinished(e.mode, "success", sum.StartedAt, sum.FinishedAt, indexed)
	log.WithFields(logging.Fields{
		"accounts_processed": sum.AccountsProcessed,
		"accounts_skipped":   sum.AccountsSkipped,
		"posts_eligible":     sum.PostsEligible,
		"recasts_attempted":  sum.RecastsAttempted,
		"recasts_succeeded":  sum.RecastsSucceeded,
		"recasts_failed":     sum.RecastsFailed,
		"posts_deferred":     sum.PostsDeferred,
		"history_failures":   sum.HistoryFailures,
	}).Info("Done.")
	return sum
}

// recentPosts reads an account's history newest first until it passes
// since. A fetch failure returns the posts read so far with the error.
func (e *Engine) recentPosts(ctx context.Context, accountID string, since time.Time) ([]Post, error) {
	pager := pagination.NewPager(func(ctx context.Context, cursor string) (*Page, error) {
		return e.history.FetchPage(ctx, accountID, cursor)
	})

	var posts []Post
	for page := range pager.All(ctx) {
		crossed := false
		for _, post := range page.Items {
			if post.PublishedAt.Before(since) {
				crossed = true
				break
			}
			posts = append(posts, post)
		}
		if crossed {
			break
		}
	}
	return posts, pager.Err()
}
