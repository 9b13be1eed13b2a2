// Package registry reads newly created accounts from the Postgres account
// registry.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ncbot/internal/farcaster"
	"ncbot/internal/recast"
	"ncbot/pkg/logging"
	"ncbot/pkg/pagination"
)

// DefaultView is the registry view exposing one row per account.
const DefaultView = "account_view"

// Store lists accounts from the registry view. entry_created_at is unix seconds.
type Store struct {
	db       *sql.DB
	view     string
	pageSize int
	keyset   pagination.KeysetBuilder
	logger   logging.Logger
}

type Option func(*Store)

// WithView reads from another relation with the same columns.
func WithView(view string) Option {
	return func(s *Store) {
		if view != "" {
			s.view = view
		}
	}
}

// WithPageSize sets how many rows each query fetches.
func WithPageSize(n int) Option {
	return func(s *Store) {
		s.pageSize = pagination.ClampLimit(n)
	}
}

func NewStore(db *sql.DB, logger logging.Logger, opts ...Option) *Store {
	s := &Store{
		db:       db,
		view:     DefaultView,
		pageSize: pagination.MaxLimit,
		keyset:   pagination.KeysetBuilder{SortColumn: "entry_created_at", IDColumn: "address"},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewAccounts returns accounts registered after since, oldest first. Any
// query failure is returned; the caller treats it as fatal.
func (s *Store) NewAccounts(ctx context.Context, since time.Time) ([]recast.Account, error) {
	params := &pagination.Params{Limit: s.pageSize, Direction: pagination.Backward}
	var accounts []recast.Account

	for {
		page, err := s.page(ctx, since, params)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, page...)
		if len(page) < params.Limit {
			break
		}
		last := page[len(page)-1]
		params.Cursor = &pagination.Cursor{
			SortKey:   last.CreatedAt.Unix(),
			ID:        last.Address,
			IsSortKey: true,
		}
	}

	s.logger.WithFields(logging.Fields{
		"since":    since,
		"accounts": len(accounts),
	}).Debug("Loaded new accounts")
	return accounts, nil
}

func (s *Store) page(ctx context.Context, since time.Time, params *pagination.Params) ([]recast.Account, error) {
	where := []string{"entry_created_at > $1"}
	args := []interface{}{since.Unix()}
	if cond, condArgs := s.keyset.Condition(params, len(args)+1); cond != "" {
		where = append(where, cond)
		args = append(args, condArgs...)
	}
	args = append(args, params.Limit)

	query := fmt.Sprintf(`
		SELECT username, address, entry_created_at
		FROM %s
		WHERE %s
		%s
		LIMIT $%d`,
		s.view, strings.Join(where, " AND "), s.keyset.OrderBy(params), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.view, err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []recast.Account
	for rows.Next() {
		var (
			username  sql.NullString
			address   string
			createdAt int64
		)
		if err := rows.Scan(&username, &address, &createdAt); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", s.view, err)
		}
		accounts = append(accounts, recast.Account{
			// History is keyed by address, so the address doubles as the ID.
			ID:        farcaster.NormalizeAddress(address),
			Handle:    username.String,
			Address:   address,
			CreatedAt: time.Unix(createdAt, 0).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.view, err)
	}
	return accounts, nil
}
