/*
Package sqldb implements the cig store contracts and the registry CRUD layer
on top of database/sql.

PURPOSE:
  One implementation of every query, shared by the SQLite and PostgreSQL
  packages. Dialect differences (schema, placeholders, locking, error codes)
  are injected through Dialect.

INTERFACES IMPLEMENTED:
  cig.TxGroupStore: Group listing, counting, creation and record linking
  cig.TxCycleStore: Cycle bookkeeping and quantity sums

KEY TABLES:
  counties, wards, localities: Geographic hierarchy
  farmers, farms:              Registry (farm.locality_id is nullable)
  produce:                     Produce records, group_id set once
  cig_groups:                  Groups with an authoritative member_count
  cycles:                      Per-group seasonal aggregates

CAPACITY GUARD:
  LinkRecord claims a slot with a conditional UPDATE on cig_groups that only
  matches while the group's linked produce count is below Capacity, so the
  write itself refuses to overfill a group. Zero rows affected means another
  writer got there first (cig.ErrGroupFull). The same statement resyncs the
  cached member_count. The record link itself only matches while the
  record is pending and its stored locality and commodity equal the group's.

RECORD LOCALITY:
  produce.locality_id is copied from the farm on insert. UpdateFarm moves
  pending produce with the farm and leaves linked produce where it is.

SEQUENCE GUARD:
  UNIQUE(locality_id, commodity, seq) turns a duplicate group number into
  cig.ErrDuplicateGroup.

TIMESTAMPS:
  Stored as fixed-width UTC text (timeLayout) in every dialect, so range
  predicates compare lexically in chronological order.

SEE ALSO:
  - store/sqlite: SQLite dialect and drivers
  - store/postgres: PostgreSQL dialect (pgx)
  - cig/store.go: The contracts
*/
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agrilink/cig-engine/cig"
	"go.uber.org/zap"
)

// ErrInvalidReference is returned when a write names a parent row that does not exist.
var ErrInvalidReference = errors.New("invalid reference")

const timeLayout = "2006-01-02T15:04:05.000000Z"

// =============================================================================
// DIALECT
// =============================================================================

// Dialect captures what differs between database engines.
type Dialect struct {
	Name   string
	Schema []string

	// Placeholders rewrites "?" placeholders into the engine's syntax.
	Placeholders func(query string) string

	// LockKey serializes writers of one GroupKey for the rest of the transaction.
	// Nil when the engine already has a single writer.
	LockKey func(ctx context.Context, tx *sql.Tx, key cig.GroupKey) error

	IsUniqueViolation     func(error) bool
	IsForeignKeyViolation func(error) bool

	// IsConflict reports deadlock and serialization failures, which are
	// surfaced as cig.ErrConflict.
	IsConflict func(error) bool
}

// =============================================================================
// STORE
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs queries against either the pool or an open transaction.
type conn struct {
	q       querier
	tx      *sql.Tx
	dialect *Dialect
	now     func() time.Time
}

// Store implements the cig store contracts and the registry CRUD layer.
type Store struct {
	conn
	db     *sql.DB
	logger *zap.Logger
}

var (
	_ cig.TxGroupStore = (*Store)(nil)
	_ cig.TxCycleStore = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used to stamp rows. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open wraps db, applying the dialect schema.
func Open(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*Store, error) {
	d := dialect
	if d.Placeholders == nil {
		d.Placeholders = func(q string) string { return q }
	}
	if d.IsUniqueViolation == nil {
		d.IsUniqueViolation = func(error) bool { return false }
	}
	if d.IsForeignKeyViolation == nil {
		d.IsForeignKeyViolation = func(error) bool { return false }
	}
	if d.IsConflict == nil {
		d.IsConflict = func(error) bool { return false }
	}

	s := &Store{
		conn:   conn{q: db, dialect: &d, now: time.Now},
		db:     db,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	s.logger.Debug("store ready", zap.String("dialect", d.Name))
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
// If fn returns error, the transaction is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(cig.GroupStore) error) error {
	return s.inTx(ctx, func(c conn) error { return fn(c) })
}

// WithCycleTx executes fn within a database transaction.
func (s *Store) WithCycleTx(ctx context.Context, fn func(cig.CycleStore) error) error {
	return s.inTx(ctx, func(c conn) error { return fn(c) })
}

// InTx executes fn with a Store bound to one transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.inTx(ctx, func(c conn) error {
		return fn(&Store{conn: c, db: s.db, logger: s.logger})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(conn) error) error {
	if s.tx != nil {
		// Already inside a transaction; join it.
		return fn(s.conn)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(conn{q: sqlTx, tx: sqlTx, dialect: s.dialect, now: s.now}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", s.classify(err))
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.dialect.Placeholders(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.dialect.Placeholders(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.dialect.Placeholders(query), args...)
}

// insert runs an INSERT ... RETURNING id statement.
func (c conn) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := c.queryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, c.classify(err)
	}
	return id, nil
}

// affectOne turns a zero-row UPDATE/DELETE into ErrNotFound.
func (c conn) affectOne(res sql.Result, err error, what string, id int64) error {
	if err != nil {
		return c.classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, cig.ErrNotFound)
	}
	return nil
}

// classify maps driver constraint errors onto package errors.
func (c conn) classify(err error) error {
	switch {
	case err == nil, errors.Is(err, ErrInvalidReference):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return cig.ErrNotFound
	case c.dialect.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", ErrInvalidReference, err)
	case c.dialect.IsConflict(err):
		return fmt.Errorf("%w: %v", cig.ErrConflict, err)
	}
	return err
}

func (c conn) stamp() string {
	return formatTime(c.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
