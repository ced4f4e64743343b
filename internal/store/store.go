// Package store is the single embedded persistence layer. It owns all
// durable state (§2/§6 of the spec): nodes/edges of the knowledge graph,
// market snapshots, the portfolio, trades, insights, and the audit log.
//
// SQLite is single-writer: db.SetMaxOpenConns(1) serializes all writes
// through one connection, and WAL journal mode still lets readers run
// concurrently with the in-flight writer. A process-wide ReentrantLock
// additionally serializes the multi-statement transactions described in
// spec §5 so a worker can call into nested helper methods that each
// start their own transaction without deadlocking itself.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	k TEXT PRIMARY KEY,
	v TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS nodes (
	node_id      TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	label        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	score        REAL NOT NULL DEFAULT 0,
	degree       INTEGER NOT NULL DEFAULT 0,
	last_touched DATETIME
);

CREATE TABLE IF NOT EXISTS edges (
	edge_id          INTEGER PRIMARY KEY AUTOINCREMENT,
	node_a           TEXT NOT NULL,
	node_b           TEXT NOT NULL,
	weight           REAL NOT NULL DEFAULT 0,
	top_channel      TEXT,
	last_assessed    DATETIME,
	assessment_count INTEGER NOT NULL DEFAULT 0,
	UNIQUE(node_a, node_b)
);

CREATE TABLE IF NOT EXISTS edge_channels (
	edge_id  INTEGER NOT NULL,
	channel  TEXT NOT NULL,
	strength REAL NOT NULL,
	PRIMARY KEY (edge_id, channel)
);

CREATE TABLE IF NOT EXISTS snapshots (
	snapshot_id     INTEGER PRIMARY KEY AUTOINCREMENT,
	ts              DATETIME NOT NULL,
	prices_json     TEXT NOT NULL,
	bells_json      TEXT NOT NULL,
	indicators_json TEXT NOT NULL,
	signals_json    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS portfolio (
	k TEXT PRIMARY KEY,
	v REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	symbol      TEXT PRIMARY KEY,
	qty         REAL NOT NULL,
	avg_cost    REAL NOT NULL,
	last_price  REAL NOT NULL,
	updated_at  DATETIME NOT NULL,
	executed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	trade_id  INTEGER PRIMARY KEY AUTOINCREMENT,
	ts        DATETIME NOT NULL,
	symbol    TEXT NOT NULL,
	side      TEXT NOT NULL,
	qty       REAL NOT NULL,
	price     REAL NOT NULL,
	notional  REAL NOT NULL,
	reason    TEXT NOT NULL DEFAULT '',
	insight_id TEXT
);

CREATE TABLE IF NOT EXISTS insights (
	insight_id          TEXT PRIMARY KEY,
	ts                  DATETIME NOT NULL,
	title               TEXT NOT NULL,
	body                TEXT NOT NULL,
	agents_json         TEXT NOT NULL,
	decisions_json      TEXT NOT NULL,
	confidence          REAL NOT NULL,
	critic_score        REAL NOT NULL,
	starred             INTEGER NOT NULL DEFAULT 0,
	status              TEXT NOT NULL,
	evidence_snapshot_id INTEGER
);

CREATE TABLE IF NOT EXISTS dream_log (
	log_id  INTEGER PRIMARY KEY AUTOINCREMENT,
	ts      DATETIME NOT NULL,
	actor   TEXT NOT NULL,
	action  TEXT NOT NULL,
	detail  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS ticker_lookups (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol    TEXT NOT NULL,
	ts        DATETIME NOT NULL,
	price     REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_edges_a ON edges(node_a);
CREATE INDEX IF NOT EXISTS idx_edges_b ON edges(node_b);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(ts DESC);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_insights_ts ON insights(ts DESC);
`

// SnapshotTailWindow is the number of most-recent snapshot rows retained.
const SnapshotTailWindow = 1500

// ReentrantLock is a process-wide write lock that a single goroutine may
// re-acquire without deadlocking itself, modeling the spec's "process-wide
// reentrant write lock" around the single SQLite writer connection.
type ReentrantLock struct {
	mu     sync.Mutex
	owner  uint64
	depth  int
	nextID uint64
	idMu   sync.Mutex
}

type lockTokenKey struct{}

// Acquire locks for the calling logical owner (identified by a token
// carried in ctx), returning a context carrying that token and a release
// function. A context that already carries this lock's token re-enters
// without blocking.
func (l *ReentrantLock) Acquire(ctx context.Context) (context.Context, func()) {
	if tok, ok := ctx.Value(lockTokenKey{}).(*ReentrantLock); ok && tok == l {
		l.idMu.Lock()
		l.depth++
		l.idMu.Unlock()
		return ctx, func() {
			l.idMu.Lock()
			l.depth--
			l.idMu.Unlock()
		}
	}
	l.mu.Lock()
	return context.WithValue(ctx, lockTokenKey{}, l), l.mu.Unlock
}

// Store is the embedded SQLite-backed persistence layer.
type Store struct {
	db   *sql.DB
	lock *ReentrantLock
}

// Open opens (or creates) the database at path, applies the schema, and
// enables WAL journal mode for reader concurrency alongside the single
// writer connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store.Open: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.Open: enable WAL: %w", err)
	}

	s := &Store{db: db, lock: &ReentrantLock{}}
	if err := s.InitDB(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitDB creates all tables idempotently and seeds cash if absent.
func (s *Store) InitDB(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store.InitDB: apply schema: %w", err)
	}
	return s.seedCashIfAbsent(ctx)
}

func (s *Store) seedCashIfAbsent(ctx context.Context, startCash ...float64) error {
	cash := 100000.0
	if len(startCash) > 0 {
		cash = startCash[0]
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO portfolio (k, v) VALUES ('cash', ?) ON CONFLICT(k) DO NOTHING`, cash)
	if err != nil {
		return fmt.Errorf("store.seedCashIfAbsent: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for packages that need raw access
// (e.g. the reconciliation CLI's read-only queries).
func (s *Store) DB() *sql.DB { return s.db }

// withWriteLock runs fn while holding the store's reentrant write lock,
// matching the "single-writer lock" concurrency model of spec §5.
func (s *Store) withWriteLock(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, release := s.lock.Acquire(ctx)
	defer release()
	return fn(ctx)
}
