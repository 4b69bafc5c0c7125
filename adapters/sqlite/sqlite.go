// Package sqlite persists compiled models in SQLite. Registering a model
// derives its table, foreign key columns, junction tables and indexes from
// the resolved field list; repositories then speak plain SQL against that
// layout.
//
// Layout rules: a many-to-one field f keeps its foreign key in column
// "_<f>_pk" on the declaring table; a one-to-many field puts the foreign key
// "_<owner unique name>_pk" on the target's table; a scalar collection f
// lives in junction table "<owner unique name>_<f>", one row per element.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/artpar/stratum/core/model"
	"github.com/artpar/stratum/ports"
)

// Backend maps registered models onto one SQLite database.
type Backend struct {
	db  *sql.DB
	log zerolog.Logger

	mu      sync.Mutex
	tables  map[string]*tableInfo
	repos   map[string]*Repository
	pending map[string][]pendingColumn
	tx      *sql.Tx
}

// tableInfo is the derived physical layout of one registered model.
type tableInfo struct {
	model *model.Model
	name  string

	// pkColumn is the identity column: the declared field's name, or "pk"
	// for a synthesized identity.
	pkColumn string

	// junctions maps scalar collection field names to their table names.
	junctions map[string]string
}

// pendingColumn is a foreign key column owed to a table whose model has not
// been registered yet.
type pendingColumn struct {
	column string
	ownsFK string // table the column references
}

// Open opens (or creates) the database at path.
func Open(path string, log zerolog.Logger) (*Backend, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return NewFromDB(db, log), nil
}

// NewFromDB wraps an existing connection.
func NewFromDB(db *sql.DB, log zerolog.Logger) *Backend {
	return &Backend{
		db:      db,
		log:     log,
		tables:  make(map[string]*tableInfo),
		repos:   make(map[string]*Repository),
		pending: make(map[string][]pendingColumn),
	}
}

// Register derives and creates the physical schema for a model.
func (b *Backend) Register(ctx context.Context, m *model.Model) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := m.UniqueName()
	if _, dup := b.tables[name]; dup {
		return &ports.BackendError{Op: "register", Err: fmt.Errorf("model %q already registered", name)}
	}

	info := &tableInfo{
		model:     m,
		name:      name,
		pkColumn:  pkColumn(m),
		junctions: make(map[string]string),
	}

	stmts, err := b.schemaSQL(ctx, m, info)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := b.q().ExecContext(ctx, stmt); err != nil {
			return &ports.BackendError{Op: "register", Err: fmt.Errorf("exec %q: %w", stmt, err)}
		}
	}

	b.tables[name] = info
	b.repos[name] = &Repository{backend: b, model: m, info: info}
	b.log.Debug().Str("model", name).Int("statements", len(stmts)).Msg("sqlite: registered model")
	return nil
}

// Repository returns the repository for a registered model.
func (b *Backend) Repository(m *model.Model) (ports.Repository, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	repo, ok := b.repos[m.UniqueName()]
	if !ok {
		return nil, &ports.BackendError{Op: "repository", Err: fmt.Errorf("model %q not registered", m.UniqueName())}
	}
	return repo, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx, so repository code runs
// unchanged inside and outside a unit of work.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns the active transaction when a unit of work is open, the plain
// connection otherwise. Callers hold b.mu or tolerate the race on reads.
func (b *Backend) q() queryer {
	if b.tx != nil {
		return b.tx
	}
	return b.db
}

func (b *Backend) table(m *model.Model) (*tableInfo, error) {
	info, ok := b.tables[m.UniqueName()]
	if !ok {
		return nil, &ports.BackendError{Op: "table", Err: fmt.Errorf("model %q not registered", m.UniqueName())}
	}
	return info, nil
}
