package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const defaultHistoryTable = "schema_history"

// Kinds recorded in the history table.
const (
	kindMigration = "migration"
	kindSeed      = "seed"
)

// Manager applies SQL migration and seed files from disk, recording each
// applied file in a single history table so reruns are idempotent.
type Manager struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
	historyTable  string
}

// Option configures Manager.
type Option func(*Manager)

// WithHistoryTable overrides the bookkeeping table name.
func WithHistoryTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.historyTable = name
		}
	}
}

// NewManager constructs a Manager over the given directories.
func NewManager(db *sql.DB, migrationsDir, seedsDir string, opts ...Option) *Manager {
	m := &Manager{
		db:            db,
		migrationsDir: migrationsDir,
		seedsDir:      seedsDir,
		historyTable:  defaultHistoryTable,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies every *.up.sql file not yet recorded, in lexical order.
func (m *Manager) Up(ctx context.Context) error {
	if err := m.ensureHistory(ctx); err != nil {
		return err
	}
	applied, err := m.appliedSet(ctx, kindMigration)
	if err != nil {
		return err
	}
	files, err := sqlFiles(m.migrationsDir, ".up.sql")
	if err != nil {
		return err
	}
	for _, f := range files {
		if applied[f.name] {
			continue
		}
		if err := m.runFile(ctx, f.path); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.name, err)
		}
		if err := m.record(ctx, kindMigration, f.name); err != nil {
			return err
		}
	}
	return nil
}

// Down rolls back the most recently applied migration using its *.down.sql
// counterpart.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.ensureHistory(ctx); err != nil {
		return err
	}
	applied, err := m.appliedList(ctx, kindMigration)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return errors.New("no migrations applied")
	}
	last := applied[len(applied)-1]
	down := strings.TrimSuffix(filepath.Join(m.migrationsDir, last), ".up.sql") + ".down.sql"
	if _, err := os.Stat(down); err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	if err := m.runFile(ctx, down); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	_, err = m.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where kind = $1 and name = $2`, m.historyTable),
		kindMigration, last)
	return err
}

// Seed applies every *.sql file from the seeds directory not yet recorded.
func (m *Manager) Seed(ctx context.Context) error {
	if err := m.ensureHistory(ctx); err != nil {
		return err
	}
	applied, err := m.appliedSet(ctx, kindSeed)
	if err != nil {
		return err
	}
	files, err := sqlFiles(m.seedsDir, ".sql")
	if err != nil {
		return err
	}
	for _, f := range files {
		if applied[f.name] {
			continue
		}
		if err := m.runFile(ctx, f.path); err != nil {
			return fmt.Errorf("apply seed %s: %w", f.name, err)
		}
		if err := m.record(ctx, kindSeed, f.name); err != nil {
			return err
		}
	}
	return nil
}

// Status returns applied migrations in application order.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureHistory(ctx); err != nil {
		return nil, err
	}
	return m.appliedList(ctx, kindMigration)
}

func (m *Manager) ensureHistory(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		create table if not exists %s (
			kind text not null,
			name text not null,
			applied_at timestamptz not null default now(),
			primary key (kind, name)
		);`, m.historyTable)
	_, err := m.db.ExecContext(ctx, ddl)
	return err
}

// runFile executes one SQL file inside a transaction.
func (m *Manager) runFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) record(ctx context.Context, kind, name string) error {
	_, err := m.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s(kind, name, applied_at) values ($1, $2, $3)`, m.historyTable),
		kind, name, time.Now().UTC())
	return err
}

func (m *Manager) appliedSet(ctx context.Context, kind string) (map[string]bool, error) {
	names, err := m.appliedList(ctx, kind)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

func (m *Manager) appliedList(ctx context.Context, kind string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s where kind = $1 order by applied_at, name`, m.historyTable), kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

type sqlFile struct {
	name string
	path string
}

func sqlFiles(dir, suffix string) ([]sqlFile, error) {
	if dir == "" {
		return nil, nil
	}
	var files []sqlFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), suffix) {
			files = append(files, sqlFile{name: d.Name(), path: path})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

// splitStatements splits a file into statements on semicolons outside string
// literals. Line comments are dropped so a semicolon in a comment does not
// split a statement.
func splitStatements(src string) []string {
	var (
		stmts   []string
		cur     strings.Builder
		inStr   bool
		lines   = strings.Split(src, "\n")
		flushed = func() {
			if strings.TrimSpace(cur.String()) != "" {
				stmts = append(stmts, cur.String())
			}
			cur.Reset()
		}
	)
	for _, line := range lines {
		if !inStr {
			if i := strings.Index(line, "--"); i >= 0 {
				line = line[:i]
			}
		}
		for _, r := range line {
			switch r {
			case '\'':
				inStr = !inStr
				cur.WriteRune(r)
			case ';':
				cur.WriteRune(r)
				if !inStr {
					flushed()
				}
			default:
				cur.WriteRune(r)
			}
		}
		cur.WriteRune('\n')
	}
	flushed()
	return stmts
}
