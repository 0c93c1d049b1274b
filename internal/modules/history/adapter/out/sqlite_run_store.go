package out

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gocpl/internal/modules/history/domain"
	historyout "gocpl/internal/modules/history/port/out"

	_ "modernc.org/sqlite"
)

// Fixed width keeps the stored text in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRunStore struct {
	db *sql.DB
}

func NewSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers from concurrent invocations.
	db.SetMaxOpenConns(1)
	store := &SQLiteRunStore{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

var _ historyout.RunStore = (*SQLiteRunStore)(nil)

func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteRunStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  recipe TEXT NOT NULL,
  plugin TEXT,
  outcome TEXT NOT NULL,
  status INTEGER NOT NULL,
  error TEXT,
  started_at TEXT NOT NULL,
  finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_recipe_started ON runs (recipe, started_at);
CREATE TABLE IF NOT EXISTS run_outputs (
  run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  path TEXT NOT NULL,
  tag TEXT NOT NULL,
  PRIMARY KEY (run_id, position)
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create runs tables: %w", err)
	}
	return nil
}

func (s *SQLiteRunStore) Save(ctx context.Context, run domain.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run tx: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
INSERT INTO runs (id, recipe, plugin, outcome, status, error, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  recipe=excluded.recipe,
  plugin=excluded.plugin,
  outcome=excluded.outcome,
  status=excluded.status,
  error=excluded.error,
  started_at=excluded.started_at,
  finished_at=excluded.finished_at;
`
	_, err = tx.ExecContext(ctx, upsert,
		run.ID,
		run.Recipe,
		run.Plugin,
		string(run.Outcome),
		run.Status,
		run.Error,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_outputs WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("reset run outputs: %w", err)
	}
	for i, o := range run.Outputs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_outputs (run_id, position, path, tag) VALUES (?, ?, ?, ?)`, run.ID, i, o.Path, o.Tag); err != nil {
			return fmt.Errorf("insert run output: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

func (s *SQLiteRunStore) FindByID(ctx context.Context, id string) (domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, recipe, plugin, outcome, status, error, started_at, finished_at FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, fmt.Errorf("%s: %w", id, domain.ErrRunNotFound)
	}
	if err != nil {
		return domain.Run{}, err
	}
	if err := s.loadOutputs(ctx, []*domain.Run{&run}); err != nil {
		return domain.Run{}, err
	}
	return run, nil
}

func (s *SQLiteRunStore) List(ctx context.Context, filter domain.Filter) ([]domain.Run, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, recipe, plugin, outcome, status, error, started_at, finished_at FROM runs`)
	args := []any{}
	if filter.Recipe != "" {
		query.WriteString(` WHERE recipe = ?`)
		args = append(args, filter.Recipe)
	}
	query.WriteString(` ORDER BY started_at DESC, id DESC`)
	if filter.Limit > 0 {
		query.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	// The single connection must be free before outputs are queried.
	rows.Close()

	ptrs := make([]*domain.Run, len(runs))
	for i := range runs {
		ptrs[i] = &runs[i]
	}
	if err := s.loadOutputs(ctx, ptrs); err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *SQLiteRunStore) loadOutputs(ctx context.Context, runs []*domain.Run) error {
	for _, run := range runs {
		rows, err := s.db.QueryContext(ctx, `SELECT path, tag FROM run_outputs WHERE run_id = ? ORDER BY position`, run.ID)
		if err != nil {
			return fmt.Errorf("load outputs of %s: %w", run.ID, err)
		}
		for rows.Next() {
			var o domain.Output
			if err := rows.Scan(&o.Path, &o.Tag); err != nil {
				rows.Close()
				return fmt.Errorf("scan output: %w", err)
			}
			run.Outputs = append(run.Outputs, o)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("load outputs of %s: %w", run.ID, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (domain.Run, error) {
	var (
		run               domain.Run
		plugin, errText   sql.NullString
		outcome           string
		started, finished string
	)
	if err := row.Scan(&run.ID, &run.Recipe, &plugin, &outcome, &run.Status, &errText, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Run{}, err
		}
		return domain.Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Plugin = plugin.String
	run.Error = errText.String
	run.Outcome = domain.Outcome(outcome)
	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return domain.Run{}, fmt.Errorf("parse started_at of %s: %w", run.ID, err)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return domain.Run{}, fmt.Errorf("parse finished_at of %s: %w", run.ID, err)
	}
	return run, nil
}
