package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

const defaultListLimit = 20

type EvalRunRepository struct {
	db *sql.DB
}

func NewEvalRunRepository(db *sql.DB) *EvalRunRepository {
	return &EvalRunRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *EvalRunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent ragctl/api startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS eval_runs (
	id TEXT PRIMARY KEY,
	total INTEGER NOT NULL,
	configs JSONB NOT NULL DEFAULT '[]'::jsonb,
	report JSONB NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_eval_runs_started_at ON eval_runs(started_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *EvalRunRepository) SaveReport(ctx context.Context, report *domain.EvalReport) error {
	if report == nil || report.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save eval report", errors.New("report id is required"))
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	configsJSON, err := json.Marshal(configNames(report))
	if err != nil {
		return fmt.Errorf("marshal configs: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO eval_runs (id, total, configs, report, started_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
	total = EXCLUDED.total,
	configs = EXCLUDED.configs,
	report = EXCLUDED.report,
	started_at = EXCLUDED.started_at,
	finished_at = EXCLUDED.finished_at
`,
		report.ID, report.Total, configsJSON, reportJSON, report.StartedAt, report.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert eval run: %w", err)
	}
	return nil
}

func (r *EvalRunRepository) GetReport(ctx context.Context, id string) (*domain.EvalReport, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT report
FROM eval_runs
WHERE id = $1
`, id)

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get eval report", fmt.Errorf("eval run not found: %s", id))
		}
		return nil, fmt.Errorf("scan eval run: %w", err)
	}

	var report domain.EvalReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, nil
}

func (r *EvalRunRepository) ListRuns(ctx context.Context, limit int) ([]domain.EvalRunSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, total, configs, started_at, finished_at
FROM eval_runs
ORDER BY started_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query eval runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.EvalRunSummary, 0, limit)
	for rows.Next() {
		var (
			run        domain.EvalRunSummary
			configsRaw []byte
		)
		if err := rows.Scan(&run.ID, &run.Total, &configsRaw, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan eval run: %w", err)
		}
		if len(configsRaw) > 0 {
			if err := json.Unmarshal(configsRaw, &run.Configs); err != nil {
				return nil, fmt.Errorf("unmarshal configs: %w", err)
			}
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eval runs: %w", err)
	}
	return out, nil
}

func configNames(report *domain.EvalReport) []string {
	names := make([]string, 0, len(report.Results))
	for _, res := range report.Results {
		names = append(names, res.Config.Name)
	}
	return names
}
