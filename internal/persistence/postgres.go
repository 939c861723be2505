package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/workforge/flowengine/internal/execution"
)

// executionRow is the sqlx-mapped row shape backing the Postgres State
// Persistence backend.
type executionRow struct {
	ExecutionID  string    `db:"execution_id"`
	WorkflowID   string    `db:"workflow_id"`
	Discipline   string    `db:"discipline"`
	Status       string    `db:"status"`
	Snapshot     []byte    `db:"snapshot"`
	ErrorMessage string    `db:"error_message"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// PostgresStore is a secondary State Persistence backend for deployments
// that already run Postgres (sqlx.Connect, NamedExec CRUD shape).
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresStore connects to databaseURL and configures a bounded pool.
func NewPostgresStore(databaseURL string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db, logger: logger.With(zap.String("component", "persistence_postgres"))}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

// Save upserts exec's current snapshot.
func (p *PostgresStore) Save(ctx context.Context, exec *execution.Execution) error {
	data, err := marshal(exec)
	if err != nil {
		return fmt.Errorf("marshaling execution snapshot: %w", err)
	}

	row := executionRow{
		ExecutionID:  exec.ExecutionID,
		WorkflowID:   exec.WorkflowID,
		Discipline:   exec.Discipline,
		Status:       string(exec.Status()),
		Snapshot:     data,
		ErrorMessage: exec.ErrorMessage(),
		UpdatedAt:    time.Now(),
	}

	query := `
		INSERT INTO flowengine_executions (execution_id, workflow_id, discipline, status, snapshot, error_message, updated_at)
		VALUES (:execution_id, :workflow_id, :discipline, :status, :snapshot, :error_message, :updated_at)
		ON CONFLICT (execution_id) DO UPDATE SET
			status = EXCLUDED.status,
			snapshot = EXCLUDED.snapshot,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at
	`
	_, err = p.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("upserting execution snapshot: %w", err)
	}
	return nil
}

// Delete removes executionID's row.
func (p *PostgresStore) Delete(ctx context.Context, executionID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM flowengine_executions WHERE execution_id = $1`, executionID)
	if err != nil {
		return fmt.Errorf("deleting execution snapshot: %w", err)
	}
	return nil
}

// LoadAll reads every stored snapshot back into Records.
func (p *PostgresStore) LoadAll(ctx context.Context) ([]Record, error) {
	var rows []executionRow
	if err := p.db.SelectContext(ctx, &rows, `SELECT execution_id, workflow_id, discipline, status, snapshot, error_message, updated_at FROM flowengine_executions`); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("loading execution snapshots: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		var rec Record
		if err := json.Unmarshal(row.Snapshot, &rec); err != nil {
			p.logger.Warn("skipping corrupt row", zap.String("execution_id", row.ExecutionID), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
