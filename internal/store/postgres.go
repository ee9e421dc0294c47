package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/proposal-cli/internal/db"
	"github.com/sells-group/proposal-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// SQL shared between the prepared-statement map and the store methods.
const (
	sqlInsertRun       = `INSERT INTO runs (id, proposal_id, tenant_id, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`
	sqlUpdateRunStatus = `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`
	sqlCompleteRun     = `UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`
	sqlGetRun          = `SELECT id, proposal_id, tenant_id, status, result, created_at, updated_at FROM runs WHERE id = $1`
	sqlAppendLearning  = `INSERT INTO learning_log (id, proposal_id, tenant_id, attempt_count, root_cause, details, confidence_score, created_at) SELECT $1, $2, $3, $4, $5, $6, $7, $8 WHERE NOT EXISTS (SELECT 1 FROM learning_log WHERE proposal_id = $2 AND attempt_count >= $4)`
	sqlInsertFeedback  = `INSERT INTO feedback (id, user_id, tenant_id, proposal_id, user_rating, was_edited, edit_magnitude, outcome, outcome_at, proposal_at, validation_score, warnings, feedback_weight, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        sqlInsertRun,
	"update_run_status": sqlUpdateRunStatus,
	"complete_run":      sqlCompleteRun,
	"get_run":           sqlGetRun,
	"append_learning":   sqlAppendLearning,
	"insert_feedback":   sqlInsertFeedback,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	proposal_id TEXT NOT NULL,
	tenant_id   TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	result      JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS learning_log (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	proposal_id      TEXT NOT NULL,
	tenant_id        TEXT NOT NULL,
	attempt_count    INTEGER NOT NULL,
	root_cause       TEXT NOT NULL,
	details          JSONB NOT NULL,
	confidence_score INTEGER NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS feedback (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id          TEXT NOT NULL,
	tenant_id        TEXT NOT NULL,
	proposal_id      TEXT NOT NULL,
	user_rating      DOUBLE PRECISION,
	was_edited       BOOLEAN NOT NULL DEFAULT false,
	edit_magnitude   DOUBLE PRECISION,
	outcome          TEXT,
	outcome_at       TIMESTAMPTZ,
	proposal_at      TIMESTAMPTZ,
	validation_score DOUBLE PRECISION NOT NULL,
	warnings         JSONB,
	feedback_weight  DOUBLE PRECISION NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_tenant ON runs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_runs_proposal ON runs(proposal_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_learning_proposal_attempt ON learning_log(proposal_id, attempt_count);
CREATE INDEX IF NOT EXISTS idx_learning_tenant ON learning_log(tenant_id);
CREATE INDEX IF NOT EXISTS idx_feedback_user ON feedback(user_id);
CREATE INDEX IF NOT EXISTS idx_feedback_tenant ON feedback(tenant_id);
CREATE INDEX IF NOT EXISTS idx_feedback_proposal ON feedback(proposal_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, proposalID, tenantID string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, sqlInsertRun,
		id, proposalID, tenantID, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:         id,
		ProposalID: proposalID,
		TenantID:   tenantID,
		Status:     model.RunStatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx, sqlUpdateRunStatus,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx, sqlCompleteRun,
		resultJSON, string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var resultNull *[]byte

	err := s.pool.QueryRow(ctx, sqlGetRun, runID).
		Scan(&r.ID, &r.ProposalID, &r.TenantID, &r.Status, &resultNull, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if resultNull != nil {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(*resultNull, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, proposal_id, tenant_id, status, result, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.TenantID != "" {
		query += fmt.Sprintf(` AND tenant_id = $%d`, argIdx)
		args = append(args, filter.TenantID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var resultNull *[]byte

		if err := rows.Scan(&r.ID, &r.ProposalID, &r.TenantID, &r.Status, &resultNull, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if resultNull != nil {
			r.Result = &model.RunResult{}
			if err := json.Unmarshal(*resultNull, r.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) AppendLearning(ctx context.Context, entry model.LearningLogEntry) (*model.LearningLogEntry, error) {
	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now().UTC()

	detailsJSON, err := json.Marshal(learningDetails{
		MissingFields:              entry.MissingFields,
		MalformedFields:            entry.MalformedFields,
		Recommendations:            entry.Recommendations,
		SuggestedPromptAdjustments: entry.SuggestedPromptAdjustments,
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal learning details")
	}

	tag, err := s.pool.Exec(ctx, sqlAppendLearning,
		entry.ID, entry.ProposalID, entry.TenantID, entry.AttemptCount,
		entry.RootCause, detailsJSON, entry.ConfidenceScore, entry.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: append learning for proposal %s", entry.ProposalID)
	}
	// Attempt counts for a proposal only move forward; the guarded insert
	// keeps the check and the write atomic.
	if tag.RowsAffected() == 0 {
		return nil, eris.Errorf("postgres: learning attempt %d for proposal %s does not exceed the last recorded attempt", entry.AttemptCount, entry.ProposalID)
	}
	return &entry, nil
}

func (s *PostgresStore) ListLearnings(ctx context.Context, filter LearningFilter) ([]model.LearningLogEntry, error) {
	query := `SELECT id, proposal_id, tenant_id, attempt_count, root_cause, details, confidence_score, created_at
	          FROM learning_log WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ProposalID != "" {
		query += fmt.Sprintf(` AND proposal_id = $%d`, argIdx)
		args = append(args, filter.ProposalID)
		argIdx++
	}
	if filter.TenantID != "" {
		query += fmt.Sprintf(` AND tenant_id = $%d`, argIdx)
		args = append(args, filter.TenantID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list learnings")
	}
	defer rows.Close()

	var entries []model.LearningLogEntry
	for rows.Next() {
		var e model.LearningLogEntry
		var detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.ProposalID, &e.TenantID, &e.AttemptCount,
			&e.RootCause, &detailsJSON, &e.ConfidenceScore, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan learning")
		}
		if err := unmarshalLearningDetails(string(detailsJSON), &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list learnings iterate")
}

func (s *PostgresStore) CreateFeedback(ctx context.Context, rec model.FeedbackRecord) (*model.FeedbackRecord, error) {
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now().UTC()

	warningsJSON, err := json.Marshal(rec.Warnings)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal warnings")
	}

	_, err = s.pool.Exec(ctx, sqlInsertFeedback,
		rec.ID, rec.UserID, rec.TenantID, rec.ProposalID,
		rec.UserRating, rec.WasEdited, rec.EditMagnitude,
		outcomeString(rec.Outcome), rec.OutcomeAt, nullableTime(rec.ProposalAt),
		rec.ValidationScore, warningsJSON, rec.FeedbackWeight, rec.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert feedback")
	}
	return &rec, nil
}

// feedbackColumns is the column order used for bulk feedback imports.
var feedbackColumns = []string{
	"id", "user_id", "tenant_id", "proposal_id", "user_rating", "was_edited",
	"edit_magnitude", "outcome", "outcome_at", "proposal_at",
	"validation_score", "warnings", "feedback_weight", "created_at",
}

// ImportFeedback bulk-loads records via COPY into a temp table and an upsert,
// so re-running an import of the same spreadsheet stays idempotent.
func (s *PostgresStore) ImportFeedback(ctx context.Context, recs []model.FeedbackRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		warningsJSON, err := json.Marshal(rec.Warnings)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal warnings")
		}
		rows = append(rows, []any{
			rec.ID, rec.UserID, rec.TenantID, rec.ProposalID,
			rec.UserRating, rec.WasEdited, rec.EditMagnitude,
			outcomeString(rec.Outcome), rec.OutcomeAt, nullableTime(rec.ProposalAt),
			rec.ValidationScore, warningsJSON, rec.FeedbackWeight, rec.CreatedAt,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "feedback",
		Columns:      feedbackColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import feedback")
	}
	return int(n), nil
}

func (s *PostgresStore) ListFeedback(ctx context.Context, filter FeedbackFilter) ([]model.FeedbackRecord, error) {
	query := `SELECT id, user_id, tenant_id, proposal_id, user_rating, was_edited, edit_magnitude,
	                 outcome, outcome_at, proposal_at, validation_score, warnings, feedback_weight, created_at
	          FROM feedback WHERE true`
	args := []any{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.TenantID != "" {
		query += fmt.Sprintf(` AND tenant_id = $%d`, argIdx)
		args = append(args, filter.TenantID)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feedback")
	}
	defer rows.Close()

	var recs []model.FeedbackRecord
	for rows.Next() {
		rec, err := scanFeedbackPgx(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list feedback iterate")
}

// scanFeedbackPgx scans a feedback row using pgx's pointer-based null
// handling rather than database/sql null wrappers.
func scanFeedbackPgx(rows pgx.Rows) (*model.FeedbackRecord, error) {
	var rec model.FeedbackRecord
	var outcome *string
	var proposalAt *time.Time
	var warningsJSON []byte

	if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TenantID, &rec.ProposalID,
		&rec.UserRating, &rec.WasEdited, &rec.EditMagnitude,
		&outcome, &rec.OutcomeAt, &proposalAt,
		&rec.ValidationScore, &warningsJSON, &rec.FeedbackWeight, &rec.CreatedAt); err != nil {
		return nil, eris.Wrap(err, "postgres: scan feedback")
	}

	if outcome != nil && *outcome != "" {
		o := model.Outcome(*outcome)
		rec.Outcome = &o
	}
	if proposalAt != nil {
		rec.ProposalAt = *proposalAt
	}
	if len(warningsJSON) > 0 {
		if err := json.Unmarshal(warningsJSON, &rec.Warnings); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal warnings")
		}
	}
	return &rec, nil
}
