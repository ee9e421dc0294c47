package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/proposal-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	proposal_id TEXT NOT NULL,
	tenant_id   TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	result      TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS learning_log (
	id               TEXT PRIMARY KEY,
	proposal_id      TEXT NOT NULL,
	tenant_id        TEXT NOT NULL,
	attempt_count    INTEGER NOT NULL,
	root_cause       TEXT NOT NULL,
	details          TEXT NOT NULL,
	confidence_score INTEGER NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS feedback (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	tenant_id        TEXT NOT NULL,
	proposal_id      TEXT NOT NULL,
	user_rating      REAL,
	was_edited       INTEGER NOT NULL DEFAULT 0,
	edit_magnitude   REAL,
	outcome          TEXT,
	outcome_at       DATETIME,
	proposal_at      DATETIME,
	validation_score REAL NOT NULL,
	warnings         TEXT,
	feedback_weight  REAL NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, proposalID, tenantID string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, proposal_id, tenant_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, proposalID, tenantID, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, proposal_id, tenant_id, status, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, proposal_id, tenant_id, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) AppendLearning(ctx context.Context, entry model.LearningLogEntry) (*model.LearningLogEntry, error) {
	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now().UTC()

	detailsJSON, err := json.Marshal(learningDetails{
		MissingFields:              entry.MissingFields,
		MalformedFields:            entry.MalformedFields,
		Recommendations:            entry.Recommendations,
		SuggestedPromptAdjustments: entry.SuggestedPromptAdjustments,
	})
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal learning details")
	}

	// Attempt counts for a proposal only move forward; the guarded insert
	// keeps the check and the write atomic.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO learning_log (id, proposal_id, tenant_id, attempt_count, root_cause, details, confidence_score, created_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (
		   SELECT 1 FROM learning_log WHERE proposal_id = ? AND attempt_count >= ?
		 )`,
		entry.ID, entry.ProposalID, entry.TenantID, entry.AttemptCount,
		entry.RootCause, string(detailsJSON), entry.ConfidenceScore, entry.CreatedAt,
		entry.ProposalID, entry.AttemptCount,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: append learning for proposal %s", entry.ProposalID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: append learning rows affected")
	}
	if n == 0 {
		return nil, eris.Errorf("sqlite: learning attempt %d for proposal %s does not exceed the last recorded attempt", entry.AttemptCount, entry.ProposalID)
	}
	return &entry, nil
}

func (s *SQLiteStore) ListLearnings(ctx context.Context, filter LearningFilter) ([]model.LearningLogEntry, error) {
	query := `SELECT id, proposal_id, tenant_id, attempt_count, root_cause, details, confidence_score, created_at
	          FROM learning_log WHERE 1=1`
	var args []any

	if filter.ProposalID != "" {
		query += ` AND proposal_id = ?`
		args = append(args, filter.ProposalID)
	}
	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list learnings")
	}
	defer rows.Close()

	var entries []model.LearningLogEntry
	for rows.Next() {
		var e model.LearningLogEntry
		var detailsJSON string
		if err := rows.Scan(&e.ID, &e.ProposalID, &e.TenantID, &e.AttemptCount,
			&e.RootCause, &detailsJSON, &e.ConfidenceScore, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan learning")
		}
		if err := unmarshalLearningDetails(detailsJSON, &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list learnings iterate")
}

func (s *SQLiteStore) CreateFeedback(ctx context.Context, rec model.FeedbackRecord) (*model.FeedbackRecord, error) {
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now().UTC()

	warningsJSON, err := json.Marshal(rec.Warnings)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal warnings")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, user_id, tenant_id, proposal_id, user_rating, was_edited, edit_magnitude,
		                       outcome, outcome_at, proposal_at, validation_score, warnings, feedback_weight, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.TenantID, rec.ProposalID,
		rec.UserRating, rec.WasEdited, rec.EditMagnitude,
		outcomeString(rec.Outcome), rec.OutcomeAt, nullableTime(rec.ProposalAt),
		rec.ValidationScore, string(warningsJSON), rec.FeedbackWeight, rec.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert feedback")
	}
	return &rec, nil
}

func (s *SQLiteStore) ImportFeedback(ctx context.Context, recs []model.FeedbackRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO feedback (id, user_id, tenant_id, proposal_id, user_rating, was_edited, edit_magnitude,
		                       outcome, outcome_at, proposal_at, validation_score, warnings, feedback_weight, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare import")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		warningsJSON, err := json.Marshal(rec.Warnings)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal warnings")
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.UserID, rec.TenantID, rec.ProposalID,
			rec.UserRating, rec.WasEdited, rec.EditMagnitude,
			outcomeString(rec.Outcome), rec.OutcomeAt, nullableTime(rec.ProposalAt),
			rec.ValidationScore, string(warningsJSON), rec.FeedbackWeight, rec.CreatedAt,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import feedback for proposal %s", rec.ProposalID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return len(recs), nil
}

func (s *SQLiteStore) ListFeedback(ctx context.Context, filter FeedbackFilter) ([]model.FeedbackRecord, error) {
	query := `SELECT id, user_id, tenant_id, proposal_id, user_rating, was_edited, edit_magnitude,
	                 outcome, outcome_at, proposal_at, validation_score, warnings, feedback_weight, created_at
	          FROM feedback WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feedback")
	}
	defer rows.Close()

	var recs []model.FeedbackRecord
	for rows.Next() {
		rec, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list feedback iterate")
}

// helpers

// learningDetails is the JSON envelope for the list-valued diagnosis fields.
type learningDetails struct {
	MissingFields              []string `json:"missing_fields,omitempty"`
	MalformedFields            []string `json:"malformed_fields,omitempty"`
	Recommendations            []string `json:"recommendations,omitempty"`
	SuggestedPromptAdjustments []string `json:"suggested_prompt_adjustments,omitempty"`
}

func unmarshalLearningDetails(detailsJSON string, e *model.LearningLogEntry) error {
	var d learningDetails
	if err := json.Unmarshal([]byte(detailsJSON), &d); err != nil {
		return eris.Wrap(err, "store: unmarshal learning details")
	}
	e.MissingFields = d.MissingFields
	e.MalformedFields = d.MalformedFields
	e.Recommendations = d.Recommendations
	e.SuggestedPromptAdjustments = d.SuggestedPromptAdjustments
	return nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func outcomeString(o *model.Outcome) *string {
	if o == nil {
		return nil
	}
	s := string(*o)
	return &s
}

// nullableTime maps the zero time to NULL so unknown proposal timestamps do
// not round-trip as year one.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &r.ProposalID, &r.TenantID, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}

func scanFeedback(row scannable) (*model.FeedbackRecord, error) {
	var rec model.FeedbackRecord
	var rating, magnitude sql.NullFloat64
	var outcome sql.NullString
	var outcomeAt, proposalAt sql.NullTime
	var warningsJSON sql.NullString

	err := row.Scan(&rec.ID, &rec.UserID, &rec.TenantID, &rec.ProposalID,
		&rating, &rec.WasEdited, &magnitude,
		&outcome, &outcomeAt, &proposalAt,
		&rec.ValidationScore, &warningsJSON, &rec.FeedbackWeight, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("feedback not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan feedback")
	}

	if rating.Valid {
		rec.UserRating = &rating.Float64
	}
	if magnitude.Valid {
		rec.EditMagnitude = &magnitude.Float64
	}
	if outcome.Valid && outcome.String != "" {
		o := model.Outcome(outcome.String)
		rec.Outcome = &o
	}
	if outcomeAt.Valid {
		rec.OutcomeAt = &outcomeAt.Time
	}
	if proposalAt.Valid {
		rec.ProposalAt = proposalAt.Time
	}
	if warningsJSON.Valid && warningsJSON.String != "" {
		if err := json.Unmarshal([]byte(warningsJSON.String), &rec.Warnings); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal warnings")
		}
	}
	return &rec, nil
}
