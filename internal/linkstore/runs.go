package linkstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/reconciler"
	"gst-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// Run is a stored reconciliation run
type Run struct {
	ID        string                   `json:"id"`
	Scope     models.Scope             `json:"scope"`
	Timestamp time.Time                `json:"timestamp"`
	Tolerance decimal.Decimal          `json:"tolerance"`
	Links     int                      `json:"links"`
	Summary   *reconciler.SummaryStats `json:"summary"`
	Meta      reconciler.RunMeta       `json:"meta"`
}

// AuditEntry is one row of the audit log
type AuditEntry struct {
	ID        int64                  `json:"id"`
	RunID     string                 `json:"run_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Action    string                 `json:"action_type"`
	Details   map[string]interface{} `json:"details"`
}

// RecordRun stores a finished run together with its new_recon or cdnr_run audit
// entry and returns the new run id
func (s *Store) RecordRun(ctx context.Context, run *reconciler.RunRecord) (string, error) {
	if run == nil {
		return "", errors.ValidationError(errors.CodeMissingField, "run", nil, nil)
	}
	if err := validateScope(run.Scope); err != nil {
		return "", err
	}

	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return "", errors.InternalError(errors.CodeUnexpectedError, "record_run", err)
	}

	started := run.StartedAt
	if started.IsZero() {
		started = s.now()
	}

	id := s.newID()
	action := ActionInvoiceRun
	if run.Scope == models.ScopeNotes {
		action = ActionNoteRun
	}

	err = s.withTx(ctx, "record_run", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, scope, timestamp, tolerance, links, summary, gstin, company_name, fy, period)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, string(run.Scope), formatTime(started), run.Tolerance.String(), run.Links, string(summary),
			run.Meta.GSTIN, run.Meta.CompanyName, run.Meta.FinancialYear, run.Meta.Period)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, id, action, runDetails(run))
	})
	if err != nil {
		return "", err
	}

	s.logger.WithRun(run.LogRun(id)).WithField("action", action).Debug("Stored run")
	return id, nil
}

func runDetails(run *reconciler.RunRecord) map[string]interface{} {
	details := map[string]interface{}{
		"tolerance": run.Tolerance.String(),
		"links":     run.Links,
	}
	if run.Summary == nil {
		return details
	}
	details["matched"] = run.Summary.MatchedCount
	details["mismatch"] = run.Summary.MismatchCount
	details["not_in_portal"] = run.Summary.NotInPortalCount
	details["not_in_books"] = run.Summary.NotInBooksCount
	if run.Scope == models.ScopeNotes {
		details["net_itc_impact"] = run.Summary.NetITCImpact.StringFixed(2)
	}
	return details
}

// GetRun returns one stored run
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, scope, timestamp, tolerance, links, summary, gstin, company_name, fy, period
		 FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.StorageError(errors.CodeRunNotFound, "get_run", nil).WithContext("run_id", id)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeDatabaseQuery, "get_run", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs of a scope, newest first. A limit of zero
// or less returns every run.
func (s *Store) ListRuns(ctx context.Context, scope models.Scope, limit int) ([]*Run, error) {
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scope, timestamp, tolerance, links, summary, gstin, company_name, fy, period
		 FROM runs WHERE scope = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`, string(scope), limit)
	if err != nil {
		return nil, errors.StorageError(errors.CodeDatabaseQuery, "list_runs", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.StorageError(errors.CodeDatabaseQuery, "list_runs", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeDatabaseQuery, "list_runs", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run                     Run
		scope, ts, tol, summary string
	)
	if err := row.Scan(&run.ID, &scope, &ts, &tol, &run.Links, &summary,
		&run.Meta.GSTIN, &run.Meta.CompanyName, &run.Meta.FinancialYear, &run.Meta.Period); err != nil {
		return nil, err
	}

	run.Scope = models.Scope(scope)
	run.Timestamp = parseTime(ts)
	run.Tolerance, _ = decimal.NewFromString(tol)

	if summary != "" && summary != "null" {
		run.Summary = &reconciler.SummaryStats{}
		if err := json.Unmarshal([]byte(summary), run.Summary); err != nil {
			return nil, err
		}
	}
	return &run, nil
}

// AuditLog returns the audit entries of a run in the order they were written. An
// empty run id returns the entries written outside any run.
func (s *Store) AuditLog(ctx context.Context, runID string) ([]AuditEntry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if runID == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, run_id, timestamp, action_type, details FROM audit_log WHERE run_id IS NULL ORDER BY id`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, run_id, timestamp, action_type, details FROM audit_log WHERE run_id = ? ORDER BY id`, runID)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeDatabaseQuery, "audit_log", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			e           AuditEntry
			run         sql.NullString
			ts, details string
		)
		if err := rows.Scan(&e.ID, &run, &ts, &e.Action, &details); err != nil {
			return nil, errors.StorageError(errors.CodeDatabaseQuery, "audit_log", err)
		}
		e.RunID = run.String
		e.Timestamp = parseTime(ts)
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, errors.StorageError(errors.CodeDatabaseQuery, "audit_log", err).
				WithContext("entry_id", e.ID)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeDatabaseQuery, "audit_log", err)
	}
	return entries, nil
}
