package linkstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// Audit action types
const (
	ActionInvoiceRun   = "new_recon"
	ActionNoteRun      = "cdnr_run"
	ActionManualLink   = "manual_link"
	ActionManualUnlink = "manual_unlink"
)

// Link is a stored manual link
type Link struct {
	Scope     models.Scope    `json:"scope"`
	Pair      models.LinkPair `json:"pair"`
	CreatedAt time.Time       `json:"created_at"`
}

// Links returns the saved pairs of a scope in the order they were added
func (s *Store) Links(ctx context.Context, scope models.Scope) ([]models.LinkPair, error) {
	links, err := s.List(ctx, scope)
	if err != nil {
		return nil, err
	}
	pairs := make([]models.LinkPair, len(links))
	for i, l := range links {
		pairs[i] = l.Pair
	}
	return pairs, nil
}

// List returns the stored links of a scope in the order they were added
func (s *Store) List(ctx context.Context, scope models.Scope) ([]Link, error) {
	if err := validateScope(scope); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT books_id, portal_id, created_at FROM manual_links WHERE scope = ? ORDER BY id`, string(scope))
	if err != nil {
		return nil, errors.StorageError(errors.CodeDatabaseQuery, "list_links", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var books, portal, created string
		if err := rows.Scan(&books, &portal, &created); err != nil {
			return nil, errors.StorageError(errors.CodeDatabaseQuery, "list_links", err)
		}
		links = append(links, Link{
			Scope:     scope,
			Pair:      models.LinkPair{BooksID: models.UniqueID(books), PortalID: models.UniqueID(portal)},
			CreatedAt: parseTime(created),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeDatabaseQuery, "list_links", err)
	}
	return links, nil
}

// Add stores a manual link and writes a manual_link audit entry. runID may be empty.
// Adding a link that is already stored is a no-op and reports false.
func (s *Store) Add(ctx context.Context, scope models.Scope, pair models.LinkPair, runID string) (bool, error) {
	if err := validateLink(scope, pair); err != nil {
		return false, err
	}

	added := false
	err := s.withTx(ctx, "add_link", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO manual_links (scope, books_id, portal_id, created_at) VALUES (?, ?, ?, ?)`,
			string(scope), string(pair.BooksID), string(pair.PortalID), formatTime(s.now()))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		added = true
		return s.audit(ctx, tx, runID, ActionManualLink, linkDetails(scope, pair))
	})
	if err != nil {
		return false, err
	}

	s.logger.WithFields(logger.Fields{
		"scope": scope,
		"link":  pair.String(),
		"added": added,
	}).Info("Stored manual link")
	return added, nil
}

// Remove deletes a manual link and writes a manual_unlink audit entry
func (s *Store) Remove(ctx context.Context, scope models.Scope, pair models.LinkPair, runID string) error {
	if err := validateLink(scope, pair); err != nil {
		return err
	}

	err := s.withTx(ctx, "remove_link", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM manual_links WHERE scope = ? AND books_id = ? AND portal_id = ?`,
			string(scope), string(pair.BooksID), string(pair.PortalID))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.StorageError(errors.CodeLinkNotFound, "remove_link", nil).
				WithContext("link", pair.String()).
				WithContext("scope", string(scope))
		}
		return s.audit(ctx, tx, runID, ActionManualUnlink, linkDetails(scope, pair))
	})
	if err != nil {
		return err
	}

	s.logger.WithRun(logger.Run{Scope: string(scope)}).WithField("link", pair.String()).Info("Removed manual link")
	return nil
}

// Clear deletes every link of a scope and returns how many were removed. Each removed
// link gets its own manual_unlink audit entry, written in the transaction that deleted it.
func (s *Store) Clear(ctx context.Context, scope models.Scope, runID string) (int, error) {
	if err := validateScope(scope); err != nil {
		return 0, err
	}

	var removed []models.LinkPair
	err := s.withTx(ctx, "clear_links", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`DELETE FROM manual_links WHERE scope = ? RETURNING books_id, portal_id`, string(scope))
		if err != nil {
			return err
		}
		for rows.Next() {
			var books, portal string
			if err := rows.Scan(&books, &portal); err != nil {
				rows.Close()
				return err
			}
			removed = append(removed, models.LinkPair{BooksID: models.UniqueID(books), PortalID: models.UniqueID(portal)})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, pair := range removed {
			if err := s.audit(ctx, tx, runID, ActionManualUnlink, linkDetails(scope, pair)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(removed) > 0 {
		s.logger.WithRun(logger.Run{Scope: string(scope)}).WithField("removed", len(removed)).Info("Cleared manual links")
	}
	return len(removed), nil
}

func (s *Store) audit(ctx context.Context, tx *sql.Tx, runID, action string, details map[string]interface{}) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return err
	}
	var run interface{}
	if runID != "" {
		run = runID
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_log (run_id, timestamp, action_type, details) VALUES (?, ?, ?, ?)`,
		run, formatTime(s.now()), action, string(payload))
	return err
}

func linkDetails(scope models.Scope, pair models.LinkPair) map[string]interface{} {
	return map[string]interface{}{
		"scope":     scope,
		"books_id":  pair.BooksID,
		"portal_id": pair.PortalID,
	}
}

func validateScope(scope models.Scope) error {
	if !scope.IsValid() {
		return errors.ValidationError(errors.CodeInvalidData, "scope", string(scope), nil).
			WithSuggestion(fmt.Sprintf("Use %q or %q", models.ScopeInvoices, models.ScopeNotes))
	}
	return nil
}

func validateLink(scope models.Scope, pair models.LinkPair) error {
	if err := validateScope(scope); err != nil {
		return err
	}
	if pair.BooksID.IsZero() {
		return errors.ValidationError(errors.CodeMissingField, "books_id", nil, nil)
	}
	if pair.PortalID.IsZero() {
		return errors.ValidationError(errors.CodeMissingField, "portal_id", nil, nil)
	}
	return nil
}
