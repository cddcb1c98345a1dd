package repository

import (
	"context"
	"database/sql"
	"fmt"

	"health-portal/backend/internal/audit/domain"
	"health-portal/backend/internal/db"
)

const defaultListLimit = 50

type SQLRepository struct {
	db     *sql.DB
	driver string
}

// NewSQLRepository returns an auth event repository that uses the given db opened with driver.
func NewSQLRepository(conn *sql.DB, driver string) *SQLRepository {
	return &SQLRepository{db: conn, driver: driver}
}

// Create persists the event. The event must have ID and CreatedAt set.
func (r *SQLRepository) Create(ctx context.Context, e *domain.Event) error {
	_, err := r.db.ExecContext(ctx, db.Rebind(r.driver, `INSERT INTO auth_events
		(id, account_id, action, purpose, outcome, reason, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		e.ID, nullString(e.AccountID), string(e.Action), nullString(e.Purpose), string(e.Outcome),
		nullString(e.Reason), db.TimeArg(r.driver, e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create auth event: %w", err)
	}
	return nil
}

func (r *SQLRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.db.QueryContext(ctx, db.Rebind(r.driver, `SELECT id, account_id, action, purpose, outcome, reason, created_at
		FROM auth_events WHERE account_id = ? ORDER BY created_at DESC LIMIT ?`), accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list auth events: %w", err)
	}
	defer rows.Close()
	var out []*domain.Event
	for rows.Next() {
		var (
			e                        domain.Event
			account, purpose, reason sql.NullString
			action, outcome          string
			createdAt                db.Time
		)
		if err := rows.Scan(&e.ID, &account, &action, &purpose, &outcome, &reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scan auth event: %w", err)
		}
		e.AccountID = account.String
		e.Action = domain.Action(action)
		e.Purpose = purpose.String
		e.Outcome = domain.Outcome(outcome)
		e.Reason = reason.String
		e.CreatedAt = createdAt.Time
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list auth events: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
