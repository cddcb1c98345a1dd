package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"health-portal/backend/internal/account/domain"
	"health-portal/backend/internal/autherr"
	"health-portal/backend/internal/db"
)

const pgUniqueViolation = "23505"

const accountColumns = `id, username, email, phone, password_hash, role, status, verified,
	reset_authorized, profile_picture_ref, created_at, updated_at`

// SQLRepository is an account repository on database/sql for the pgx and sqlite drivers.
// Uniqueness is enforced by the unique indexes created in the migrations.
type SQLRepository struct {
	db     *sql.DB
	driver string
	nowF   func() time.Time
}

// NewSQLRepository returns an account repository that uses the given db opened with driver.
func NewSQLRepository(conn *sql.DB, driver string) *SQLRepository {
	return &SQLRepository{
		db:     conn,
		driver: driver,
		nowF:   func() time.Time { return time.Now().UTC() },
	}
}

// Create persists the account. The account must have ID set; it is not assigned by this method.
func (r *SQLRepository) Create(ctx context.Context, a *domain.Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.nowF()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, r.rebind(`INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.Username, a.Email, a.Phone, a.PasswordHash, string(a.Role), string(a.Status),
		a.Verified, a.ResetAuthorized, nullString(a.ProfilePictureRef),
		r.timeArg(a.CreatedAt), r.timeArg(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return autherr.ErrDuplicateAccount
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// GetByID returns the account for id.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
}

// GetByEmail returns the account with the given (normalised) email.
func (r *SQLRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, domain.NormalizeEmail(email))
}

// Update applies patch in a single UPDATE so the changed fields land together.
func (r *SQLRepository) Update(ctx context.Context, id string, patch domain.Patch) (*domain.Account, error) {
	if patch.Empty() {
		return r.GetByID(ctx, id)
	}
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.Username != nil {
		set("username", *patch.Username)
	}
	if patch.Email != nil {
		set("email", domain.NormalizeEmail(*patch.Email))
	}
	if patch.Phone != nil {
		set("phone", *patch.Phone)
	}
	if patch.PasswordHash != nil {
		set("password_hash", *patch.PasswordHash)
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.Verified != nil {
		set("verified", *patch.Verified)
	}
	if patch.ResetAuthorized != nil {
		set("reset_authorized", *patch.ResetAuthorized)
	}
	if patch.ProfilePictureRef != nil {
		set("profile_picture_ref", nullString(*patch.ProfilePictureRef))
	}
	set("updated_at", r.timeArg(r.nowF()))
	args = append(args, id)

	query := `UPDATE accounts SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	res, err := r.db.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, autherr.ErrDuplicateAccount
		}
		return nil, fmt.Errorf("update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	if n == 0 {
		return nil, autherr.ErrAccountNotFound
	}
	return r.GetByID(ctx, id)
}

// ConsumeResetAuthorization is a conditional UPDATE; concurrent callers race on the row and
// only one of them sees reset_authorized still set.
func (r *SQLRepository) ConsumeResetAuthorization(ctx context.Context, id, passwordHash string) (*domain.Account, error) {
	query := `UPDATE accounts SET password_hash = ?, reset_authorized = ?, updated_at = ? WHERE id = ? AND reset_authorized = ?`
	res, err := r.db.ExecContext(ctx, r.rebind(query), passwordHash, false, r.timeArg(r.nowF()), id, true)
	if err != nil {
		return nil, fmt.Errorf("reset password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reset password: %w", err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, autherr.ErrResetNotAuthorized
	}
	return r.GetByID(ctx, id)
}

func (r *SQLRepository) getOne(ctx context.Context, query string, arg any) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(query), arg)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, autherr.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *SQLRepository) rebind(query string) string {
	return db.Rebind(r.driver, query)
}

func (r *SQLRepository) timeArg(t time.Time) any {
	return db.TimeArg(r.driver, t)
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var (
		a         domain.Account
		role      string
		status    string
		picture   sql.NullString
		createdAt db.Time
		updatedAt db.Time
	)
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.Phone, &a.PasswordHash, &role, &status,
		&a.Verified, &a.ResetAuthorized, &picture, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.Role = domain.Role(role)
	a.Status = domain.Status(status)
	a.ProfilePictureRef = picture.String
	a.CreatedAt = createdAt.Time
	a.UpdatedAt = updatedAt.Time
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE"))
	}
	return false
}
