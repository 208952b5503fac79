package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Each principal kind lives in its
// own table with a shared column layout.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func tableFor(kind Kind) (string, error) {
	switch kind {
	case KindSuperAdmin:
		return "super_admins", nil
	case KindAdmin:
		return "admins", nil
	case KindOrganization:
		return "organizations", nil
	case KindUser:
		return "app_users", nil
	}
	return "", fmt.Errorf("%w: unknown principal kind %q", ErrNotFound, kind)
}

const principalColumns = `id, email, name, sub_role, tenant_id, password_hash, is_active, refresh_token_hash, last_login_at, created_at, updated_at`

func (s *PGStore) FindByID(ctx context.Context, kind Kind, id string) (*PrincipalRecord, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from `+table+` where id=$1`, id)
	return scanPrincipal(row, kind)
}

func (s *PGStore) FindByEmail(ctx context.Context, kind Kind, email string) (*PrincipalRecord, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from `+table+` where lower(email)=lower($1)`,
		strings.TrimSpace(email))
	return scanPrincipal(row, kind)
}

func (s *PGStore) UpdateLastLoginAndRefreshToken(ctx context.Context, kind Kind, id, refreshHash string, at time.Time) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`update `+table+` set refresh_token_hash=$1, last_login_at=$2, updated_at=$2 where id=$3`,
		refreshHash, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) SwapRefreshToken(ctx context.Context, kind Kind, id, oldHash, newHash string) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	// The WHERE clause on the old hash makes the rotation a compare-and-swap:
	// of concurrent refreshes with the same token, only one updates a row.
	res, err := s.db.ExecContext(ctx,
		`update `+table+` set refresh_token_hash=$1, updated_at=now() where id=$2 and refresh_token_hash=$3`,
		newHash, id, oldHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PGStore) ClearRefreshToken(ctx context.Context, kind Kind, id string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`update `+table+` set refresh_token_hash='', updated_at=now() where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) UpdatePasswordHash(ctx context.Context, kind Kind, id, newHash string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`update `+table+` set password_hash=$1, updated_at=now() where id=$2`, newHash, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner, kind Kind) (*PrincipalRecord, error) {
	var (
		rec       PrincipalRecord
		subRole   sql.NullString
		tenantID  sql.NullString
		lastLogin sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.Email, &rec.Name, &subRole, &tenantID,
		&rec.PasswordHash, &rec.Active, &rec.RefreshTokenHash, &lastLogin,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.Kind = kind
	rec.SubRole = SubRole(subRole.String)
	rec.TenantID = tenantID.String
	if lastLogin.Valid {
		rec.LastLoginAt = lastLogin.Time
	}
	return &rec, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
