package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func principalRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "email", "name", "sub_role", "tenant_id", "password_hash",
		"is_active", "refresh_token_hash", "last_login_at", "created_at", "updated_at",
	}).AddRow("drv-1", "driver@metro.example", "D. Driver", "driver", "org-1",
		"$2a$10$hash", true, "", nil, now, now)
}

func TestPGFindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select (.+) from app_users where id=").
		WithArgs("drv-1").
		WillReturnRows(principalRows())

	store := NewPGStore(db)
	rec, err := store.FindByID(context.Background(), KindUser, "drv-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if rec.Kind != KindUser || rec.SubRole != SubRoleDriver || rec.TenantID != "org-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGFindByEmailNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select (.+) from organizations where lower").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewPGStore(db)
	_, err = store.FindByEmail(context.Background(), KindOrganization, "nobody@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGSwapRefreshTokenCAS(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update admins set refresh_token_hash=").
		WithArgs("new-hash", "adm-1", "old-hash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update admins set refresh_token_hash=").
		WithArgs("other-hash", "adm-1", "old-hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPGStore(db)
	swapped, err := store.SwapRefreshToken(context.Background(), KindAdmin, "adm-1", "old-hash", "new-hash")
	if err != nil || !swapped {
		t.Fatalf("first swap should win: swapped=%v err=%v", swapped, err)
	}
	swapped, err = store.SwapRefreshToken(context.Background(), KindAdmin, "adm-1", "old-hash", "other-hash")
	if err != nil {
		t.Fatalf("second swap errored: %v", err)
	}
	if swapped {
		t.Fatal("second swap with the stale hash must lose")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGUpdateLastLoginMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update super_admins set refresh_token_hash=").
		WithArgs("h", sqlmock.AnyArg(), "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPGStore(db)
	err = store.UpdateLastLoginAndRefreshToken(context.Background(), KindSuperAdmin, "ghost", "h", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTableForUnknownKind(t *testing.T) {
	if _, err := tableFor(Kind("ghost")); err == nil {
		t.Fatal("unknown kind must not resolve to a table")
	}
}
