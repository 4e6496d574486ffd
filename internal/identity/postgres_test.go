package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPGStoreGetUserNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select id, name, extra, created_at, updated_at").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "extra", "created_at", "updated_at"}))

	store := NewPGStore(db, HashParams{})
	if _, err := store.GetUser(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreGetMetadata(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select user_id, tenant_id, roles, extra").
		WithArgs("u1", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "tenant_id", "roles", "extra"}).
			AddRow("u1", "t1", []byte(`["r1","r2"]`), []byte(`{"tier":"gold"}`)))

	store := NewPGStore(db, HashParams{})
	md, err := store.GetMetadata(context.Background(), "u1", "t1")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if !md.Roles.Contains("r1") || !md.Roles.Contains("r2") {
		t.Fatalf("roles not decoded: %v", md.Roles.List())
	}
	if md.Extra["tier"] != "gold" {
		t.Fatalf("extra not decoded: %v", md.Extra)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreGrantRoleRunsInTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("insert into metadata").
		WithArgs("u1", "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select roles from metadata").
		WithArgs("u1", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"roles"}).AddRow([]byte(`["r1"]`)))
	mock.ExpectExec("update metadata set roles").
		WithArgs("u1", "t1", []byte(`["r1","r2"]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPGStore(db, HashParams{})
	if err := store.GrantRole(context.Background(), "u1", "t1", "r2"); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreGrantRoleMissingUserIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("insert into metadata").
		WithArgs("ghost", "t1").
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	store := NewPGStore(db, HashParams{})
	if err := store.GrantRole(context.Background(), "ghost", "t1", "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreUpdateMetadataMissingPairIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("insert into metadata").
		WithArgs("ghost", "t1", []byte(`{"tier":"gold"}`)).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	store := NewPGStore(db, HashParams{})
	_, err = store.UpdateMetadata(context.Background(), "ghost", "t1", map[string]any{"tier": "gold"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreRevokeMissingRoleRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("select roles from metadata").
		WithArgs("u1", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"roles"}).AddRow([]byte(`["r1"]`)))
	mock.ExpectRollback()

	store := NewPGStore(db, HashParams{})
	if err := store.RevokeRole(context.Background(), "u1", "t1", "r9"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreListTenants(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("select id, name, extra, created_at, updated_at").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "extra", "created_at", "updated_at"}).
			AddRow("t1", "acme", []byte(`{}`), now, now).
			AddRow("t2", "globex", []byte(`{"plan":"pro"}`), now, now))

	store := NewPGStore(db, HashParams{})
	tenants, err := store.ListTenants(context.Background())
	if err != nil {
		t.Fatalf("ListTenants: %v", err)
	}
	if len(tenants) != 2 || tenants[1].Extra["plan"] != "pro" {
		t.Fatalf("unexpected tenants: %+v", tenants)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
