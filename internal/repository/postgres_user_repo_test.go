package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hitoshi/workdesk/internal/model"
)

// newMockDB はsqlmockのDBを生成し、テスト終了時に期待値の検証とクローズを行う。
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func TestPostgresUserRepo_FindByID_Found(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, email, name, created_at, updated_at FROM users WHERE id = \$1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "created_at", "updated_at"}).
			AddRow("user-1", "alice@example.com", "Alice", now, now))

	repo := NewPostgresUserRepo(db)
	user, err := repo.FindByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", user.Email, "alice@example.com")
	}
}

func TestPostgresUserRepo_FindByID_NotFound_ReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT id, email, name, created_at, updated_at FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	repo := NewPostgresUserRepo(db)
	user, err := repo.FindByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil user, got %+v", user)
	}
}

func TestPostgresUserRepo_CreateWithIdentity_CommitsBothInserts(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	user := &model.User{ID: "user-1", Email: "alice@example.com", Name: "Alice", CreatedAt: now, UpdatedAt: now}
	identity := &model.Identity{ID: "ident-1", UserID: "user-1", Provider: "google", ProviderUserID: "g-1", CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("user-1", "alice@example.com", "Alice", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO identities`).
		WithArgs("ident-1", "user-1", "google", "g-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewPostgresUserRepo(db)
	if err := repo.CreateWithIdentity(context.Background(), user, identity); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPostgresUserRepo_CreateWithIdentity_IdentityInsertFails_RollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	user := &model.User{ID: "user-1", Email: "alice@example.com", Name: "Alice", CreatedAt: now, UpdatedAt: now}
	identity := &model.Identity{ID: "ident-1", UserID: "user-1", Provider: "google", ProviderUserID: "g-1", CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO identities`).WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	repo := NewPostgresUserRepo(db)
	if err := repo.CreateWithIdentity(context.Background(), user, identity); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestPostgresUserRepo_CreateWithIdentity_MismatchedUserID_ReturnsError(t *testing.T) {
	db, _ := newMockDB(t)

	repo := NewPostgresUserRepo(db)
	err := repo.CreateWithIdentity(context.Background(),
		&model.User{ID: "user-1"},
		&model.Identity{ID: "ident-1", UserID: "user-2"},
	)
	if err == nil {
		t.Fatal("expected error for mismatched user IDs")
	}
}

func TestPostgresUserRepo_DeleteByID_NotFound_ReturnsError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresUserRepo(db)
	if err := repo.DeleteByID(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want %v", err, ErrUserNotFound)
	}
}

func TestPostgresIdentityRepo_FindByProvider_NotFound_ReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`FROM identities`).
		WithArgs("google", "g-404").
		WillReturnError(sql.ErrNoRows)

	repo := NewPostgresIdentityRepo(db)
	identity, err := repo.FindByProviderAndProviderUserID(context.Background(), "google", "g-404")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity != nil {
		t.Errorf("expected nil identity, got %+v", identity)
	}
}
