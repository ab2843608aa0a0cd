package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func newMockSQL(t *testing.T) (*SQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQL(db, SQLConfig{Namespace: "foxtel"}), mock
}

func TestSQL_Get(t *testing.T) {
	s, mock := newMockSQL(t)
	query := `SELECT value FROM "streamsession_kv" WHERE namespace = $1 AND key = $2`

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("foxtel", "token").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("abc"))
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("foxtel", "pswd").
		WillReturnError(sql.ErrNoRows)

	v, ok, err := s.Get(context.Background(), "token")
	if err != nil || !ok || v != "abc" {
		t.Fatalf("Get(token) = %q, %v, %v", v, ok, err)
	}
	if _, ok, err := s.Get(context.Background(), "pswd"); ok || err != nil {
		t.Fatalf("Get(pswd) = ok %v, err %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQL_SetUpserts(t *testing.T) {
	s, mock := newMockSQL(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "streamsession_kv" (namespace, key, value, updated_at) VALUES ($1, $2, $3, now())`)).
		WithArgs("foxtel", "token", "abc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Set(context.Background(), "token", "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQL_Delete(t *testing.T) {
	s, mock := newMockSQL(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "streamsession_kv" WHERE namespace = $1 AND key = $2`)).
		WithArgs("foxtel", "token").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Delete(context.Background(), "token"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQL_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	s := NewSQL(db, SQLConfig{Table: "sessions"})
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "sessions"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQL_MissingTableHint(t *testing.T) {
	s, mock := newMockSQL(t)
	mock.ExpectQuery("SELECT value FROM").
		WillReturnError(&pq.Error{Code: "42P01", Message: `relation "streamsession_kv" does not exist`})

	_, _, err := s.Get(context.Background(), "token")
	if err == nil || !strings.Contains(err.Error(), "EnsureSchema") {
		t.Fatalf("error = %v, want EnsureSchema hint", err)
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		t.Error("pq.Error should stay reachable")
	}
}
