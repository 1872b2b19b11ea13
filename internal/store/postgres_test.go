package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"
)

// ===== Unit tests over sqlmock =====

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresEnsureSchema(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS documents").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS documents_data_idx").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresGetDocument(t *testing.T) {
	s, mock := newMockStore(t)

	raw, _ := json.Marshal(Document{"id": "m1", "team_id": "TEAMA"})
	mock.ExpectQuery("SELECT data FROM documents").
		WithArgs("team_mappings", "m1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(raw))

	doc, err := s.GetDocument(context.Background(), "team_mappings", "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc["team_id"] != "TEAMA" {
		t.Errorf("unexpected document: %+v", doc)
	}
}

func TestPostgresGetDocumentMiss(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT data FROM documents").
		WithArgs("team_mappings", "absent").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetDocument(context.Background(), "team_mappings", "absent")
	if !IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestPostgresCreateAssignsID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO documents").
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := s.CreateDocument(context.Background(), "team_mappings", Document{"team_id": "TEAMA"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Error("expected generated id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresUpdateMissReported(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE documents").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateDocument(context.Background(), "team_mappings", "absent", Document{"team_id": "X"})
	if !IsNotFound(err) {
		t.Errorf("expected not-found on zero rows, got %v", err)
	}
}

func TestPostgresDeleteMissReported(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM documents").
		WithArgs("team_mappings", "absent").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.DeleteDocument(context.Background(), "team_mappings", "absent")
	if !IsNotFound(err) {
		t.Errorf("expected not-found on zero rows, got %v", err)
	}
}

func TestPostgresQueryWithFilters(t *testing.T) {
	s, mock := newMockStore(t)

	rawA, _ := json.Marshal(Document{"id": "1", "team_id": "TEAMA"})
	rawB, _ := json.Marshal(Document{"id": "2", "team_id": "TEAMA"})
	mock.ExpectQuery("SELECT data FROM documents").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(rawA).AddRow(rawB))

	docs, err := s.QueryDocuments(context.Background(), "team_mappings", map[string]interface{}{"team_id": "TEAMA"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("expected 2 documents, got %d", len(docs))
	}
}

// ===== Integration test against a real database =====

func TestPostgresStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	s := NewPostgresStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	id, err := s.CreateDocument(ctx, "team_mappings", Document{
		"conversation_id": "chat-it",
		"team_id":         "TEAMA",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer s.DeleteDocument(ctx, "team_mappings", id)

	doc, err := s.GetDocument(ctx, "team_mappings", id)
	if err != nil || doc["team_id"] != "TEAMA" {
		t.Fatalf("get: %+v err=%v", doc, err)
	}

	docs, err := s.QueryDocuments(ctx, "team_mappings", map[string]interface{}{"conversation_id": "chat-it"})
	if err != nil || len(docs) != 1 {
		t.Fatalf("query: %d docs, err=%v", len(docs), err)
	}

	if err := s.UpdateDocument(ctx, "team_mappings", id, Document{
		"conversation_id": "chat-it",
		"team_id":         "TEAMB",
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, _ = s.GetDocument(ctx, "team_mappings", id)
	if doc["team_id"] != "TEAMB" {
		t.Errorf("update not visible: %+v", doc)
	}
}
