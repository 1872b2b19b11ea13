package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore keeps every collection in one documents table with a JSONB
// payload, so new collections need no migrations.
type PostgresStore struct {
	db *sql.DB
}

var _ DocumentStore = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database handle. The caller owns pool
// configuration; EnsureSchema must run before first use.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping verifies the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the documents table and its containment index.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		)
	`)
	if err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS documents_data_idx ON documents USING gin (data)
	`)
	if err != nil {
		return fmt.Errorf("create documents index: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, collection, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data FROM documents
		WHERE collection = $1 AND id = $2
	`, collection, id)

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewNotFoundError(collection, id)
		}
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s document %s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *PostgresStore) QueryDocuments(ctx context.Context, collection string, filters map[string]interface{}) ([]Document, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if len(filters) == 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT data FROM documents
			WHERE collection = $1
			ORDER BY created_at
		`, collection)
	} else {
		var filterJSON []byte
		filterJSON, err = json.Marshal(filters)
		if err != nil {
			return nil, fmt.Errorf("encode filters: %w", err)
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT data FROM documents
			WHERE collection = $1 AND data @> $2
			ORDER BY created_at
		`, collection, filterJSON)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", collection, err)
		}
		result = append(result, doc)
	}
	return result, rows.Err()
}

func (s *PostgresStore) CreateDocument(ctx context.Context, collection string, doc Document) (string, error) {
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
		stored := make(Document, len(doc)+1)
		for k, v := range doc {
			stored[k] = v
		}
		stored["id"] = id
		doc = stored
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
	`, collection, id, raw)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, collection, id string, doc Document) error {
	stored := make(Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}
	stored["id"] = id

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET data = $3, updated_at = now()
		WHERE collection = $1 AND id = $2
	`, collection, id, raw)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return NewNotFoundError(collection, id)
	}
	return nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, collection, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = $1 AND id = $2
	`, collection, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return NewNotFoundError(collection, id)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
