// Package store defines the document store consumed by the platform core
// and provides the in-memory, Supabase REST and PostgreSQL implementations.
// Documents are schemaless JSON objects grouped into named collections; the
// "id" field is the primary key within a collection.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Document is one stored record. Values must be JSON-serializable.
type Document map[string]interface{}

// ID returns the document's id field, or "" when unset.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// DocumentStore is the persistence contract. A miss is reported with
// ErrNotFound; every other error means the backend failed and the caller may
// retry or degrade.
type DocumentStore interface {
	// GetDocument returns the document with the given id.
	GetDocument(ctx context.Context, collection, id string) (Document, error)

	// QueryDocuments returns the documents whose fields equal every filter
	// entry. A nil or empty filter returns the whole collection.
	QueryDocuments(ctx context.Context, collection string, filters map[string]interface{}) ([]Document, error)

	// CreateDocument stores a new document and returns its id. A missing id
	// field is assigned; an existing id must not collide.
	CreateDocument(ctx context.Context, collection string, doc Document) (string, error)

	// UpdateDocument replaces the document with the given id.
	UpdateDocument(ctx context.Context, collection, id string, doc Document) error

	// DeleteDocument removes the document with the given id.
	DeleteDocument(ctx context.Context, collection, id string) error

	// Close releases backend resources.
	Close() error
}

// ErrNotFound is the sentinel wrapped by every store miss.
var ErrNotFound = errors.New("document not found")

// NotFoundError reports which document was missing.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s document not found", e.Collection)
	}
	return fmt.Sprintf("%s document %q not found", e.Collection, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError builds a NotFoundError for one document.
func NewNotFoundError(collection, id string) *NotFoundError {
	return &NotFoundError{Collection: collection, ID: id}
}

// IsNotFound reports whether err means the document does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
