package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/linkside/gateway/ports"
)

// DocStore implements ports.DocumentStore over a single documents table
// with JSON bodies. Filters compile to json_extract comparisons, so the
// same field names work across stores.
type DocStore struct {
	db *DB
}

// NewDocStore creates a SQLite-backed document store.
func NewDocStore(db *DB) *DocStore {
	return &DocStore{db: db}
}

// fieldPattern guards filter keys interpolated into json_extract paths.
var fieldPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Find returns documents matching the filter by field equality.
func (s *DocStore) Find(ctx context.Context, collection string, filter ports.Filter) ([]ports.Document, error) {
	query := "SELECT body FROM documents WHERE collection = ?"
	args := []any{collection}

	for field, value := range filter {
		if !fieldPattern.MatchString(field) {
			return nil, fmt.Errorf("invalid filter field %q", field)
		}
		query += " AND json_extract(body, '$." + field + "') = ?"
		args = append(args, value)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var result []ports.Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var doc ports.Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		result = append(result, doc)
	}
	return result, rows.Err()
}

// Create stores a document, assigning an "id" if absent. The id lives
// inside the JSON body as well as in the key column.
func (s *DocStore) Create(ctx context.Context, collection string, doc ports.Document) (ports.Document, error) {
	stored := make(ports.Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}
	id, _ := stored["id"].(string)
	if id == "" {
		id = uuid.New().String()
		stored["id"] = id
	}

	body, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)",
		collection, id, string(body))
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return stored, nil
}

// Update applies a partial patch to a document by id. Missing documents
// are a no-op, matching the memory store.
func (s *DocStore) Update(ctx context.Context, collection, id string, patch ports.Document) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE documents SET body = json_patch(body, ?) WHERE collection = ? AND id = ?",
		string(body), collection, id)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// Count returns the number of documents in a collection.
func (s *DocStore) Count(ctx context.Context, collection string) (int64, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE collection = ?", collection)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteBefore removes documents whose named timestamp field predates
// the cutoff. Used to bound usage_records growth.
func (s *DocStore) DeleteBefore(ctx context.Context, collection, field, cutoff string) (int64, error) {
	if !fieldPattern.MatchString(field) {
		return 0, fmt.Errorf("invalid field %q", field)
	}
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND json_extract(body, '$."+field+"') < ?",
		collection, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Ensure interface compliance.
var _ ports.DocumentStore = (*DocStore)(nil)
