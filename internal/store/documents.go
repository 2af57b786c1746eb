package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// WriteDocument stores value as JSON under name, replacing any prior content.
// Documents cache planning datasets so replanning can skip remote fetches.
func (s *Store) WriteDocument(ctx context.Context, name string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode document %q: %w", name, err)
	}
	_, err = s.execWithRetry(ctx, `
INSERT INTO documents (name, content, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
    content = excluded.content,
    updated_at = excluded.updated_at`,
		name, string(payload), timestamp(time.Now()))
	if err != nil {
		return fmt.Errorf("write document %q: %w", name, err)
	}
	return nil
}

// ReadDocument loads the named document into value. It returns false with a
// nil error when the document does not exist.
func (s *Store) ReadDocument(ctx context.Context, name string, value any) (bool, error) {
	ctx = ensureContext(ctx)
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM documents WHERE name = ?`, name).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read document %q: %w", name, err)
	}
	if err := json.Unmarshal([]byte(content), value); err != nil {
		return false, fmt.Errorf("decode document %q: %w", name, err)
	}
	return true, nil
}

// DeleteDocument removes the named document if present.
func (s *Store) DeleteDocument(ctx context.Context, name string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM documents WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete document %q: %w", name, err)
	}
	return nil
}
