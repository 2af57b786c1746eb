package store

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// SeedItems inserts planned items that are not already tracked, keyed by the
// original object key. Replanning never duplicates or resets existing rows, so
// status survives across plan/run cycles. It returns the number inserted.
func (s *Store) SeedItems(ctx context.Context, items []*FileItem) (int, error) {
	now := timestamp(time.Now())
	inserted := 0
	for _, item := range items {
		result, err := s.execWithRetry(ctx, `
INSERT OR IGNORE INTO file_items
    (group_key, ordinal, original_key, original_name, original_size, catalog_id, platform, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.GroupKey, item.Ordinal, item.OriginalKey, item.OriginalName, item.OriginalSize,
			item.CatalogID, string(item.Platform), string(StatusPending), now, now)
		if err != nil {
			return inserted, fmt.Errorf("seed item %q: %w", item.OriginalKey, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("seed item %q: %w", item.OriginalKey, err)
		}
		if affected > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// UpdateItem writes the item's mutable fields through to the database.
func (s *Store) UpdateItem(ctx context.Context, item *FileItem) error {
	now := time.Now()
	result, err := s.execWithRetry(ctx, `
UPDATE file_items SET
    new_key = ?, new_name = ?, new_size = ?, new_hash = ?, new_content_type = ?,
    status = ?, skipped_reason = ?, updated_at = ?
WHERE id = ?`,
		item.NewKey, item.NewName, item.NewSize, item.NewHash, item.NewContentType,
		string(item.Status), item.SkippedReason, timestamp(now), item.ID)
	if err != nil {
		return fmt.Errorf("update item %d: %w", item.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update item %d: %w", item.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("update item %d: not found", item.ID)
	}
	item.UpdatedAt = now
	return nil
}

const itemColumns = `id, group_key, ordinal, original_key, original_name, original_size,
    new_key, new_name, new_size, new_hash, new_content_type,
    catalog_id, platform, status, skipped_reason, created_at, updated_at`

// ListGroups returns every tracked item partitioned into file groups. Groups
// appear in order of their first item's insertion; items within a group are
// ordered by ordinal.
func (s *Store) ListGroups(ctx context.Context) ([]*FileGroup, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM file_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	groupsByKey := make(map[string]*FileGroup)
	var ordered []*FileGroup
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		group, ok := groupsByKey[item.GroupKey]
		if !ok {
			group = &FileGroup{
				Key:       item.GroupKey,
				CatalogID: item.CatalogID,
				Platform:  item.Platform,
			}
			groupsByKey[item.GroupKey] = group
			ordered = append(ordered, group)
		}
		group.Items = append(group.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	for _, group := range ordered {
		sortItemsByOrdinal(group.Items)
	}
	return ordered, nil
}

// Counts aggregates item totals per status.
func (s *Store) Counts(ctx context.Context) (StatusCounts, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM file_items GROUP BY status`)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("count items: %w", err)
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return StatusCounts{}, fmt.Errorf("count items: %w", err)
		}
		counts.Total += n
		switch Status(status) {
		case StatusPending:
			counts.Pending = n
		case StatusProcessing:
			counts.Processing = n
		case StatusCompleted:
			counts.Completed = n
		case StatusFailed:
			counts.Failed = n
		case StatusSkipped:
			counts.Skipped = n
		}
	}
	if err := rows.Err(); err != nil {
		return StatusCounts{}, fmt.Errorf("count items: %w", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*FileItem, error) {
	var item FileItem
	var platform, status, createdAt, updatedAt string
	err := row.Scan(
		&item.ID, &item.GroupKey, &item.Ordinal, &item.OriginalKey, &item.OriginalName, &item.OriginalSize,
		&item.NewKey, &item.NewName, &item.NewSize, &item.NewHash, &item.NewContentType,
		&item.CatalogID, &platform, &status, &item.SkippedReason, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan item: %w", err)
	}
	item.Platform = Platform(platform)
	item.Status = Status(status)
	item.CreatedAt = parseTimestamp(createdAt)
	item.UpdatedAt = parseTimestamp(updatedAt)
	return &item, nil
}

func sortItemsByOrdinal(items []*FileItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Ordinal < items[j].Ordinal
	})
}
