package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewItem builds an unsaved item for a finalized file group.
func NewItem(sourcePath string, files []string) *Item {
	return &Item{
		SourcePath: sourcePath,
		Files:      append([]string(nil), files...),
		Status:     StatusPending,
	}
}

// Create inserts a new item, assigning a time-ordered identifier when none is set.
func (s *Store) Create(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	if strings.TrimSpace(item.SourcePath) == "" {
		return errors.New("item source path is empty")
	}
	if item.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate item id: %w", err)
		}
		item.ID = id.String()
	}
	if item.Status == "" {
		item.Status = StatusPending
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	files, err := encodeFiles(item.Files)
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}
	metadata, err := encodeMetadata(item.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.execWithRetry(ctx,
		`INSERT INTO queue_items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.SourcePath,
		files,
		string(item.Status),
		nullableString(string(item.Stage)),
		metadata,
		item.Confidence,
		nullableString(item.MatchSource),
		nullableString(item.Mode),
		boolToInt(item.Confirmed),
		nullableString(item.DestinationPath),
		nullableString(item.Reason),
		nullableString(item.ProgressMessage),
		nullableTime(item.LastHeartbeat),
		item.CreatedAt.Format(time.RFC3339Nano),
		item.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// GetByID fetches a queue item by identifier. A missing item yields nil, nil.
func (s *Store) GetByID(ctx context.Context, id string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// FindBySource returns the newest item recorded for a source directory.
func (s *Store) FindBySource(ctx context.Context, sourcePath string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+itemColumns+` FROM queue_items WHERE source_path = ? ORDER BY id DESC LIMIT 1`,
		sourcePath,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by source: %w", err)
	}
	return item, nil
}

// ListBySource returns every item recorded for a source directory, newest
// first. A reused download folder accumulates one item per book.
func (s *Store) ListBySource(ctx context.Context, sourcePath string) ([]*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+itemColumns+` FROM queue_items WHERE source_path = ? ORDER BY id DESC`,
		sourcePath,
	)
	if err != nil {
		return nil, fmt.Errorf("list by source: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// Update persists changes to an existing queue item.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()

	files, err := encodeFiles(item.Files)
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}
	metadata, err := encodeMetadata(item.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.execWithRetry(ctx,
		`UPDATE queue_items SET
            source_path = ?, files_json = ?, status = ?, stage = ?, metadata_json = ?,
            confidence = ?, match_source = ?, mode = ?, confirmed = ?, destination_path = ?,
            reason = ?, progress_message = ?, last_heartbeat = ?, updated_at = ?
        WHERE id = ?`,
		item.SourcePath,
		files,
		string(item.Status),
		nullableString(string(item.Stage)),
		metadata,
		item.Confidence,
		nullableString(item.MatchSource),
		nullableString(item.Mode),
		boolToInt(item.Confirmed),
		nullableString(item.DestinationPath),
		nullableString(item.Reason),
		nullableString(item.ProgressMessage),
		nullableTime(item.LastHeartbeat),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("update item %s: %w", item.ID, sql.ErrNoRows)
	}
	return nil
}

// UpdateHeartbeat stamps the item's last heartbeat without touching other fields.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.execWithRetry(ctx,
		`UPDATE queue_items SET last_heartbeat = ?, updated_at = ? WHERE id = ?`, now, now, id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// List returns items ordered by arrival, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY id`

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// Remove deletes an item. It reports whether a row existed.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.execWithRetry(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove item: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove item rows: %w", err)
	}
	return rows > 0, nil
}

// Stats returns item counts per status. Every known status is present.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int, len(allStatuses))
	for _, status := range allStatuses {
		stats[status] = 0
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// Health runs an integrity check and reports basic database facts.
func (s *Store) Health(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{DBPath: s.path}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx = ensureContext(ctx)
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM queue_items").Scan(&health.TotalItems); err != nil {
		health.Error = err.Error()
		return health
	}
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		health.Error = err.Error()
		return health
	}
	health.Integrity = result == "ok"
	return health
}
