package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion must change together with schema.sql.
const schemaVersion = 1

// ErrSchemaMismatch is returned when an existing database was written by a
// different schema version. There are no migrations; the file must be removed.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func (s *Store) migrate(ctx context.Context) error {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case err == nil:
		if version == schemaVersion {
			return nil
		}
		return fmt.Errorf("%w: %s is at v%d, want v%d (remove it to rebuild the queue)",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	case errors.Is(err, sql.ErrNoRows), isMissingTable(err):
		return s.install(ctx)
	default:
		return fmt.Errorf("read schema version: %w", err)
	}
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no such table")
}

func (s *Store) install(ctx context.Context) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema install: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("install schema: %w", err)
	}
	if _, err = tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit schema install: %w", err)
	}
	return nil
}
