package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const itemColumns = "id, source_path, files_json, status, stage, metadata_json, confidence, match_source, mode, confirmed, destination_path, reason, progress_message, last_heartbeat, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id               string
		sourcePath       string
		filesRaw         sql.NullString
		statusStr        string
		stage            sql.NullString
		metadataRaw      sql.NullString
		confidence       sql.NullInt64
		matchSource      sql.NullString
		mode             sql.NullString
		confirmed        sql.NullInt64
		destination      sql.NullString
		reason           sql.NullString
		progressMessage  sql.NullString
		lastHeartbeatRaw sql.NullString
		createdRaw       string
		updatedRaw       string
	)
	if err := scanner.Scan(
		&id,
		&sourcePath,
		&filesRaw,
		&statusStr,
		&stage,
		&metadataRaw,
		&confidence,
		&matchSource,
		&mode,
		&confirmed,
		&destination,
		&reason,
		&progressMessage,
		&lastHeartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	meta, err := decodeMetadata(metadataRaw.String)
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", id, err)
	}
	item := &Item{
		ID:              id,
		SourcePath:      sourcePath,
		Status:          Status(statusStr),
		Stage:           Stage(stage.String),
		Metadata:        meta,
		Confidence:      int(confidence.Int64),
		MatchSource:     matchSource.String,
		Mode:            mode.String,
		Confirmed:       confirmed.Int64 != 0,
		DestinationPath: destination.String,
		Reason:          reason.String,
		ProgressMessage: progressMessage.String,
	}
	if filesRaw.Valid && filesRaw.String != "" {
		if err := json.Unmarshal([]byte(filesRaw.String), &item.Files); err != nil {
			return nil, fmt.Errorf("item %s: decode files: %w", id, err)
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			item.LastHeartbeat = &heartbeat
		}
	}
	return item, nil
}

func encodeFiles(files []string) (any, error) {
	if len(files) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(files)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
