package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultListLimit caps ListLogs when no positive limit is given.
const DefaultListLimit = 50

// LogRecord is one stored conversation exchange.
type LogRecord struct {
	ID          int64           `json:"id"`
	RequestID   string          `json:"request_id"`
	SessionID   string          `json:"session_id"`
	Endpoint    string          `json:"endpoint"`
	UserMessage string          `json:"user_message"`
	Response    string          `json:"response"`
	Meta        json.RawMessage `json:"meta,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

const logColumns = "id, request_id, session_id, endpoint, user_message, response, meta_json, error, created_at"

// InsertLog stores rec and sets its ID. A zero CreatedAt is set to now.
func (db *DB) InsertLog(rec *LogRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	meta := rec.Meta
	if len(meta) == 0 {
		meta = json.RawMessage("{}")
	}

	result, err := db.Exec(
		`INSERT INTO conversation_logs (request_id, session_id, endpoint, user_message, response, meta_json, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.SessionID, rec.Endpoint, rec.UserMessage, rec.Response,
		string(meta), rec.Error, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	rec.ID = id
	return nil
}

// GetLog returns the record with the given id.
func (db *DB) GetLog(id int64) (*LogRecord, error) {
	row := db.QueryRow("SELECT "+logColumns+" FROM conversation_logs WHERE id = ?", id)
	rec, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListLogs returns the newest records first. An empty sessionID lists all
// sessions; a non-positive limit means DefaultListLimit.
func (db *DB) ListLogs(sessionID string, limit int) ([]*LogRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := "SELECT " + logColumns + " FROM conversation_logs"
	args := []any{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var records []*LogRecord
	for rows.Next() {
		rec, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PruneLogsBefore deletes records created before t and returns how many
// were removed.
func (db *DB) PruneLogsBefore(t time.Time) (int64, error) {
	result, err := db.Exec("DELETE FROM conversation_logs WHERE created_at < ?", t.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune logs: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(s rowScanner) (*LogRecord, error) {
	var (
		rec       LogRecord
		meta      string
		createdMs int64
	)
	err := s.Scan(&rec.ID, &rec.RequestID, &rec.SessionID, &rec.Endpoint,
		&rec.UserMessage, &rec.Response, &meta, &rec.Error, &createdMs)
	if err != nil {
		return nil, err
	}
	rec.Meta = json.RawMessage(meta)
	rec.CreatedAt = time.UnixMilli(createdMs)
	return &rec, nil
}
