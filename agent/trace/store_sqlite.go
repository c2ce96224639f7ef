package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	contractx "github.com/tanpawarit/query-router/agent/contract"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS execution_records (
	query_id     TEXT PRIMARY KEY,
	query_text   TEXT NOT NULL,
	final_answer TEXT NOT NULL,
	payload      TEXT NOT NULL,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_execution_records_created_at ON execution_records(created_at);
`

// SQLiteStore persists records in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ contractx.TraceStore = (*SQLiteStore)(nil)

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec contractx.ExecutionRecord) error {
	id := strings.TrimSpace(rec.Query.ID)
	if id == "" {
		return fmt.Errorf("%w: query id is required", contractx.ErrValidation)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO execution_records (query_id, query_text, final_answer, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, rec.Query.Text, rec.FinalAnswer, string(payload), rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert execution record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindByQueryID(ctx context.Context, queryID string) (contractx.ExecutionRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM execution_records WHERE query_id = ?`, strings.TrimSpace(queryID),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.ExecutionRecord{}, contractx.ErrRecordNotFound
	}
	if err != nil {
		return contractx.ExecutionRecord{}, fmt.Errorf("select execution record: %w", err)
	}
	return decodeRecord([]byte(payload))
}

// Recent returns the newest records first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]contractx.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM execution_records ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list execution records: %w", err)
	}
	defer rows.Close()

	var out []contractx.ExecutionRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan execution record: %w", err)
		}
		rec, err := decodeRecord([]byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
