package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/query-router/agent/contract"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type recordRow struct {
	bun.BaseModel `bun:"table:execution_records,alias:er"`

	QueryID     string    `bun:"query_id,pk"`
	QueryText   string    `bun:"query_text,notnull"`
	FinalAnswer string    `bun:"final_answer,notnull"`
	Payload     string    `bun:"payload,type:jsonb,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
}

func toRow(rec contractx.ExecutionRecord) (*recordRow, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal execution record: %w", err)
	}
	return &recordRow{
		QueryID:     strings.TrimSpace(rec.Query.ID),
		QueryText:   rec.Query.Text,
		FinalAnswer: rec.FinalAnswer,
		Payload:     string(payload),
		CreatedAt:   rec.CreatedAt.UTC(),
	}, nil
}

// PostgresStore persists records through bun.
type PostgresStore struct {
	db *bun.DB
}

var _ contractx.TraceStore = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if _, err := db.NewCreateTable().Model((*recordRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("create execution_records table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Save(ctx context.Context, rec contractx.ExecutionRecord) error {
	if strings.TrimSpace(rec.Query.ID) == "" {
		return fmt.Errorf("%w: query id is required", contractx.ErrValidation)
	}
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(row).On("CONFLICT (query_id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert execution record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByQueryID(ctx context.Context, queryID string) (contractx.ExecutionRecord, error) {
	row := new(recordRow)
	err := s.db.NewSelect().Model(row).Where("query_id = ?", strings.TrimSpace(queryID)).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.ExecutionRecord{}, contractx.ErrRecordNotFound
	}
	if err != nil {
		return contractx.ExecutionRecord{}, fmt.Errorf("select execution record: %w", err)
	}
	return decodeRecord([]byte(row.Payload))
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
