package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	contractx "github.com/tanpawarit/query-router/agent/contract"
)

// MemoryStore keeps records in process. Records are stored encoded so
// callers cannot mutate what was saved.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

var _ contractx.TraceStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (s *MemoryStore) Save(ctx context.Context, rec contractx.ExecutionRecord) error {
	id := strings.TrimSpace(rec.Query.ID)
	if id == "" {
		return fmt.Errorf("%w: query id is required", contractx.ErrValidation)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[id]; exists {
		return nil
	}
	s.records[id] = payload
	return nil
}

func (s *MemoryStore) FindByQueryID(ctx context.Context, queryID string) (contractx.ExecutionRecord, error) {
	s.mu.RLock()
	payload, ok := s.records[strings.TrimSpace(queryID)]
	s.mu.RUnlock()
	if !ok {
		return contractx.ExecutionRecord{}, contractx.ErrRecordNotFound
	}
	return decodeRecord(payload)
}

func decodeRecord(payload []byte) (contractx.ExecutionRecord, error) {
	var rec contractx.ExecutionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return contractx.ExecutionRecord{}, fmt.Errorf("unmarshal execution record: %w", err)
	}
	return rec, nil
}
