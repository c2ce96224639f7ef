package trace

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/query-router/agent/contract"
	qstashx "github.com/tanpawarit/query-router/pkg/qstash"
)

// Publisher hands saved records to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, destination string, body []byte) (qstashx.PublishResponse, error)
}

// PublishingStore saves through the wrapped store and then publishes the
// record. Publish failures are logged and never fail the save.
type PublishingStore struct {
	contractx.TraceStore
	publisher   Publisher
	destination string
	logger      zerolog.Logger
}

func NewPublishingStore(store contractx.TraceStore, publisher Publisher, destination string) *PublishingStore {
	return &PublishingStore{
		TraceStore:  store,
		publisher:   publisher,
		destination: destination,
		logger:      log.Logger,
	}
}

func (s *PublishingStore) Save(ctx context.Context, rec contractx.ExecutionRecord) error {
	if err := s.TraceStore.Save(ctx, rec); err != nil {
		return err
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warn().Err(err).Str("query_id", rec.Query.ID).Msg("encode record for publish")
		return nil
	}
	resp, err := s.publisher.Publish(ctx, s.destination, payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("query_id", rec.Query.ID).Msg("publish execution record")
		return nil
	}
	s.logger.Debug().Str("query_id", rec.Query.ID).Str("message_id", resp.MessageID).Msg("execution record published")
	return nil
}
