package orchestratornode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/query-router/agent/contract"
)

var ErrInvalidQuery = fmt.Errorf("%w: query text is empty", contractx.ErrValidation)

// ValidateRequest turns raw input into a Query. A missing id is generated.
func ValidateRequest(in GraphInput, nowFn func() time.Time, newID func() string) (*GraphState, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidQuery
	}

	id := strings.TrimSpace(in.QueryID)
	if id == "" {
		id = newID()
	}
	if id == "" {
		return nil, errors.New("query id generator returned an empty id")
	}

	return &GraphState{
		Query: contractx.Query{
			ID:        id,
			Text:      text,
			CreatedAt: nowFn().UTC(),
		},
	}, nil
}
