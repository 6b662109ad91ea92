package sqlite

import (
	"time"

	"github.com/yegors/atlas/internal/intent"
)

// ParseRecord represents one stored parse together with its raw utterance
type ParseRecord struct {
	ID        int64               `json:"id"`
	Timestamp time.Time           `json:"timestamp"`
	Text      string              `json:"text"`
	Result    *intent.ParseResult `json:"result"`
	CreatedAt time.Time           `json:"created_at"`
}

// DefaultQueryLimit is used when a query is given a non-positive limit
const DefaultQueryLimit = 100
