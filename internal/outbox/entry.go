package outbox

import (
	"errors"
	"time"
)

var ErrEntryNotFound = errors.New("outbox entry not found")

// Entry is an emission that was never acknowledged by the broker.
type Entry struct {
	ID            int64     `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	Payload       []byte    `json:"payload"`
	Reason        *string   `json:"reason,omitempty"`
	FailedAt      time.Time `json:"failed_at"`
	Processed     bool      `json:"processed"`
}
