package dto

import "time"

type OutboxEntry struct {
	ID            int64     `json:"id"`
	CorrelationID string    `json:"correlationId"`
	Payload       string    `json:"payload"`
	Reason        *string   `json:"reason,omitempty"`
	FailedAt      time.Time `json:"failedAt"`
	Processed     bool      `json:"processed"`
}
