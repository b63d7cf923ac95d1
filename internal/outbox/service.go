package outbox

import (
	"context"

	"github.com/AlibekovAA/user-directory/backend/internal/common/clock"
	commondb "github.com/AlibekovAA/user-directory/backend/internal/common/db"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
	"github.com/AlibekovAA/user-directory/backend/internal/observability/metrics"
)

type Service struct {
	store   Store
	enabled bool
	clock   clock.Clock
	log     *logger.Logger
}

func NewService(store Store, enabled bool, clk clock.Clock, log *logger.Logger) *Service {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Service{store: store, enabled: enabled, clock: clk, log: log}
}

// Record stores a failed emission. It never returns an error: a lost record
// only degrades delivery.
func (s *Service) Record(ctx context.Context, correlationID string, payload []byte, reason string) {
	fields := logger.Fields{
		"correlation_id": correlationID,
		"action":         "outbox_record",
	}

	if !s.enabled {
		s.log.WithFields(ctx, fields).Warnf("outbox disabled, dropping failed emission: %s", reason)
		return
	}

	entry := Entry{
		CorrelationID: correlationID,
		Payload:       payload,
		FailedAt:      s.clock.Now(),
	}
	if reason != "" {
		entry.Reason = &reason
	}

	var stored Entry
	err := commondb.RetryWithBackoff(ctx, s.log, commondb.DefaultRetryConfig, func(ctx context.Context) error {
		var insertErr error
		stored, insertErr = s.store.Insert(ctx, entry)
		return insertErr
	})
	if err != nil {
		metrics.OutboxRecordFailures.Inc()
		s.log.WithFields(ctx, fields).Errorf("failed to record emission in outbox: %v", err)
		return
	}

	metrics.OutboxEntriesRecorded.Inc()
	fields["entry_id"] = stored.ID
	s.log.WithFields(ctx, fields).Infof("emission recorded in outbox: %s", reason)
}

func (s *Service) ClaimNext(ctx context.Context) (Entry, bool, error) {
	return s.store.ClaimNext(ctx)
}

func (s *Service) ListAll(ctx context.Context) ([]Entry, error) {
	return s.store.ListAll(ctx)
}

func (s *Service) FindByID(ctx context.Context, id int64) (Entry, bool, error) {
	return s.store.FindByID(ctx, id)
}
