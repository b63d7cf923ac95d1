package reprocess

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/AlibekovAA/user-directory/backend/internal/common/constants"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
	"github.com/AlibekovAA/user-directory/backend/internal/observability/metrics"
	"github.com/AlibekovAA/user-directory/backend/internal/outbox"
	"github.com/AlibekovAA/user-directory/backend/internal/user/domain"
	userrepo "github.com/AlibekovAA/user-directory/backend/internal/user/repository"
)

type Claimer interface {
	ClaimNext(ctx context.Context) (outbox.Entry, bool, error)
}

type UserLookup interface {
	FindByUsername(ctx context.Context, username string) (domain.User, error)
}

type Emitter interface {
	Emit(ctx context.Context, correlationID string, event *domain.ChangeEvent) error
}

// Recorder takes back entries whose replay could not be decided, so a
// claimed notification is not lost.
type Recorder interface {
	Record(ctx context.Context, correlationID string, payload []byte, reason string)
}

type Config struct {
	Schedule    string
	ItemsPerRun int
}

type Report struct {
	Claimed   int `json:"claimed"`
	Reemitted int `json:"reemitted"`
	Discarded int `json:"discarded"`
	Missing   int `json:"missing"`
	Failed    int `json:"failed"`
}

type Scheduler struct {
	claimer  Claimer
	users    UserLookup
	emitter  Emitter
	recorder Recorder
	cfg      Config
	log      *logger.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func NewScheduler(claimer Claimer, users UserLookup, emitter Emitter, recorder Recorder, cfg Config, log *logger.Logger) *Scheduler {
	if cfg.Schedule == "" {
		cfg.Schedule = constants.DefaultOutboxSchedule
	}
	return &Scheduler{claimer: claimer, users: users, emitter: emitter, recorder: recorder, cfg: cfg, log: log}
}

// RunOnce drains up to ItemsPerRun entries. Each claimed entry is either
// re-emitted under its original correlation id or discarded. Only a storage
// failure while claiming stops the run early.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	if s.cfg.ItemsPerRun <= 0 {
		return report, nil
	}

	start := time.Now()
	defer func() {
		metrics.OutboxReprocessRunDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	for report.Claimed < s.cfg.ItemsPerRun {
		entry, ok, err := s.claimer.ClaimNext(ctx)
		if err != nil {
			s.log.Errorf("outbox reprocess: claim failed: %v", err)
			return report, fmt.Errorf("claim outbox entry: %w", err)
		}
		if !ok {
			break
		}
		report.Claimed++

		outcome := s.process(ctx, entry)
		metrics.OutboxReprocessTotal.WithLabelValues(outcome).Inc()
		switch outcome {
		case "reemitted":
			report.Reemitted++
		case "discarded":
			report.Discarded++
		case "missing":
			report.Missing++
		default:
			report.Failed++
		}
	}

	if report.Claimed > 0 {
		s.log.Infof("outbox reprocess: claimed=%d reemitted=%d discarded=%d missing=%d failed=%d",
			report.Claimed, report.Reemitted, report.Discarded, report.Missing, report.Failed)
	}
	return report, nil
}

func (s *Scheduler) process(ctx context.Context, entry outbox.Entry) string {
	fields := logger.Fields{
		"correlation_id": entry.CorrelationID,
		"entry_id":       entry.ID,
		"action":         "outbox_reprocess",
	}

	event, err := domain.UnmarshalChangeEvent(entry.Payload)
	if err != nil {
		s.log.WithFields(ctx, fields).Errorf("skipping entry with unreadable payload: %v", err)
		return "failed"
	}
	fields["username"] = event.Username

	user, err := s.users.FindByUsername(ctx, event.Username)
	if errors.Is(err, userrepo.ErrUserNotFound) {
		s.log.WithFields(ctx, fields).Info("user no longer exists, discarding entry")
		return "missing"
	}
	if err != nil {
		s.log.WithFields(ctx, fields).Errorf("failed to load user: %v", err)
		if s.recorder != nil {
			s.recorder.Record(ctx, entry.CorrelationID, entry.Payload, fmt.Sprintf("user lookup failed: %v", err))
		}
		return "failed"
	}

	if event.Matches(user) {
		s.log.WithFields(ctx, fields).Debug("queued event matches live user, discarding")
		return "discarded"
	}

	if err := s.emitter.Emit(ctx, entry.CorrelationID, &event); err != nil {
		s.log.WithFields(ctx, fields).Warnf("re-emit failed: %v", err)
		return "failed"
	}
	return "reemitted"
}

// Start schedules RunOnce. A run still in progress makes the next tick a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.log}),
		cron.SkipIfStillRunning(cronLogger{s.log}),
	))
	_, err := c.AddFunc(s.cfg.Schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, constants.OutboxReprocessTimeout)
		defer cancel()
		if _, err := s.RunOnce(runCtx); err != nil {
			s.log.Errorf("outbox reprocess run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule outbox reprocess %q: %w", s.cfg.Schedule, err)
	}

	c.Start()
	s.cron = c
	s.log.Infof("outbox reprocess scheduled: %s, %d items per run", s.cfg.Schedule, s.cfg.ItemsPerRun)
	return nil
}

// Stop halts scheduling and waits for a running job, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("cron: %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorf("cron: %s: %v %v", msg, err, keysAndValues)
}
