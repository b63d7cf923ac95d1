package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "github.com/AlibekovAA/user-directory/backend/internal/common/errors"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
	"github.com/AlibekovAA/user-directory/backend/internal/user/domain"
)

type fakePublisher struct {
	mu       sync.Mutex
	calls    int
	errs     []error
	payloads [][]byte
}

func (f *fakePublisher) Name() string { return "fake" }
func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) Publish(ctx context.Context, correlationID string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.payloads = append(f.payloads, payload)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type recorded struct {
	correlationID string
	payload       []byte
	reason        string
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []recorded
}

func (f *fakeRecorder) Record(ctx context.Context, correlationID string, payload []byte, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, recorded{correlationID, payload, reason})
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("", "events-test", "error")
	require.NoError(t, err)
	return log
}

func newTestEmitter(t *testing.T, pub Publisher, rec FailureRecorder) *Emitter {
	t.Helper()
	return NewEmitter(pub, rec, EmitterConfig{
		Timeout:                 time.Second,
		RetryAttempts:           3,
		RetryDelay:              time.Millisecond,
		CircuitBreakerThreshold: 10,
		CircuitBreakerReset:     time.Hour,
	}, testLogger(t))
}

func sampleEvent() *domain.ChangeEvent {
	return &domain.ChangeEvent{Username: "johndoe", FirstName: "John", LastName: domain.StringPtr("Doe"), Active: true}
}

func TestEmitter_RejectsInvalidInput(t *testing.T) {
	pub := &fakePublisher{}
	rec := &fakeRecorder{}
	e := newTestEmitter(t, pub, rec)

	assert.ErrorIs(t, e.Emit(context.Background(), "  ", sampleEvent()), ErrInvalidEmitInput)
	assert.ErrorIs(t, e.Emit(context.Background(), "cid", nil), ErrInvalidEmitInput)
	assert.Zero(t, pub.calls)
	assert.Empty(t, rec.records)
}

func TestEmitter_PublishesProjection(t *testing.T) {
	pub := &fakePublisher{}
	rec := &fakeRecorder{}
	e := newTestEmitter(t, pub, rec)

	require.NoError(t, e.Emit(context.Background(), "cid-1", sampleEvent()))

	require.Len(t, pub.payloads, 1)
	assert.JSONEq(t, `{"username":"johndoe","firstName":"John","lastName":"Doe","active":true}`, string(pub.payloads[0]))
	assert.Empty(t, rec.records)
}

func TestEmitter_RetriesTransportFailures(t *testing.T) {
	pub := &fakePublisher{errs: []error{errors.New("connection reset"), errors.New("connection reset")}}
	rec := &fakeRecorder{}
	e := newTestEmitter(t, pub, rec)

	require.NoError(t, e.Emit(context.Background(), "cid-1", sampleEvent()))
	assert.Equal(t, 3, pub.calls)
	assert.Empty(t, rec.records)
}

func TestEmitter_RecordsAfterRetriesExhausted(t *testing.T) {
	down := errors.New("broker down")
	pub := &fakePublisher{errs: []error{down, down, down}}
	rec := &fakeRecorder{}
	e := newTestEmitter(t, pub, rec)

	err := e.Emit(context.Background(), "cid-1", sampleEvent())

	assert.ErrorIs(t, err, down)
	assert.Equal(t, 3, pub.calls)
	require.Len(t, rec.records, 1)
	assert.Equal(t, "cid-1", rec.records[0].correlationID)
	assert.Contains(t, rec.records[0].reason, "broker down")

	event, err := domain.UnmarshalChangeEvent(rec.records[0].payload)
	require.NoError(t, err)
	assert.Equal(t, "johndoe", event.Username)
}

func TestEmitter_NackIsRecordedWithoutRetry(t *testing.T) {
	pub := &fakePublisher{errs: []error{ErrNotAcknowledged}}
	rec := &fakeRecorder{}
	e := newTestEmitter(t, pub, rec)

	err := e.Emit(context.Background(), "cid-1", sampleEvent())

	assert.ErrorIs(t, err, ErrNotAcknowledged)
	assert.Equal(t, 1, pub.calls)
	assert.Len(t, rec.records, 1)
}

func TestEmitter_OpenCircuitIsRecorded(t *testing.T) {
	down := errors.New("broker down")
	pub := &fakePublisher{errs: []error{down, down, down, down}}
	rec := &fakeRecorder{}
	e := NewEmitter(pub, rec, EmitterConfig{
		RetryAttempts:           3,
		RetryDelay:              time.Millisecond,
		CircuitBreakerThreshold: 1,
		CircuitBreakerReset:     time.Hour,
	}, testLogger(t))

	err := e.Emit(context.Background(), "cid-1", sampleEvent())
	assert.ErrorIs(t, err, commonerrors.ErrCircuitOpen)
	assert.Equal(t, 1, pub.calls)

	err = e.Emit(context.Background(), "cid-2", sampleEvent())
	assert.ErrorIs(t, err, commonerrors.ErrCircuitOpen)
	assert.Equal(t, 1, pub.calls)
	assert.Len(t, rec.records, 2)
}

type fakeJetStream struct {
	msg *nats.Msg
	ack *jetstream.PubAck
	err error
}

func (f *fakeJetStream) PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.msg = msg
	return f.ack, f.err
}

func TestNATSPublisher_SetsCorrelationHeader(t *testing.T) {
	js := &fakeJetStream{ack: &jetstream.PubAck{Stream: "APPUSERS", Sequence: 7}}
	p := newNATSPublisher(js, "appusers.changed", "", testLogger(t))

	require.NoError(t, p.Publish(context.Background(), "cid-1", []byte(`{}`)))

	require.NotNil(t, js.msg)
	assert.Equal(t, "appusers.changed", js.msg.Subject)
	assert.Equal(t, "cid-1", js.msg.Header.Get("correlationId"))
	assert.Equal(t, []byte(`{}`), js.msg.Data)
	assert.NoError(t, p.Close())
}

func TestNATSPublisher_Failures(t *testing.T) {
	p := newNATSPublisher(&fakeJetStream{}, "s", "h", testLogger(t))
	assert.ErrorIs(t, p.Publish(context.Background(), "cid", nil), ErrNotAcknowledged)

	timeout := errors.New("nats: timeout")
	p = newNATSPublisher(&fakeJetStream{err: timeout}, "s", "h", testLogger(t))
	err := p.Publish(context.Background(), "cid", nil)
	assert.ErrorIs(t, err, timeout)
	assert.NotErrorIs(t, err, ErrNotAcknowledged)
}

type fakeChannel struct {
	mu          sync.Mutex
	confirmMode bool
	confirms    chan amqp.Confirmation
	published   []amqp.Publishing
	replies     [][]amqp.Confirmation
	closed      bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return nil
}

func (f *fakeChannel) Confirm(noWait bool) error {
	f.confirmMode = true
	return nil
}

func (f *fakeChannel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	f.confirms = confirm
	return confirm
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	if len(f.replies) == 0 {
		return nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	go func() {
		for _, c := range reply {
			f.confirms <- c
		}
	}()
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestRabbit(t *testing.T, ch *fakeChannel) *RabbitPublisher {
	t.Helper()
	p, err := newRabbitPublisher(ch, RabbitConfig{Exchange: "appusers", RoutingKey: "appusers.changed"}, testLogger(t))
	require.NoError(t, err)
	p.timeout = 50 * time.Millisecond
	return p
}

func TestRabbitPublisher_Ack(t *testing.T) {
	ch := &fakeChannel{replies: [][]amqp.Confirmation{{{DeliveryTag: 1, Ack: true}}}}
	p := newTestRabbit(t, ch)

	require.NoError(t, p.Publish(context.Background(), "cid-1", []byte(`{}`)))

	assert.True(t, ch.confirmMode)
	require.Len(t, ch.published, 1)
	assert.Equal(t, "cid-1", ch.published[0].CorrelationId)
	assert.Equal(t, "cid-1", ch.published[0].Headers["correlationId"])
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
}

func TestRabbitPublisher_Nack(t *testing.T) {
	ch := &fakeChannel{replies: [][]amqp.Confirmation{{{DeliveryTag: 1, Ack: false}}}}
	p := newTestRabbit(t, ch)

	assert.ErrorIs(t, p.Publish(context.Background(), "cid-1", nil), ErrNotAcknowledged)
}

func TestRabbitPublisher_SkipsStaleConfirmations(t *testing.T) {
	ch := &fakeChannel{replies: [][]amqp.Confirmation{
		{},
		{{DeliveryTag: 1, Ack: false}, {DeliveryTag: 2, Ack: true}},
	}}
	p := newTestRabbit(t, ch)

	err := p.Publish(context.Background(), "cid-1", nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAcknowledged)

	assert.NoError(t, p.Publish(context.Background(), "cid-2", nil))
	assert.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestLogPublisher_AlwaysAcknowledges(t *testing.T) {
	p := NewLogPublisher(testLogger(t))
	assert.NoError(t, p.Publish(context.Background(), "cid", []byte(`{}`)))
	assert.Equal(t, "log", p.Name())
}
