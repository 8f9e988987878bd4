package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mivahub/mivahub-backend/pkg/config"
	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	"github.com/mivahub/mivahub-backend/pkg/logger"
	"github.com/mivahub/mivahub-backend/pkg/outbox"
	"github.com/mivahub/mivahub-backend/pkg/outbox/payloads"
	"github.com/mivahub/mivahub-backend/pkg/outbox/registry"
)

const testTopic = "mh-job-events"

func TestDrainContinuesAfterTransientFailure(t *testing.T) {
	first := jobFailedRow(t, 0)
	second := jobFailedRow(t, 0)
	rows := &fakeRows{batch: []models.OutboxEvent{first, second}}
	snd := &fakeSender{errs: []error{errors.New("unavailable"), nil}}
	relay := newTestRelay(t, rows, snd, config.OutboxConfig{})

	n, err := relay.drain(context.Background())
	if err != nil {
		t.Fatalf("drain returned error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows seen, got %d", n)
	}
	if len(rows.failed) != 1 || rows.failed[0] != first.ID {
		t.Fatalf("expected first row marked failed, got %v", rows.failed)
	}
	if len(rows.published) != 1 || rows.published[0] != second.ID {
		t.Fatalf("expected second row published, got %v", rows.published)
	}
	if len(rows.parked) != 0 {
		t.Fatalf("expected nothing parked, got %v", rows.parked)
	}
}

func TestSendCopiesRoutingAttributes(t *testing.T) {
	row := jobFailedRow(t, 0)
	snd := &fakeSender{}
	relay := newTestRelay(t, &fakeRows{batch: []models.OutboxEvent{row}}, snd, config.OutboxConfig{})

	if _, err := relay.drain(context.Background()); err != nil {
		t.Fatalf("drain returned error: %v", err)
	}
	if len(snd.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(snd.sent))
	}
	msg := snd.sent[0]
	if msg.topic != testTopic {
		t.Fatalf("unexpected topic %q", msg.topic)
	}
	attrs := msg.msg.Attributes
	checks := map[string]string{
		"event_id":     row.ID.String(),
		"event_type":   string(enums.EventJobFailed),
		"aggregate_id": row.AggregateID.String(),
		"schema":       "1",
		"request_id":   "req-9",
	}
	for key, want := range checks {
		if attrs[key] != want {
			t.Fatalf("attribute %s = %q, want %q", key, attrs[key], want)
		}
	}
	if string(msg.msg.Data) != string(row.Payload) {
		t.Fatalf("message body should be the stored envelope")
	}
}

func TestDrainParksUndecodableRows(t *testing.T) {
	row := jobFailedRow(t, 0)
	row.AggregateType = enums.AggregateMaterial
	rows := &fakeRows{batch: []models.OutboxEvent{row}}
	snd := &fakeSender{}
	relay := newTestRelay(t, rows, snd, config.OutboxConfig{MaxAttempts: 4})

	if _, err := relay.drain(context.Background()); err != nil {
		t.Fatalf("drain returned error: %v", err)
	}
	if len(rows.parked) != 1 || rows.parked[0] != row.ID {
		t.Fatalf("expected row parked, got %v", rows.parked)
	}
	if rows.parkedAt != 4 {
		t.Fatalf("expected attempts pinned at 4, got %d", rows.parkedAt)
	}
	if len(snd.sent) != 0 {
		t.Fatalf("undecodable rows must not be sent")
	}
}

func TestDrainParksPermanentSendErrors(t *testing.T) {
	row := jobFailedRow(t, 0)
	rows := &fakeRows{batch: []models.OutboxEvent{row}}
	snd := &fakeSender{errs: []error{registry.Permanent(errors.New("topic deleted"))}}
	relay := newTestRelay(t, rows, snd, config.OutboxConfig{})

	if _, err := relay.drain(context.Background()); err != nil {
		t.Fatalf("drain returned error: %v", err)
	}
	if len(rows.parked) != 1 || len(rows.failed) != 0 {
		t.Fatalf("expected permanent error to park, parked=%v failed=%v", rows.parked, rows.failed)
	}
}

func TestDrainParksAfterMaxAttempts(t *testing.T) {
	row := jobFailedRow(t, 1)
	rows := &fakeRows{batch: []models.OutboxEvent{row}}
	snd := &fakeSender{errs: []error{errors.New("deadline exceeded")}}
	relay := newTestRelay(t, rows, snd, config.OutboxConfig{MaxAttempts: 2})

	if _, err := relay.drain(context.Background()); err != nil {
		t.Fatalf("drain returned error: %v", err)
	}
	if len(rows.parked) != 1 {
		t.Fatalf("expected parked row, got %v", rows.parked)
	}
	if len(rows.failed) != 0 {
		t.Fatalf("parked rows should not also be marked failed")
	}
}

func TestDrainReportsBookkeepingFailure(t *testing.T) {
	rows := &fakeRows{batch: []models.OutboxEvent{jobFailedRow(t, 0)}, markErr: errors.New("conn reset")}
	relay := newTestRelay(t, rows, &fakeSender{}, config.OutboxConfig{})

	if _, err := relay.drain(context.Background()); err == nil {
		t.Fatalf("expected drain to fail when row state cannot be written")
	}
}

func TestDrainEmpty(t *testing.T) {
	relay := newTestRelay(t, &fakeRows{}, &fakeSender{}, config.OutboxConfig{})

	n, err := relay.drain(context.Background())
	if err != nil {
		t.Fatalf("drain returned error: %v", err)
	}
	if n != 0 {
		t.Fatalf("empty table should report 0 rows, got %d", n)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	relay := newTestRelay(t, &fakeRows{}, &fakeSender{}, config.OutboxConfig{PollIntervalMS: 5})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := relay.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	b := newBackoff(100*time.Millisecond, time.Second, 0)
	if got := b.fail(); got != 200*time.Millisecond {
		t.Fatalf("unexpected first backoff %s", got)
	}
	for range 5 {
		b.fail()
	}
	if got := b.fail(); got != time.Second {
		t.Fatalf("backoff should cap at 1s, got %s", got)
	}
	b.reset()
	if got := b.idle(); got != 100*time.Millisecond {
		t.Fatalf("idle wait should be the base interval, got %s", got)
	}

	jittered := newBackoff(time.Second, time.Second, 50*time.Millisecond)
	if got := jittered.idle(); got < time.Second || got >= time.Second+50*time.Millisecond {
		t.Fatalf("jitter out of range: %s", got)
	}
}

func TestNewRelayRequiresDependencies(t *testing.T) {
	if _, err := NewRelay(RelayParams{}); err == nil {
		t.Fatalf("expected error without dependencies")
	}
}

func newTestRelay(t *testing.T, rows rowStore, snd *fakeSender, cfg config.OutboxConfig) *Relay {
	t.Helper()
	catalog, err := registry.NewCatalog(config.PubSubConfig{JobEventsTopic: testTopic})
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	relay, err := NewRelay(RelayParams{
		Config:  cfg,
		Logger:  logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:      fakeDB{},
		Rows:    rows,
		Catalog: catalog,
		Sender:  snd,
	})
	if err != nil {
		t.Fatalf("build relay: %v", err)
	}
	return relay
}

func jobFailedRow(tb testing.TB, attempts int) models.OutboxEvent {
	tb.Helper()
	jobID := uuid.New()
	data, err := json.Marshal(payloads.JobFailedEvent{
		JobID:        jobID,
		MaterialID:   uuid.New(),
		JobType:      enums.JobTypePDFProcessing,
		ErrorMessage: "worker returned 503",
	})
	if err != nil {
		tb.Fatalf("marshal payload: %v", err)
	}
	id := uuid.New()
	env, err := json.Marshal(outbox.Envelope{
		EventID:    id,
		Schema:     outbox.SchemaVersion,
		OccurredAt: time.Now().UTC(),
		RequestID:  "req-9",
		Data:       data,
	})
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     enums.EventJobFailed,
		AggregateType: enums.AggregateProcessingJob,
		AggregateID:   jobID,
		Payload:       env,
		AttemptCount:  attempts,
	}
}

type fakeRows struct {
	batch     []models.OutboxEvent
	markErr   error
	published []uuid.UUID
	failed    []uuid.UUID
	parked    []uuid.UUID
	parkedAt  int
}

func (f *fakeRows) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.batch, nil
}

func (f *fakeRows) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRows) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRows) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, attempts int) error {
	f.parked = append(f.parked, id)
	f.parkedAt = attempts
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type sentMessage struct {
	topic string
	msg   *gcppubsub.Message
}

type fakeSender struct {
	errs []error
	sent []sentMessage
}

func (f *fakeSender) Ping(context.Context) error { return nil }

func (f *fakeSender) Send(_ context.Context, topic string, msg *gcppubsub.Message) (string, error) {
	f.sent = append(f.sent, sentMessage{topic: topic, msg: msg})
	if len(f.errs) == 0 {
		return "msg-1", nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return "", err
}
