package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/bidhaven-backend/pkg/config"
	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"github.com/angelmondragon/bidhaven-backend/pkg/metrics"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox/registry"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type harness struct {
	svc  *Service
	repo *fakeRepo
	pub  *fakePublisher
	dlq  *fakeDLQRepo
	reg  *prometheus.Registry
}

func newHarness(t *testing.T, events []models.OutboxEvent, resolver registryResolver, maxAttempts int, results ...publishResult) *harness {
	t.Helper()
	h := &harness{
		repo: &fakeRepo{events: events},
		pub:  &fakePublisher{results: results},
		dlq:  &fakeDLQRepo{},
		reg:  prometheus.NewRegistry(),
	}
	svc, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 100, MaxAttempts: maxAttempts}},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               fakeDB{},
		PubSub:           fakePubSubClient{},
		Repository:       h.repo,
		Registry:         resolver,
		PublisherFactory: func(string) publisher { return h.pub },
		DLQRepository:    h.dlq,
		Metrics:          metrics.NewRelayMetrics(h.reg),
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func listingEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString(), OccurredAt: time.Now(), Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventBidPlaced,
		AggregateType: enums.AggregateListing,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
		CreatedAt:     time.Date(2026, 9, 14, 12, 0, 0, 0, time.UTC),
	}
}

func resolvesTo(topic string) *fakeRegistry {
	return &fakeRegistry{resolved: &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: topic},
		Payload:    &payloads.BidPlacedEvent{},
	}}
}

func TestProcessBatchRetriesFailuresAndPublishesTheRest(t *testing.T) {
	first, second := listingEvent(t, 0), listingEvent(t, 0)
	h := newHarness(t, []models.OutboxEvent{first, second}, resolvesTo("bh-listing-events"), 5,
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	)

	claimed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, []uuid.UUID{first.ID}, h.repo.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, h.repo.published)
	assert.Empty(t, h.dlq.entries)

	assert.Equal(t, 1.0, counterTotal(t, h.reg, "bidhaven_outbox_retries_total"))
	assert.Equal(t, 1.0, counterTotal(t, h.reg, "bidhaven_outbox_delivered_total"))
}

func TestProcessBatchSetsRoutingAttributes(t *testing.T) {
	event := listingEvent(t, 0)
	h := newHarness(t, []models.OutboxEvent{event}, resolvesTo("bh-rating-events"), 5, fakePublishResult{})
	var topics []string
	h.svc.topics = func(topic string) publisher {
		topics = append(topics, topic)
		return h.pub
	}

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"bh-rating-events"}, topics)
	require.Len(t, h.pub.sent, 1)

	msg := h.pub.sent[0]
	assert.Equal(t, []byte(event.Payload), msg.Data)
	assert.Equal(t, map[string]string{
		"event_id":       event.ID.String(),
		"event_type":     string(enums.EventBidPlaced),
		"aggregate_type": string(enums.AggregateListing),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     "2026-09-14T12:00:00Z",
	}, msg.Attributes)
}

func TestProcessBatchDeadLettersUnresolvableRows(t *testing.T) {
	event := listingEvent(t, 0)
	h := newHarness(t, []models.OutboxEvent{event}, &fakeRegistry{err: registry.Permanent(errors.New("invalid payload"))}, 5)

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, h.dlq.entries, 1)
	entry := h.dlq.entries[0]
	assert.Equal(t, event.ID, entry.EventID)
	assert.Equal(t, []byte(event.Payload), []byte(entry.Payload))
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	assert.Equal(t, []uuid.UUID{event.ID}, h.repo.terminal)
	assert.Empty(t, h.pub.sent)
}

func TestProcessBatchDeadLettersAfterMaxAttempts(t *testing.T) {
	event := listingEvent(t, 1)
	h := newHarness(t, []models.OutboxEvent{event}, resolvesTo("bh-listing-events"), 2, fakePublishResult{err: errors.New("transient")})

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, h.dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, h.dlq.entries[0].ErrorReason)
	assert.Contains(t, *h.dlq.entries[0].ErrorMessage, "gave up after 2 attempts")
	assert.Empty(t, h.repo.failed)
	assert.Equal(t, 1.0, counterTotal(t, h.reg, "bidhaven_outbox_dead_lettered_total"))
}

func TestProcessBatchTreatsMissingPublisherAsPermanent(t *testing.T) {
	event := listingEvent(t, 0)
	h := newHarness(t, []models.OutboxEvent{event}, resolvesTo("bh-unknown"), 5)
	h.svc.topics = func(string) publisher { return nil }

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, h.dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, h.dlq.entries[0].ErrorReason)
}

func TestProcessBatchReportsEmptyClaim(t *testing.T) {
	h := newHarness(t, nil, resolvesTo("bh-listing-events"), 5)
	claimed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestNewServiceListsMissingDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Config: &config.Config{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger is required")
	assert.Contains(t, err.Error(), "dlq repository is required")
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil, resolvesTo("bh-listing-events"), 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.svc.Run(ctx), context.Canceled)
}

// counterTotal sums every series of the named counter.
func counterTotal(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct{ err error }

func (f fakePublishResult) Get(context.Context) (string, error) { return "server-id", f.err }

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.EventType = event.EventType
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	return &resolved, nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
