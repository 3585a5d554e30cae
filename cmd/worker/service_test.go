package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
)

type fakeConsumer struct {
	started chan struct{}
	err     error
}

func newFakeConsumer(err error) *fakeConsumer {
	return &fakeConsumer{started: make(chan struct{}), err: err}
}

func (f *fakeConsumer) Run(ctx context.Context) error {
	close(f.started)
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeConsumer) ran() bool {
	select {
	case <-f.started:
		return true
	default:
		return false
	}
}

func up(name string) Dependency {
	return Dependency{Name: name, Ping: func(context.Context) error { return nil }}
}

func down(name string, err error) Dependency {
	return Dependency{Name: name, Ping: func(context.Context) error { return err }}
}

func newWorker(t *testing.T, deps []Dependency, consumers map[string]Consumer) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:       logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard}),
		Dependencies: deps,
		Consumers:    consumers,
	})
	require.NoError(t, err)
	return svc
}

func TestRunReportsEveryUnreadyDependency(t *testing.T) {
	ratings := newFakeConsumer(nil)
	svc := newWorker(t,
		[]Dependency{down("database", errors.New("refused")), up("redis"), down("pubsub", errors.New("no topic"))},
		map[string]Consumer{"ratings": ratings})

	err := svc.Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database: refused")
	assert.Contains(t, err.Error(), "pubsub: no topic")
	assert.False(t, ratings.ran(), "consumer started before dependencies were ready")
}

func TestRunStopsSiblingsWhenOneConsumerFails(t *testing.T) {
	boom := errors.New("subscription deleted")
	healthy := newFakeConsumer(nil)
	svc := newWorker(t, []Dependency{up("database")}, map[string]Consumer{
		"ratings": newFakeConsumer(boom),
		"other":   healthy,
	})

	done := make(chan error, 1)
	go func() { done <- svc.Run(t.Context()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after a consumer failed")
	}
}

func TestRunReturnsCanceledOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	ratings := newFakeConsumer(nil)
	svc := newWorker(t, nil, map[string]Consumer{"ratings": ratings})

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	<-ratings.started
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestNewServiceValidatesParams(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})

	_, err := NewService(ServiceParams{Logger: logg})
	assert.Error(t, err, "no consumers")

	_, err = NewService(ServiceParams{
		Logger:       logg,
		Dependencies: []Dependency{{Name: "redis"}},
		Consumers:    map[string]Consumer{"ratings": newFakeConsumer(nil)},
	})
	assert.ErrorContains(t, err, "redis")
}
