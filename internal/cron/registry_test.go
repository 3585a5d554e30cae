package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "auction-expiry"}, nil)
	require.NoError(t, registry.Register(&stubJob{name: "notification-cleanup"}))

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "auction-expiry", jobs[0].Name())
	assert.Equal(t, "notification-cleanup", jobs[1].Name())

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0])
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "outbox-retention"})
	assert.Error(t, registry.Register(&stubJob{name: "outbox-retention"}))
	assert.Len(t, registry.Jobs(), 1)

	assert.Panics(t, func() {
		NewRegistry(&stubJob{name: "a"}, &stubJob{name: "a"})
	})
}
