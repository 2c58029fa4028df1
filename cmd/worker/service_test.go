package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kofabeauty/storefront-backend/pkg/logger"
)

type stubPinger struct {
	err   error
	calls int
}

func (p *stubPinger) Ping(ctx context.Context) error {
	p.calls++
	return p.err
}

type stubRunner struct {
	err     error
	started chan struct{}
	block   bool
}

func newStubRunner(block bool, err error) *stubRunner {
	return &stubRunner{started: make(chan struct{}), block: block, err: err}
}

func (r *stubRunner) Run(ctx context.Context) error {
	close(r.started)
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.err
}

func newTestService(t *testing.T, deps []Dependency, consumers ...Consumer) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:       logger.New(logger.Options{ServiceName: "worker-test"}),
		Dependencies: deps,
		Consumers:    consumers,
		Heartbeat:    10 * time.Millisecond,
	})
	require.NoError(t, err)
	return svc
}

func TestRunStopsOnFailedReadiness(t *testing.T) {
	db, redis, ps := &stubPinger{}, &stubPinger{err: errors.New("connection refused")}, &stubPinger{}
	r := newStubRunner(false, nil)
	svc := newTestService(t, []Dependency{{"database", db}, {"redis", redis}, {"pubsub", ps}}, Consumer{"notifications", r})

	err := svc.Run(context.Background())
	require.ErrorContains(t, err, "redis ping failed")
	assert.Equal(t, 0, ps.calls, "pubsub pinged after redis failure")
	select {
	case <-r.started:
		t.Fatal("consumer started with a dependency down")
	default:
	}
}

func TestRunReturnsConsumerErrorAndCancelsSiblings(t *testing.T) {
	want := errors.New("subscription deleted")
	failing := newStubRunner(false, want)
	blocking := newStubRunner(true, nil)
	svc := newTestService(t, nil, Consumer{"notifications", failing}, Consumer{"audit", blocking})

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, want)
	case <-time.After(2 * time.Second):
		t.Fatal("sibling consumer was not cancelled")
	}
}

func TestRunTreatsCleanExitAsFailure(t *testing.T) {
	svc := newTestService(t, nil, Consumer{"notifications", newStubRunner(false, nil)})
	assert.ErrorContains(t, svc.Run(context.Background()), "notifications consumer exited")
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newStubRunner(true, nil)
	svc := newTestService(t, []Dependency{{"database", &stubPinger{}}}, Consumer{"notifications", r})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	<-r.started
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestNewServiceValidation(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "worker-test"})
	_, err := NewService(ServiceParams{Consumers: []Consumer{{"n", newStubRunner(false, nil)}}})
	assert.ErrorContains(t, err, "logger")

	_, err = NewService(ServiceParams{Logger: logg})
	assert.ErrorContains(t, err, "at least one consumer")

	_, err = NewService(ServiceParams{Logger: logg, Dependencies: []Dependency{{Name: "redis"}}, Consumers: []Consumer{{"n", newStubRunner(false, nil)}}})
	assert.ErrorContains(t, err, "redis client is required")

	svc, err := NewService(ServiceParams{Logger: logg, Consumers: []Consumer{{"n", newStubRunner(false, nil)}}})
	require.NoError(t, err)
	assert.Equal(t, defaultHeartbeat, svc.heartbeat)
}
