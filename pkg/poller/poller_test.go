package poller_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/circleboard/pkg/poller"
	"github.com/ethpandaops/circleboard/pkg/service"
)

type countingSyncer struct {
	calls atomic.Int64
}

func (s *countingSyncer) SyncEnabled(context.Context) (service.SyncSummary, error) {
	s.calls.Add(1)

	return service.SyncSummary{Synced: 1}, nil
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func TestPoller_RunsImmediatelyAndOnTick(t *testing.T) {
	s := &countingSyncer{}
	p := poller.NewPoller(testLogger(), s, 20*time.Millisecond)

	require.NoError(t, p.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return s.calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop())

	stopped := s.calls.Load()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, s.calls.Load(), "no passes after Stop")

	require.NoError(t, p.Stop())
}

func TestPoller_StopsOnContextCancel(t *testing.T) {
	s := &countingSyncer{}
	p := poller.NewPoller(testLogger(), s, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, p.Start(ctx))

	assert.Eventually(t, func() bool {
		return s.calls.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()

	done := make(chan struct{})

	go func() {
		_ = p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after context cancellation")
	}

	assert.Equal(t, int64(1), s.calls.Load())
}
