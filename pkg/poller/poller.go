package poller

import (
	"context"
	"sync"
	"time"

	"github.com/ethpandaops/circleboard/pkg/service"
	"github.com/sirupsen/logrus"
)

// defaultInterval is used when no positive interval is configured.
const defaultInterval = time.Minute

// Syncer is the part of the service the poller drives.
type Syncer interface {
	SyncEnabled(ctx context.Context) (service.SyncSummary, error)
}

// Poller is a background loop that periodically synchronizes every
// enabled project.
type Poller interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Poller = (*poller)(nil)

type poller struct {
	log      logrus.FieldLogger
	syncer   Syncer
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates a new background poller.
func NewPoller(
	log logrus.FieldLogger,
	syncer Syncer,
	interval time.Duration,
) Poller {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &poller{
		log:      log.WithField("component", "poller"),
		syncer:   syncer,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches a background goroutine that runs an immediate pass and
// then ticks at the configured interval. The first pass is asynchronous so
// the caller is not blocked.
func (p *poller) Start(ctx context.Context) error {
	p.log.WithField("interval", p.interval.String()).Info("Starting poller")

	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		p.runPass(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.runPass(ctx)
			case <-p.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the poller goroutine to stop and waits for it. A pass in
// progress runs to completion.
func (p *poller) Stop() error {
	p.stopOnce.Do(func() { close(p.done) })
	p.wg.Wait()

	p.log.Info("Poller stopped")

	return nil
}

func (p *poller) runPass(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-p.done:
		return
	default:
	}

	start := time.Now()

	summary, err := p.syncer.SyncEnabled(ctx)
	if err != nil {
		p.log.WithError(err).Warn("Sync pass aborted")

		return
	}

	p.log.WithFields(logrus.Fields{
		"synced":   summary.Synced,
		"failed":   summary.Failed,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("Sync pass finished")
}
