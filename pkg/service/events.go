package service

import (
	"sync"
	"time"

	"github.com/ethpandaops/circleboard/pkg/project"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventType names what happened.
type EventType string

const (
	// EventProjectSynced is published after a snapshot was persisted.
	EventProjectSynced EventType = "project_synced"
	// EventProjectSyncFailed is published when a sync aborted. The previous
	// snapshot is still in place.
	EventProjectSyncFailed EventType = "project_sync_failed"
	// EventProjectsChanged is published when the tracked list was modified.
	EventProjectsChanged EventType = "projects_changed"
)

// defaultSubscriberBuffer is the channel capacity of each subscriber.
const defaultSubscriberBuffer = 32

// Event is a notification delivered to every subscriber.
type Event struct {
	ID           string            `json:"id"`
	Type         EventType         `json:"type"`
	Time         time.Time         `json:"time"`
	Project      *project.Identity `json:"project,omitempty"`
	PipelineHash string            `json:"pipeline_hash,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Events fans service events out to any number of subscribers. A slow
// subscriber misses events instead of blocking the publisher.
type Events struct {
	log  logrus.FieldLogger
	mu   sync.RWMutex
	subs map[string]chan Event
}

// NewEvents creates an empty event hub.
func NewEvents(log logrus.FieldLogger) *Events {
	return &Events{
		log:  log.WithField("component", "events"),
		subs: make(map[string]chan Event, 4),
	}
}

// Subscribe registers a new subscriber. The returned function removes the
// subscription and closes the channel; it is safe to call more than once.
func (e *Events) Subscribe() (<-chan Event, func()) {
	id := uuid.NewString()
	ch := make(chan Event, defaultSubscriberBuffer)

	e.mu.Lock()
	e.subs[id] = ch
	e.mu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()

			close(ch)
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (e *Events) Subscribers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.subs)
}

// Publish stamps ev with an id and time and delivers it to every
// subscriber that has room for it.
func (e *Events) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for id, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.log.WithFields(logrus.Fields{
				"subscriber": id,
				"event":      ev.Type,
			}).Warn("Subscriber buffer full, dropping event")
		}
	}
}
