package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vk/groupsched/internal/ctxlog"
	"github.com/vk/groupsched/internal/linkaddr"
)

// Event kinds.
const (
	KindSlotframe = "slotframe"
	KindLink      = "link"
	KindLinkError = "link_error"
	KindPhase     = "phase"
)

// Event is one telemetry record.
type Event struct {
	RunID string         `json:"run_id"`
	Node  string         `json:"node"`
	Kind  string         `json:"kind"`
	Time  time.Time      `json:"time"`
	Data  map[string]any `json:"data,omitempty"`
}

// Publisher ships events to a collector.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish records e.
func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Close is a no-op.
func (r *Recorder) Close() error { return nil }

// Events returns the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events, in order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Emitter stamps events with the run ID and node address before handing them
// to a Publisher. Publishing failures are logged, never returned, so the
// scheduler never stalls on telemetry.
type Emitter struct {
	pub   Publisher
	runID uuid.UUID
	node  string
	now   func() time.Time
}

// NewEmitter creates an emitter for a fresh run of node.
func NewEmitter(pub Publisher, node linkaddr.Address) *Emitter {
	if pub == nil {
		pub = Nop{}
	}
	return &Emitter{pub: pub, runID: uuid.New(), node: node.String(), now: time.Now}
}

// RunID identifies this run in every event.
func (e *Emitter) RunID() uuid.UUID { return e.runID }

// Emit publishes an event of the given kind.
func (e *Emitter) Emit(ctx context.Context, kind string, data map[string]any) {
	ev := Event{
		RunID: e.runID.String(),
		Node:  e.node,
		Kind:  kind,
		Time:  e.now().UTC(),
		Data:  data,
	}
	if err := e.pub.Publish(ctx, ev); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to publish telemetry event.", "kind", kind, "error", err)
	}
}

// Close closes the underlying publisher.
func (e *Emitter) Close() error {
	return e.pub.Close()
}
