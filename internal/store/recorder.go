package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"flowdash/internal/stream"
)

// Recorder is a stream consumer that persists flow events and gamma
// snapshots. It holds one subscription per recorded channel, so its
// presence alone keeps those channels connected.
type Recorder struct {
	flow  FlowStore
	gamma GammaStore
	log   *slog.Logger

	events    chan any
	done      chan struct{}
	started   bool
	disposers []func()
}

// NewRecorder creates a recorder writing to the given stores.
func NewRecorder(flow FlowStore, gamma GammaStore, log *slog.Logger) *Recorder {
	return &Recorder{
		flow:  flow,
		gamma: gamma,
		log:   log.With("component", "recorder"),
		// Persistence runs on its own goroutine so stream callbacks
		// never block on SQLite.
		events: make(chan any, 1024),
		done:   make(chan struct{}),
	}
}

// Start subscribes the recorder to the flow and gex channels and
// launches the persistence worker.
func (r *Recorder) Start(m *stream.Manager) error {
	for _, ch := range []stream.ChannelID{stream.ChannelFlow, stream.ChannelGex} {
		dispose, err := m.Subscribe(ch, r.enqueue)
		if err != nil {
			r.Stop()
			return err
		}
		r.disposers = append(r.disposers, dispose)
	}
	r.started = true
	go r.worker()
	return nil
}

// Stop disposes the recorder's subscriptions and drains the worker.
func (r *Recorder) Stop() {
	for _, dispose := range r.disposers {
		dispose()
	}
	r.disposers = nil
	if !r.started {
		return
	}
	r.started = false
	close(r.events)
	<-r.done
}

func (r *Recorder) enqueue(msg any) {
	select {
	case r.events <- msg:
	default:
		r.log.Warn("recorder backlog full, dropping event")
	}
}

func (r *Recorder) worker() {
	defer close(r.done)
	for msg := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		switch ev := msg.(type) {
		case stream.FlowEvent:
			if err := r.flow.WriteFlowEvents(ctx, []stream.FlowEvent{ev}); err != nil {
				r.log.Error("persisting flow event", "error", err)
			}
		case stream.GammaSnapshot:
			if err := r.gamma.WriteGammaSnapshot(ctx, ev); err != nil {
				r.log.Error("persisting gamma snapshot", "error", err)
			}
		default:
			r.log.Warn("unexpected message type", "type", fmt.Sprintf("%T", msg))
		}
		cancel()
	}
}
