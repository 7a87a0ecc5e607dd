package handoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/api"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/poller"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/transcript"
)

// Snapshot is one poll result.
type Snapshot struct {
	Messages   []transcript.PolledMessage
	Status     Status
	AgentEmail string
}

// FetchFunc loads the current state of handoff id.
type FetchFunc func(ctx context.Context, id string) (Snapshot, error)

// ClientFetch polls the end-user endpoint.
func ClientFetch(client *api.Client) FetchFunc {
	return func(ctx context.Context, id string) (Snapshot, error) {
		resp, err := client.ClientMessages(ctx, id)
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{Messages: resp.Messages, Status: ParseStatus(resp.Status), AgentEmail: resp.AgentEmail()}, nil
	}
}

// AgentFetch polls the agent-side endpoint.
func AgentFetch(client *api.Client) FetchFunc {
	return func(ctx context.Context, id string) (Snapshot, error) {
		resp, err := client.Handoff(ctx, id)
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{Messages: resp.Messages, Status: ParseStatus(resp.Status), AgentEmail: resp.AgentEmail()}, nil
	}
}

// EventKind classifies watcher events.
type EventKind int

const (
	EventMessages EventKind = iota
	EventStatus
	EventStalled
	EventRecovered
)

// Event is delivered to OnEvent after the store was updated.
type Event struct {
	Kind     EventKind
	Messages []transcript.Message
	Session  Session
	Err      error
}

// Options configure the polling cadence.
type Options struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Timeout     time.Duration
	StallAfter  int
}

// Watcher keeps a Store in sync with a handoff while it is running.
type Watcher struct {
	id      string
	store   *transcript.Store
	tracker *Tracker
	fetch   FetchFunc
	self    transcript.Sender
	opts    Options
	logger  *slog.Logger
	meter   metric.Meter

	// OnEvent, if set, is called from the polling goroutine.
	OnEvent func(Event)

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewWatcher creates a watcher for handoff id. Messages authored by self
// are skipped when merging because the local side already appended them.
func NewWatcher(id string, store *transcript.Store, fetch FetchFunc, self transcript.Sender, opts Options, logger *slog.Logger, meter metric.Meter) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		id:      id,
		store:   store,
		tracker: NewTracker(id, self),
		fetch:   fetch,
		self:    self,
		opts:    opts,
		logger:  logger.With("handoff_id", id),
		meter:   meter,
	}
}

// ID returns the handoff id.
func (w *Watcher) ID() string { return w.id }

// Session returns the tracked view model.
func (w *Watcher) Session() Session { return w.tracker.Session() }

// Observe feeds a status learned outside of polling, e.g. from the response
// of a resolve or reopen call.
func (w *Watcher) Observe(status Status) {
	w.mu.Lock()
	generation := w.generation
	w.mu.Unlock()
	w.apply(generation, Snapshot{Status: status})
}

// Start begins polling in the background. Calling Start on a running
// watcher restarts it.
func (w *Watcher) Start(ctx context.Context) {
	w.Stop()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.generation++
	generation := w.generation
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	done := make(chan struct{})
	w.done = done

	p := &poller.Poller{
		Name:        "handoff",
		Interval:    w.opts.Interval,
		MaxInterval: w.opts.MaxInterval,
		Timeout:     w.opts.Timeout,
		StallAfter:  w.opts.StallAfter,
		Logger:      w.logger,
		Meter:       w.meter,
		Tick: func(ctx context.Context) error {
			return w.poll(ctx, generation)
		},
		OnStall: func(err error) {
			w.emitConnection(generation, EventStalled, err)
		},
		OnRecover: func() {
			w.emitConnection(generation, EventRecovered, nil)
		},
	}

	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Warn("handoff poller stopped", "error", err)
		}
	}()
}

// Stop cancels polling and waits for the poller goroutine to exit. A poll
// response that arrives afterwards is discarded.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.generation++
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// pollOnce performs a single poll outside the background loop.
func (w *Watcher) pollOnce(ctx context.Context) error {
	w.mu.Lock()
	generation := w.generation
	w.mu.Unlock()
	return w.poll(ctx, generation)
}

func (w *Watcher) current(generation uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return generation == w.generation
}

func (w *Watcher) poll(ctx context.Context, generation uint64) error {
	snapshot, err := w.fetch(ctx, w.id)
	if err != nil {
		return fmt.Errorf("failed to fetch handoff messages: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	w.apply(generation, snapshot)
	return nil
}

func (w *Watcher) apply(generation uint64, snapshot Snapshot) {
	if !w.current(generation) {
		w.logger.Debug("dropping superseded poll result")
		return
	}

	var incoming []transcript.Message
	for _, msg := range transcript.FromPolled(snapshot.Messages) {
		if msg.Sender == w.self && !msg.IsSystemMessage {
			continue
		}
		incoming = append(incoming, msg)
	}
	added := w.store.MergePolled(incoming)
	if len(added) > 0 {
		w.logger.Debug("merged polled messages", "count", len(added))
		w.emit(Event{Kind: EventMessages, Messages: added, Session: w.tracker.Session()})
	}

	if notice, changed := w.tracker.Observe(snapshot.Status, snapshot.AgentEmail); changed {
		w.store.Append(notice)
		session := w.tracker.Session()
		w.logger.Info("handoff status changed", "status", session.Status, "agent", session.AssignedAgentEmail)
		w.emit(Event{Kind: EventStatus, Messages: []transcript.Message{notice}, Session: session})
	}
}

func (w *Watcher) emitConnection(generation uint64, kind EventKind, err error) {
	if !w.current(generation) {
		return
	}
	text := "Reconnected to support."
	if kind == EventStalled {
		text = "Having trouble reaching support. Still retrying..."
	}
	notice := transcript.NewSystemMessage(text)
	w.store.Append(notice)
	w.emit(Event{Kind: kind, Messages: []transcript.Message{notice}, Session: w.tracker.Session(), Err: err})
}

func (w *Watcher) emit(event Event) {
	if w.OnEvent != nil {
		w.OnEvent(event)
	}
}
