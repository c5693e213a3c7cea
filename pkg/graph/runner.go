package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xrsl/jobprep/pkg/checkpoint"
	clog "github.com/xrsl/jobprep/pkg/log"
)

var (
	ErrNotFound     = checkpoint.ErrNotFound
	ErrThreadExists = errors.New("graph: thread already exists")
	ErrThreadBusy   = errors.New("graph: thread is already running")
	ErrNotResumable = errors.New("graph: thread is not resumable")
	ErrStepLimit    = errors.New("graph: step limit reached")
	ErrUnknownRoute = errors.New("graph: route returned an undeclared target")
)

// DefaultStepLimit bounds the nodes executed by a single Invoke or Resume.
const DefaultStepLimit = 25

// EventKind classifies listener events.
type EventKind string

const (
	EventNodeStart EventKind = "node_start"
	EventNodeEnd   EventKind = "node_end"
	EventInterrupt EventKind = "interrupt"
	EventFailed    EventKind = "failed"
	EventCompleted EventKind = "completed"
)

// Event is emitted to listeners as a run progresses.
type Event struct {
	ThreadID string
	Kind     EventKind
	Node     string
	Step     int
	Err      error
}

// Listener observes run progress. Listeners run synchronously on the run goroutine.
type Listener func(Event)

// Option configures a Runner.
type Option func(*options)

type options struct {
	stepLimit int
	listeners []Listener
}

// WithStepLimit overrides DefaultStepLimit.
func WithStepLimit(n int) Option {
	return func(o *options) { o.stepLimit = n }
}

// WithListener adds a progress listener.
func WithListener(l Listener) Option {
	return func(o *options) { o.listeners = append(o.listeners, l) }
}

// Snapshot is a decoded checkpoint.
type Snapshot[S any] struct {
	ThreadID     string            `json:"thread_id"`
	CheckpointID string            `json:"checkpoint_id"`
	Step         int               `json:"step"`
	Node         string            `json:"node,omitempty"`
	Next         string            `json:"next,omitempty"`
	Status       checkpoint.Status `json:"status"`
	Error        string            `json:"error,omitempty"`
	State        S                 `json:"state"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Interrupted reports whether the run is paused awaiting Resume.
func (s *Snapshot[S]) Interrupted() bool { return s.Status == checkpoint.StatusInterrupted }

// Completed reports whether the run reached End.
func (s *Snapshot[S]) Completed() bool { return s.Status == checkpoint.StatusCompleted }

// Command carries what a Resume changes before continuing.
type Command[S any] struct {
	// Update edits the checkpointed state.
	Update func(S) S
	// Goto replaces the pending node.
	Goto string
}

// Runner executes a compiled Graph.
type Runner[S any] struct {
	g     *Graph[S]
	saver checkpoint.Saver
	opts  options

	mu     sync.Mutex
	active map[string]bool
}

// Compile validates the graph and binds it to saver (in-memory when nil).
func (g *Graph[S]) Compile(saver checkpoint.Saver, opts ...Option) (*Runner[S], error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	if saver == nil {
		saver = checkpoint.NewMemory()
	}
	o := options{stepLimit: DefaultStepLimit}
	for _, opt := range opts {
		opt(&o)
	}
	return &Runner[S]{
		g:      g,
		saver:  saver,
		opts:   o,
		active: make(map[string]bool),
	}, nil
}

// Saver returns the checkpoint store the runner writes to.
func (r *Runner[S]) Saver() checkpoint.Saver { return r.saver }

func (r *Runner[S]) acquire(threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[threadID] {
		return fmt.Errorf("%w: %s", ErrThreadBusy, threadID)
	}
	r.active[threadID] = true
	return nil
}

func (r *Runner[S]) release(threadID string) {
	r.mu.Lock()
	delete(r.active, threadID)
	r.mu.Unlock()
}

// Busy reports whether the thread is executing in this process.
func (r *Runner[S]) Busy(threadID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[threadID]
}

// Invoke starts a new thread from the entry node.
func (r *Runner[S]) Invoke(ctx context.Context, threadID string, initial S) (*Snapshot[S], error) {
	if threadID == "" {
		return nil, errors.New("graph: thread id is required")
	}
	if err := r.acquire(threadID); err != nil {
		return nil, err
	}
	defer r.release(threadID)

	if _, err := r.saver.Latest(ctx, threadID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrThreadExists, threadID)
	} else if !errors.Is(err, checkpoint.ErrNotFound) {
		return nil, err
	}

	clog.Debug("starting thread", "thread", threadID, "entry", r.g.entry)
	return r.run(ctx, threadID, initial, r.g.entry, 0, false)
}

// Resume continues an interrupted or failed thread from its latest checkpoint.
func (r *Runner[S]) Resume(ctx context.Context, threadID string, cmd Command[S]) (*Snapshot[S], error) {
	if err := r.acquire(threadID); err != nil {
		return nil, err
	}
	defer r.release(threadID)

	cp, err := r.saver.Latest(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("thread %s: %w", threadID, err)
	}
	if cp.Status == checkpoint.StatusCompleted {
		return nil, fmt.Errorf("%w: %s already completed", ErrNotResumable, threadID)
	}

	state, err := r.decode(cp)
	if err != nil {
		return nil, err
	}
	if cmd.Update != nil {
		state = cmd.Update(state)
	}

	next := cp.Next
	if cmd.Goto != "" {
		if !r.g.known(cmd.Goto) {
			return nil, fmt.Errorf("graph: resume target %q not found", cmd.Goto)
		}
		next = cmd.Goto
	}
	if next == "" {
		return nil, fmt.Errorf("%w: %s has no pending node", ErrNotResumable, threadID)
	}

	// the pause already happened at this node, or the node itself failed after it
	skip := cp.Status == checkpoint.StatusInterrupted ||
		(cp.Status == checkpoint.StatusFailed && cp.Node == cp.Next)
	clog.Debug("resuming thread", "thread", threadID, "next", next, "from_status", cp.Status)
	return r.run(ctx, threadID, state, next, cp.Step, skip)
}

func (r *Runner[S]) run(ctx context.Context, threadID string, state S, next string, step int, skipInterrupt bool) (*Snapshot[S], error) {
	last := ""
	for executed := 0; ; executed++ {
		if next == End {
			snap, err := r.save(ctx, threadID, step, last, "", checkpoint.StatusCompleted, nil, state)
			if err != nil {
				return nil, err
			}
			r.emit(Event{ThreadID: threadID, Kind: EventCompleted, Node: last, Step: step})
			return snap, nil
		}

		if r.g.interrupts[next] && !skipInterrupt {
			snap, err := r.save(ctx, threadID, step, last, next, checkpoint.StatusInterrupted, nil, state)
			if err != nil {
				return nil, err
			}
			clog.Debug("thread interrupted", "thread", threadID, "before", next)
			r.emit(Event{ThreadID: threadID, Kind: EventInterrupt, Node: next, Step: step})
			return snap, nil
		}
		skipInterrupt = false

		if executed >= r.opts.stepLimit {
			err := fmt.Errorf("%w (%d)", ErrStepLimit, r.opts.stepLimit)
			return r.fail(ctx, threadID, step, last, next, state, err)
		}

		r.emit(Event{ThreadID: threadID, Kind: EventNodeStart, Node: next, Step: step + 1})
		started := time.Now()

		out, err := r.g.nodes[next](ctx, state)
		if err != nil {
			return r.fail(ctx, threadID, step, next, next, state, fmt.Errorf("node %s: %w", next, err))
		}

		to, err := r.g.successor(next, out)
		if err != nil {
			return r.fail(ctx, threadID, step, next, next, state, err)
		}

		state = out
		step++
		last = next
		if _, err := r.save(ctx, threadID, step, next, to, checkpoint.StatusRunning, nil, state); err != nil {
			return nil, err
		}
		clog.Debug("node finished", "thread", threadID, "node", next, "next", to, "step", step, "took", time.Since(started).Round(time.Millisecond))
		r.emit(Event{ThreadID: threadID, Kind: EventNodeEnd, Node: next, Step: step})
		next = to
	}
}

// fail records a failed checkpoint whose Next is the node to retry on Resume.
func (r *Runner[S]) fail(ctx context.Context, threadID string, step int, node, next string, state S, cause error) (*Snapshot[S], error) {
	// the failure must be recorded even if ctx was what failed the node
	saveCtx := context.WithoutCancel(ctx)
	snap, err := r.save(saveCtx, threadID, step, node, next, checkpoint.StatusFailed, cause, state)
	if err != nil {
		return nil, errors.Join(cause, err)
	}
	clog.Warn("thread failed", "thread", threadID, "node", next, "error", cause)
	r.emit(Event{ThreadID: threadID, Kind: EventFailed, Node: next, Step: step, Err: cause})
	return snap, cause
}

func (r *Runner[S]) save(ctx context.Context, threadID string, step int, node, next string, status checkpoint.Status, cause error, state S) (*Snapshot[S], error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("graph: encode state: %w", err)
	}
	cp := &checkpoint.Checkpoint{
		ThreadID: threadID,
		Step:     step,
		Node:     node,
		Next:     next,
		Status:   status,
		State:    raw,
	}
	if cause != nil {
		cp.Error = cause.Error()
	}
	if err := r.saver.Put(ctx, cp); err != nil {
		return nil, fmt.Errorf("graph: save checkpoint: %w", err)
	}
	return &Snapshot[S]{
		ThreadID:     threadID,
		CheckpointID: cp.ID,
		Step:         step,
		Node:         node,
		Next:         next,
		Status:       status,
		Error:        cp.Error,
		State:        state,
		UpdatedAt:    cp.CreatedAt,
	}, nil
}

func (r *Runner[S]) emit(e Event) {
	for _, l := range r.opts.listeners {
		l(e)
	}
}

func (r *Runner[S]) decode(cp *checkpoint.Checkpoint) (S, error) {
	var state S
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return state, fmt.Errorf("graph: decode state of %s: %w", cp.ThreadID, err)
	}
	return state, nil
}

func (r *Runner[S]) snapshot(cp *checkpoint.Checkpoint) (*Snapshot[S], error) {
	state, err := r.decode(cp)
	if err != nil {
		return nil, err
	}
	return &Snapshot[S]{
		ThreadID:     cp.ThreadID,
		CheckpointID: cp.ID,
		Step:         cp.Step,
		Node:         cp.Node,
		Next:         cp.Next,
		Status:       cp.Status,
		Error:        cp.Error,
		State:        state,
		UpdatedAt:    cp.CreatedAt,
	}, nil
}

// State returns the latest snapshot of a thread.
func (r *Runner[S]) State(ctx context.Context, threadID string) (*Snapshot[S], error) {
	cp, err := r.saver.Latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return r.snapshot(cp)
}

// History returns every snapshot of a thread, oldest first.
func (r *Runner[S]) History(ctx context.Context, threadID string) ([]*Snapshot[S], error) {
	cps, err := r.saver.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot[S], 0, len(cps))
	for _, cp := range cps {
		s, err := r.snapshot(cp)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Threads returns the latest snapshot of each thread, most recently updated first.
func (r *Runner[S]) Threads(ctx context.Context) ([]*Snapshot[S], error) {
	cps, err := r.saver.Threads(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot[S], 0, len(cps))
	for _, cp := range cps {
		s, err := r.snapshot(cp)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Delete removes a thread that is not currently executing.
func (r *Runner[S]) Delete(ctx context.Context, threadID string) error {
	if err := r.acquire(threadID); err != nil {
		return err
	}
	defer r.release(threadID)
	return r.saver.Delete(ctx, threadID)
}
