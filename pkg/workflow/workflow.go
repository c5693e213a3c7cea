package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xrsl/jobprep/pkg/ai"
	"github.com/xrsl/jobprep/pkg/cache"
	"github.com/xrsl/jobprep/pkg/checkpoint"
	"github.com/xrsl/jobprep/pkg/gh"
	"github.com/xrsl/jobprep/pkg/graph"
	clog "github.com/xrsl/jobprep/pkg/log"
	"github.com/xrsl/jobprep/pkg/prompt"
	"github.com/xrsl/jobprep/pkg/schema"
)

// Fetcher downloads a job posting as text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Config wires the workflow to its collaborators. LLM and Schema are required.
type Config struct {
	LLM ai.Client
	// Model identifies the model in research cache keys.
	Model   string
	Prompts *prompt.Set
	Schema  *schema.Schema
	Fetcher Fetcher
	// GitHub is optional; nil skips GitHub context.
	GitHub gh.CLI
	// Cache is optional; nil disables the research cache.
	Cache *cache.Store
	// MaxRetries is the number of extra tailoring rounds after rejected
	// validations. Negative selects DefaultMaxRetries.
	MaxRetries      int
	GitHubRepoLimit int
}

// Workflow runs and resumes application threads.
type Workflow struct {
	cfg               Config
	runner            *graph.Runner[State]
	schemaFingerprint string
}

// New compiles the workflow graph over saver (in-memory when nil).
func New(cfg Config, saver checkpoint.Saver, opts ...graph.Option) (*Workflow, error) {
	if cfg.LLM == nil {
		return nil, errors.New("workflow: model client is required")
	}
	if cfg.Schema == nil {
		return nil, errors.New("workflow: requirements schema is required")
	}
	if cfg.Prompts == nil {
		cfg.Prompts = prompt.New("")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.GitHubRepoLimit <= 0 {
		cfg.GitHubRepoLimit = 10
	}
	if err := cfg.Prompts.Check(); err != nil {
		return nil, err
	}

	fp, err := json.Marshal(cfg.Schema.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("workflow: fingerprint schema: %w", err)
	}
	w := &Workflow{cfg: cfg, schemaFingerprint: string(fp)}

	g := graph.New[State]().
		AddNode(NodeResearch, w.research).
		AddNode(NodeProfile, w.buildProfile).
		AddNode(NodeTailor, w.tailor).
		AddNode(NodeValidate, w.validate).
		AddNode(NodeInterview, w.interview).
		AddEdge(NodeResearch, NodeProfile).
		AddEdge(NodeProfile, NodeTailor).
		AddEdge(NodeTailor, NodeValidate).
		AddConditionalEdge(NodeValidate, w.routeAfterValidation, NodeTailor, NodeInterview).
		AddEdge(NodeInterview, graph.End).
		InterruptBefore(NodeInterview)

	w.runner, err = g.Compile(saver, opts...)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Start runs a new thread until it pauses for approval, completes or fails.
func (w *Workflow) Start(ctx context.Context, threadID string, in Input) (*Snapshot, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	clog.Info("starting application run", "thread", threadID, "job_url", in.JobURL)
	return w.runner.Invoke(ctx, threadID, in.state())
}

// Decide applies a human decision to a thread paused before interview preparation.
// Approving continues to interview preparation; rejecting sends the résumé
// back for tailoring with fresh retries, and the run pauses again afterwards.
func (w *Workflow) Decide(ctx context.Context, threadID string, d Decision) (*Snapshot, error) {
	snap, err := w.runner.State(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !snap.Interrupted() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotAwaiting, threadID, snap.Status)
	}

	if d.Approve {
		edited := strings.TrimSpace(d.EditedResume)
		clog.Info("résumé approved", "thread", threadID, "edited", edited != "")
		return w.runner.Resume(ctx, threadID, graph.Command[State]{
			Update: func(s State) State {
				if edited != "" {
					s.TailoredResume = edited
				}
				s.Approved = true
				return s
			},
		})
	}

	feedback := strings.TrimSpace(d.Feedback)
	if feedback == "" {
		feedback = "The candidate rejected the previous draft. Produce a substantially revised version."
	}
	clog.Info("résumé rejected", "thread", threadID)
	return w.runner.Resume(ctx, threadID, graph.Command[State]{
		Update: func(s State) State {
			s.HumanFeedback = feedback
			s.RetryCount = 0
			s.Approved = false
			return s
		},
		Goto: NodeTailor,
	})
}

// Retry resumes a failed thread at the step that failed.
func (w *Workflow) Retry(ctx context.Context, threadID string) (*Snapshot, error) {
	snap, err := w.runner.State(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if snap.Status != checkpoint.StatusFailed {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotFailed, threadID, snap.Status)
	}
	clog.Info("retrying failed step", "thread", threadID, "node", snap.Next)
	return w.runner.Resume(ctx, threadID, graph.Command[State]{})
}

// State returns the latest snapshot of a thread.
func (w *Workflow) State(ctx context.Context, threadID string) (*Snapshot, error) {
	return w.runner.State(ctx, threadID)
}

// History returns every checkpoint of a thread, oldest first.
func (w *Workflow) History(ctx context.Context, threadID string) ([]*Snapshot, error) {
	return w.runner.History(ctx, threadID)
}

// Threads returns the latest snapshot of every thread, most recent first.
func (w *Workflow) Threads(ctx context.Context) ([]*Snapshot, error) {
	return w.runner.Threads(ctx)
}

// Delete removes a thread that is not running.
func (w *Workflow) Delete(ctx context.Context, threadID string) error {
	return w.runner.Delete(ctx, threadID)
}

// Busy reports whether the thread is executing in this process.
func (w *Workflow) Busy(threadID string) bool {
	return w.runner.Busy(threadID)
}

// Schema returns the requirements schema.
func (w *Workflow) Schema() *schema.Schema {
	return w.cfg.Schema
}

// Close releases the model client.
func (w *Workflow) Close() {
	w.cfg.LLM.Close()
}
