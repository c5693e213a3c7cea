package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xrsl/jobprep/pkg/ai"
	"github.com/xrsl/jobprep/pkg/cache"
	"github.com/xrsl/jobprep/pkg/checkpoint"
	"github.com/xrsl/jobprep/pkg/config"
	"github.com/xrsl/jobprep/pkg/gh"
	"github.com/xrsl/jobprep/pkg/graph"
	"github.com/xrsl/jobprep/pkg/jobpost"
	clog "github.com/xrsl/jobprep/pkg/log"
	"github.com/xrsl/jobprep/pkg/prompt"
	"github.com/xrsl/jobprep/pkg/schema"
	"github.com/xrsl/jobprep/pkg/style"
	"github.com/xrsl/jobprep/pkg/utils"
	"github.com/xrsl/jobprep/pkg/workflow"
)

// userAgent identifies job posting fetches.
var userAgent = "jobprep/" + Version + " (+https://github.com/xrsl/jobprep)"

// newClient builds the model client for a resolved agent.
var newClient = ai.NewClient

// stepOrder numbers the progress lines.
var stepOrder = []string{
	workflow.NodeResearch,
	workflow.NodeProfile,
	workflow.NodeTailor,
	workflow.NodeValidate,
	workflow.NodeInterview,
}

// session bundles a workflow with the resources it holds open.
type session struct {
	cfg   *config.Config
	wf    *workflow.Workflow
	saver checkpoint.Saver
	agent string
}

func (s *session) Close() {
	s.wf.Close()
	if err := s.saver.Close(); err != nil {
		clog.Warn("failed to close checkpoint store", "error", err)
	}
}

// durable reports whether threads outlive this process.
func (s *session) durable() bool {
	return checkpoint.Durable(s.cfg.Checkpoint.Backend)
}

// sessionOptions override config for one command.
type sessionOptions struct {
	agent    string
	model    string
	offline  bool // no model calls, for read-only commands
	progress io.Writer
}

func openSession(opts sessionOptions) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	var (
		llm   ai.Client = offlineClient{}
		agent string
	)
	if !opts.offline {
		agent, err = ai.ResolveAgent(firstNonEmpty(opts.agent, cfg.Agent), firstNonEmpty(opts.model, cfg.Model))
		if err != nil {
			return nil, err
		}
		llm, err = newClient(agent)
		if err != nil {
			return nil, err
		}
		clog.Debug("using agent", "agent", agent)
	}

	sch, err := schema.Load(cfg.Schema)
	if err != nil {
		llm.Close()
		return nil, err
	}

	saver, err := checkpoint.Open(cfg.Checkpoint.Backend, cfg.Checkpoint.Path)
	if err != nil {
		llm.Close()
		return nil, err
	}

	wcfg := workflow.Config{
		LLM:        llm,
		Model:      agent,
		Prompts:    prompt.New(cfg.PromptsDir),
		Schema:     sch,
		Fetcher:    jobpost.New(userAgent),
		MaxRetries: cfg.MaxRetries,
	}
	if gh.Available() {
		wcfg.GitHub = gh.New()
	} else {
		clog.Debug("gh CLI not found, GitHub context disabled")
	}
	if cfg.Cache {
		wcfg.Cache = cache.New(cache.DefaultDir())
	}

	var gopts []graph.Option
	if opts.progress != nil && !quiet {
		gopts = append(gopts, graph.WithListener(progressListener(opts.progress)))
	}

	wf, err := workflow.New(wcfg, saver, gopts...)
	if err != nil {
		llm.Close()
		_ = saver.Close()
		return nil, err
	}
	return &session{cfg: cfg, wf: wf, saver: saver, agent: agent}, nil
}

// progressListener prints one line per step.
func progressListener(w io.Writer) graph.Listener {
	return func(e graph.Event) {
		switch e.Kind {
		case graph.EventNodeStart:
			style.Step(w, stepNumber(e.Node), len(stepOrder), workflow.StepLabels[e.Node])
		case graph.EventInterrupt:
			fmt.Fprintf(w, "%s résumé ready for review\n", style.C(style.Yellow, "⏸"))
		case graph.EventFailed:
			fmt.Fprintf(w, "%s %s failed\n", style.C(style.Red, "✗"), workflow.StepLabels[e.Node])
		case graph.EventCompleted:
			fmt.Fprintf(w, "%s done\n", style.C(style.Green, "✓"))
		}
	}
}

func stepNumber(node string) int {
	for i, n := range stepOrder {
		if n == node {
			return i + 1
		}
	}
	return 0
}

// notFoundHint explains a missing thread, which with the memory backend
// means it belonged to another process.
func notFoundHint(err error, cfg *config.Config, threadID string) error {
	if !errors.Is(err, workflow.ErrNotFound) {
		return err
	}
	if !checkpoint.Durable(cfg.Checkpoint.Backend) {
		return fmt.Errorf("thread %s not found: the %q checkpoint backend does not persist between commands (run: jobprep config set checkpoint.backend sqlite)", threadID, cfg.Checkpoint.Backend)
	}
	return fmt.Errorf("thread %s not found", threadID)
}

// writeOutputs saves the thread's documents under <output_dir>/<thread>.
func writeOutputs(w io.Writer, s *session, snap *workflow.Snapshot) error {
	dir := filepath.Join(s.cfg.OutputDir, snap.ThreadID)
	written, err := s.wf.WriteOutputs(dir, snap.State)
	if err != nil {
		return err
	}
	for _, path := range written {
		fmt.Fprintf(w, "%s%s\n", style.Success("Wrote"), path)
	}
	return nil
}

// printReview shows what the approval decision is about.
func printReview(w io.Writer, s *session, snap *workflow.Snapshot) {
	st := snap.State
	style.Heading(w, "Tailored résumé")
	fmt.Fprintln(w, st.TailoredResume)

	verdict := style.C(style.Green, "approved")
	if !st.Approved {
		verdict = style.C(style.Yellow, fmt.Sprintf("not approved after %d attempts", st.RetryCount))
	}
	style.Heading(w, "Reviewer")
	fmt.Fprintf(w, "%s\n", verdict)
	if st.ValidationFeedback != "" {
		fmt.Fprintln(w, st.ValidationFeedback)
	}
	fmt.Fprintln(w)
}

// askDecision prompts for approve, reject with feedback, or approve an
// edited résumé from a file.
func askDecision(in *bufio.Reader, w io.Writer) (workflow.Decision, error) {
	for {
		fmt.Fprintf(w, "%s Approve this résumé? %s: ", style.C(style.Green, "?"), style.C(style.Cyan, "[a]pprove / [r]eject / [e]dit"))
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return workflow.Decision{}, fmt.Errorf("no decision: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "", "a", "approve", "y", "yes":
			return workflow.Decision{Approve: true}, nil
		case "r", "reject", "n", "no":
			fmt.Fprintf(w, "  What should change? ")
			feedback, _ := in.ReadString('\n')
			return workflow.Decision{Feedback: strings.TrimSpace(feedback)}, nil
		case "e", "edit":
			fmt.Fprintf(w, "  Path to the edited résumé: ")
			path, _ := in.ReadString('\n')
			edited, err := utils.ReadFile(strings.TrimSpace(path))
			if err != nil {
				fmt.Fprintf(w, "  %s\n", err)
				continue
			}
			return workflow.Decision{Approve: true, EditedResume: edited}, nil
		default:
			fmt.Fprintln(w, "  Please answer a, r or e")
		}
	}
}

// completeModels offers short model names, then full API model names.
func completeModels(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return append(ai.SupportedModelNames(), ai.SupportedModels()...), cobra.ShellCompDirectiveNoFileComp
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// offlineClient backs commands that only read checkpoints.
type offlineClient struct{}

func (offlineClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("model calls are disabled for this command")
}

func (offlineClient) Close() {}
