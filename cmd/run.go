package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xrsl/jobprep/pkg/checkpoint"
	"github.com/xrsl/jobprep/pkg/jobpost"
	"github.com/xrsl/jobprep/pkg/resume"
	"github.com/xrsl/jobprep/pkg/signal"
	"github.com/xrsl/jobprep/pkg/style"
	"github.com/xrsl/jobprep/pkg/utils"
	"github.com/xrsl/jobprep/pkg/workflow"
)

var (
	runJobURL      string
	runResume      string
	runSummary     string
	runSummaryFile string
	runGitHub      string
	runBody        string
	runAgent       string
	runModel       string
	runThread      string
	runYes         bool
	runDetach      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Tailor your résumé for a job and prepare for the interview",
	Long: `Start an application run.

The run researches the posting, builds your profile, tailors the résumé and
has it reviewed (up to three tailoring rounds), then pauses so you can
approve, reject with feedback, or replace the résumé with your own edit.
Interview materials are prepared after approval.

Outputs are written to <output_dir>/<thread>/.`,
	Example: `  jobprep run --job-url https://example.com/jobs/123 --resume cv.pdf
  jobprep run --job-url https://example.com/jobs/123 --resume cv.md --github https://github.com/me --yes
  jobprep run --body posting.html --resume cv.pdf --detach`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runJobURL, "job-url", "u", "", "Job posting URL")
	f.StringVarP(&runResume, "resume", "r", "", "Résumé file (.pdf, .md or .txt)")
	f.StringVarP(&runSummary, "summary", "s", "", "Short write-up about yourself")
	f.StringVar(&runSummaryFile, "summary-file", "", "Read the write-up from a file")
	f.StringVar(&runGitHub, "github", "", "GitHub profile URL")
	f.StringVarP(&runBody, "body", "b", "", "Read the job posting from a file instead of fetching it")
	f.StringVarP(&runAgent, "agent", "a", "", "AI agent (claude-code, gemini-cli, claude-*, gemini-*)")
	f.StringVarP(&runModel, "model", "m", "", "Model short name (e.g. sonnet-4-5, flash)")
	f.StringVar(&runThread, "thread", "", "Thread id (default: random)")
	f.BoolVarP(&runYes, "yes", "y", false, "Approve the résumé without asking")
	f.BoolVar(&runDetach, "detach", false, "Stop at the approval pause and print the thread id")
	_ = runCmd.MarkFlagRequired("resume")
	_ = runCmd.RegisterFlagCompletionFunc("model", completeModels)
	runCmd.MarkFlagsMutuallyExclusive("summary", "summary-file")
	runCmd.MarkFlagsMutuallyExclusive("yes", "detach")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	in, err := runInput()
	if err != nil {
		return err
	}

	s, err := openSession(sessionOptions{agent: runAgent, model: runModel, progress: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer s.Close()

	threadID := runThread
	if threadID == "" {
		threadID = uuid.NewString()[:8]
	}
	if runDetach && !s.durable() {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s%s backend does not keep the thread after this command exits\n",
			style.Warning("Warning"), s.cfg.Checkpoint.Backend)
	}

	ctx, cancel := signal.WithInterrupt(cmd.Context())
	defer cancel()

	fmt.Fprintf(out, "%s thread %s\n", style.C(style.Blue, "→"), style.C(style.Cyan, threadID))
	snap, err := s.wf.Start(ctx, threadID, in)
	if err != nil {
		return failedRun(s, snap, err)
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	for snap.Interrupted() {
		if err := writeOutputs(out, s, snap); err != nil {
			return err
		}

		if runDetach {
			fmt.Fprintf(out, "\nReview the résumé, then run:\n  %s\n  %s\n",
				style.C(style.Cyan, "jobprep approve "+threadID),
				style.C(style.Cyan, "jobprep approve "+threadID+" --reject --feedback \"...\""))
			return nil
		}

		decision := workflow.Decision{Approve: true}
		if !runYes {
			printReview(out, s, snap)
			if decision, err = askDecision(reader, out); err != nil {
				return err
			}
		}

		if snap, err = s.wf.Decide(ctx, threadID, decision); err != nil {
			return failedRun(s, snap, err)
		}
	}

	return writeOutputs(out, s, snap)
}

func runInput() (workflow.Input, error) {
	var in workflow.Input
	if runJobURL == "" && runBody == "" {
		return in, fmt.Errorf("either --job-url or --body is required")
	}

	text, err := resume.Load(runResume)
	if err != nil {
		return in, err
	}

	summary := runSummary
	if runSummaryFile != "" {
		data, err := utils.ReadFile(runSummaryFile)
		if err != nil {
			return in, fmt.Errorf("failed to read summary: %w", err)
		}
		summary = data
	}

	posting := ""
	if runBody != "" {
		if posting, err = jobpost.ReadFile(runBody); err != nil {
			return in, err
		}
	}

	return workflow.Input{
		JobURL:     strings.TrimSpace(runJobURL),
		JobPosting: posting,
		GitHubURL:  runGitHub,
		ResumeText: text,
		Summary:    summary,
	}, nil
}

// failedRun points at retry when the failure was checkpointed.
func failedRun(s *session, snap *workflow.Snapshot, err error) error {
	if snap != nil && snap.Status == checkpoint.StatusFailed && s.durable() {
		return fmt.Errorf("%w\nprogress is saved; resume with: jobprep retry %s", err, snap.ThreadID)
	}
	return err
}
