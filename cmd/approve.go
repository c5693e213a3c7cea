package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xrsl/jobprep/pkg/signal"
	"github.com/xrsl/jobprep/pkg/style"
	"github.com/xrsl/jobprep/pkg/utils"
	"github.com/xrsl/jobprep/pkg/workflow"
)

var (
	approveReject   bool
	approveFeedback string
	approveEdit     string
	approveAgent    string
	approveModel    string
)

var approveCmd = &cobra.Command{
	Use:   "approve <thread>",
	Short: "Approve or reject the tailored résumé of a paused run",
	Long: `Decide on a run paused for approval.

Approving continues with interview preparation. --edit replaces the tailored
résumé with your own version first. --reject sends the résumé back for
another tailoring round with your feedback; the run then pauses again.

Deciding from a different command than "run" needs the sqlite checkpoint
backend (jobprep config set checkpoint.backend sqlite).`,
	Example: `  jobprep approve 3f2a9c1e
  jobprep approve 3f2a9c1e --edit jobprep-out/3f2a9c1e/resume.md
  jobprep approve 3f2a9c1e --reject --feedback "Lead with the payments work"`,
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

func init() {
	approveCmd.Flags().BoolVar(&approveReject, "reject", false, "Reject the résumé and tailor it again")
	approveCmd.Flags().StringVarP(&approveFeedback, "feedback", "f", "", "What should change (with --reject)")
	approveCmd.Flags().StringVarP(&approveEdit, "edit", "e", "", "Approve this edited résumé file instead")
	approveCmd.Flags().StringVarP(&approveAgent, "agent", "a", "", "AI agent override")
	approveCmd.Flags().StringVarP(&approveModel, "model", "m", "", "Model override")
	approveCmd.MarkFlagsMutuallyExclusive("reject", "edit")
	_ = approveCmd.RegisterFlagCompletionFunc("model", completeModels)
	rootCmd.AddCommand(approveCmd)
}

func runApprove(cmd *cobra.Command, args []string) error {
	threadID := args[0]
	out := cmd.OutOrStdout()

	decision := workflow.Decision{Approve: !approveReject, Feedback: approveFeedback}
	if approveEdit != "" {
		edited, err := utils.ReadFile(approveEdit)
		if err != nil {
			return fmt.Errorf("failed to read edited résumé: %w", err)
		}
		decision.EditedResume = edited
	}
	if approveFeedback != "" && !approveReject {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s--feedback is only used with --reject\n", style.Warning("Warning"))
	}

	s, err := openSession(sessionOptions{agent: approveAgent, model: approveModel, progress: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signal.WithInterrupt(cmd.Context())
	defer cancel()

	snap, err := s.wf.Decide(ctx, threadID, decision)
	if err != nil {
		return failedRun(s, snap, notFoundHint(err, s.cfg, threadID))
	}
	if err := writeOutputs(out, s, snap); err != nil {
		return err
	}

	if snap.Interrupted() {
		fmt.Fprintf(out, "\n%s Revised résumé ready for review: %s\n",
			style.C(style.Yellow, "⏸"), style.C(style.Cyan, "jobprep approve "+threadID))
	}
	return nil
}
