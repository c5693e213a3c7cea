package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xrsl/jobprep/pkg/signal"
	"github.com/xrsl/jobprep/pkg/style"
)

var retryCmd = &cobra.Command{
	Use:   "retry <thread>",
	Short: "Resume a failed run at the step that failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		threadID := args[0]
		out := cmd.OutOrStdout()

		s, err := openSession(sessionOptions{progress: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := signal.WithInterrupt(cmd.Context())
		defer cancel()

		snap, err := s.wf.Retry(ctx, threadID)
		if err != nil {
			return notFoundHint(err, s.cfg, threadID)
		}
		if err := writeOutputs(out, s, snap); err != nil {
			return err
		}
		if snap.Interrupted() {
			fmt.Fprintf(out, "\n%s Review the résumé, then run: %s\n",
				style.C(style.Yellow, "⏸"), style.C(style.Cyan, "jobprep approve "+threadID))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
}
