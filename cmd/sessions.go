package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xrsl/jobprep/pkg/style"
	"github.com/xrsl/jobprep/pkg/workflow"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ls"},
	Short:   "List application runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		s, err := openSession(sessionOptions{offline: true})
		if err != nil {
			return err
		}
		defer s.Close()

		if !s.durable() {
			fmt.Fprintf(cmd.ErrOrStderr(), "%sthe %s backend keeps no runs between commands\n",
				style.Warning("Note"), s.cfg.Checkpoint.Backend)
		}

		snaps, err := s.wf.Threads(cmd.Context())
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Fprintln(out, "No runs")
			return nil
		}

		fmt.Fprintf(out, "%-10s %-19s %-18s %-17s %s\n", "THREAD", "STATUS", "NEXT", "UPDATED", "JOB")
		for _, snap := range snaps {
			title := ""
			if len(snap.State.JobRequirements) > 0 {
				title = s.wf.Schema().GetTitle(snap.State.JobRequirements)
			} else if snap.State.JobURL != "" {
				title = snap.State.JobURL
			}
			status := string(snap.Status)
			pad := 19 - len(status)
			if snap.Interrupted() {
				pad = 19 - len("awaiting approval")
			}
			fmt.Fprintf(out, "%-10s %s%*s %-18s %-17s %s\n",
				snap.ThreadID,
				style.Status(status), pad, "",
				nextLabel(snap),
				snap.UpdatedAt.Local().Format("2006-01-02 15:04"),
				title)
		}
		return nil
	},
}

func nextLabel(snap *workflow.Snapshot) string {
	if snap.Completed() || snap.Next == "" {
		return "-"
	}
	return snap.Next
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

// age formats how long ago t was, for show.
func age(t time.Time) string {
	d := time.Since(t).Round(time.Second)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
