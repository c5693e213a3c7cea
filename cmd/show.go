package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xrsl/jobprep/pkg/style"
	"github.com/xrsl/jobprep/pkg/workflow"
)

var (
	showHistory bool
	showJSON    bool
)

var showCmd = &cobra.Command{
	Use:   "show <thread>",
	Short: "Show the state of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showHistory, "history", false, "List every checkpoint")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the raw state as JSON")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	threadID := args[0]
	out := cmd.OutOrStdout()

	s, err := openSession(sessionOptions{offline: true})
	if err != nil {
		return err
	}
	defer s.Close()

	if showHistory {
		hist, err := s.wf.History(cmd.Context(), threadID)
		if err != nil {
			return notFoundHint(err, s.cfg, threadID)
		}
		for _, h := range hist {
			node := h.Node
			if node == "" {
				node = "-"
			}
			fmt.Fprintf(out, "%3d  %-18s %-19s %s\n", h.Step, node, string(h.Status), h.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			if h.Error != "" {
				fmt.Fprintf(out, "     %s\n", style.C(style.Red, h.Error))
			}
		}
		return nil
	}

	snap, err := s.wf.State(cmd.Context(), threadID)
	if err != nil {
		return notFoundHint(err, s.cfg, threadID)
	}

	if showJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	printState(cmd, s, snap)
	return nil
}

func printState(cmd *cobra.Command, s *session, snap *workflow.Snapshot) {
	out := cmd.OutOrStdout()
	st := snap.State

	fmt.Fprintf(out, "%s %s  %s  %s\n", style.B("Thread"), style.C(style.Cyan, snap.ThreadID), style.Status(string(snap.Status)), style.C(style.Gray, age(snap.UpdatedAt)))
	if snap.Error != "" {
		fmt.Fprintf(out, "%s%s\n", style.Failure("Error"), snap.Error)
	}
	if st.JobURL != "" {
		fmt.Fprintf(out, "Job: %s\n", st.JobURL)
	}
	fmt.Fprintf(out, "Review: approved=%v, rejections=%d\n", st.Approved, st.RetryCount)

	if req := s.wf.RequirementsMarkdown(st); req != "" {
		style.Heading(out, "Requirements")
		fmt.Fprint(out, req)
	}
	if st.TailoredResume != "" {
		style.Heading(out, "Tailored résumé")
		fmt.Fprintln(out, st.TailoredResume)
	}
	if st.ValidationFeedback != "" {
		style.Heading(out, "Reviewer feedback")
		fmt.Fprintln(out, st.ValidationFeedback)
	}
	if st.HumanFeedback != "" {
		style.Heading(out, "Your feedback")
		fmt.Fprintln(out, st.HumanFeedback)
	}
	if st.InterviewMaterials != "" {
		style.Heading(out, "Interview preparation")
		fmt.Fprintln(out, st.InterviewMaterials)
	}
}
