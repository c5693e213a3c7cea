package cmd

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/xrsl/jobprep/pkg/ai"
	"github.com/xrsl/jobprep/pkg/checkpoint"
	"github.com/xrsl/jobprep/pkg/config"
	"github.com/xrsl/jobprep/pkg/gemini"
	"github.com/xrsl/jobprep/pkg/gh"
	"github.com/xrsl/jobprep/pkg/prompt"
	"github.com/xrsl/jobprep/pkg/schema"
	"github.com/xrsl/jobprep/pkg/style"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check system setup",
	Long:  `Verify model access, templates, the requirements schema and the checkpoint store.`,
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func ok(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", style.C(style.Green, "✓"), fmt.Sprintf(format, args...))
}

func bad(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", style.C(style.Red, "✗"), fmt.Sprintf(format, args...))
}

func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", style.C(style.Yellow, "⚠"), fmt.Sprintf(format, args...))
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	allGood := true

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Checking model access\n\n", style.C(style.Blue, "→"))

	hasAnthropicKey := os.Getenv("ANTHROPIC_API_KEY") != ""
	hasGeminiKey := gemini.APIKey() != ""
	if hasAnthropicKey {
		ok(out, "ANTHROPIC_API_KEY set")
	} else {
		warn(out, "ANTHROPIC_API_KEY not set (required for claude-* agents)")
	}
	if hasGeminiKey {
		ok(out, "Gemini API key set")
	} else {
		warn(out, "GEMINI_API_KEY not set (required for gemini-* agents)")
	}
	for _, bin := range []string{"claude", "gemini"} {
		if _, err := exec.LookPath(bin); err == nil {
			ok(out, "%s CLI available", bin)
		}
	}

	agent, err := ai.ResolveAgent(cfg.Agent, cfg.Model)
	switch {
	case err != nil:
		bad(out, "%v", err)
		allGood = false
	case !ai.IsAgentSupported(agent):
		bad(out, "agent %s is not usable here", agent)
		allGood = false
	default:
		ok(out, "agent %s", style.C(style.Cyan, agent))
	}

	if gh.Available() {
		ok(out, "gh CLI available (GitHub context enabled)")
	} else {
		warn(out, "gh CLI not found (GitHub profiles will be skipped)")
	}

	fmt.Fprintf(out, "\n%s Checking project files\n\n", style.C(style.Blue, "→"))

	if err := prompt.New(cfg.PromptsDir).Check(); err != nil {
		bad(out, "prompt templates: %v", err)
		allGood = false
	} else {
		ok(out, "prompt templates (%s)", cfg.PromptsDir)
	}

	if sch, err := schema.Load(cfg.Schema); err != nil {
		bad(out, "requirements schema: %v", err)
		allGood = false
	} else {
		ok(out, "requirements schema %q (%d fields)", sch.Name, len(sch.Fields))
	}

	saver, err := checkpoint.Open(cfg.Checkpoint.Backend, cfg.Checkpoint.Path)
	if err != nil {
		bad(out, "checkpoint store: %v", err)
		allGood = false
	} else {
		_ = saver.Close()
		if checkpoint.Durable(cfg.Checkpoint.Backend) {
			ok(out, "checkpoints in %s", cfg.Checkpoint.Path)
		} else {
			warn(out, "checkpoints kept in memory (approve from another command needs checkpoint.backend sqlite)")
		}
	}

	fmt.Fprintln(out)
	if !allGood {
		return fmt.Errorf("setup issues detected")
	}
	ok(out, "Setup OK")
	return nil
}
