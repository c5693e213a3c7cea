package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xrsl/jobprep/pkg/cache"
	"github.com/xrsl/jobprep/pkg/config"
	"github.com/xrsl/jobprep/pkg/prompt"
	"github.com/xrsl/jobprep/pkg/schema"
	"github.com/xrsl/jobprep/pkg/style"
	"github.com/xrsl/jobprep/pkg/utils"
)

var (
	initReset  bool
	initSchema string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize jobprep in this directory",
	Long: `Write the config file and the default prompt templates.

Creates:
  .jobprep.yaml              Configuration file
  .jobprep/prompts/*.md      Prompt templates (edit to customize)
  <output_dir>/.gitignore    Keeps generated documents out of git

With --schema, also writes the default job requirements schema to that path
and points the config at it. --reset restores the default prompts and
clears cached job research.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initReset, "reset", false, "Overwrite prompt templates with the defaults")
	initCmd.Flags().StringVar(&initSchema, "schema", "", "Write an editable copy of the requirements schema here")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if initReset {
		written, err := prompt.Reset(cfg.PromptsDir)
		if err != nil {
			return err
		}
		for _, path := range written {
			fmt.Fprintf(out, "%s%s\n", style.Success("Reset"), path)
		}
		n, err := cache.New(cache.DefaultDir()).Clear()
		if err != nil {
			return err
		}
		if n > 0 {
			fmt.Fprintf(out, "%sremoved %d cached job research entries\n", style.Success("Cache"), n)
		}
		return nil
	}

	if initSchema != "" {
		cfg.Schema = initSchema
	}

	created, err := prompt.Init(cfg.PromptsDir, initSchema, schema.DefaultSchemaYAML())
	if err != nil {
		return err
	}
	if err := utils.EnsureGitignore(cfg.OutputDir); err != nil {
		return fmt.Errorf("failed to create %s: %w", cfg.OutputDir, err)
	}

	_, statErr := os.Stat(config.Path())
	if os.IsNotExist(statErr) || initSchema != "" {
		if err := config.Save(cfg); err != nil {
			return err
		}
		created = append(created, config.Path())
	}

	if len(created) == 0 {
		fmt.Fprintf(out, "%s Already initialized\n", style.C(style.Green, "✓"))
		return nil
	}
	for _, path := range created {
		fmt.Fprintf(out, "%s%s\n", style.Success("Created"), path)
	}
	fmt.Fprintf(out, "\n%s Try: %s\n", style.C(style.Bold+style.Green, "Ready!"),
		style.C(style.Cyan, "jobprep run --job-url <url> --resume <file>"))
	return nil
}
