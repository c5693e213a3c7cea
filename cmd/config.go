package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xrsl/jobprep/pkg/ai"
	"github.com/xrsl/jobprep/pkg/config"
	"github.com/xrsl/jobprep/pkg/style"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage jobprep configuration",
	Long: `Read and write .jobprep.yaml.

Every key can also be set through the environment, e.g. JOBPREP_MODEL or
JOBPREP_CHECKPOINT_BACKEND.`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Long: `Set a configuration value.

Keys:
  agent               claude-code, gemini-cli, claude-* or gemini-*
  model               model short name (sonnet-4-5, flash, ...)
  schema              job requirements schema (issue-form YAML)
  prompts_dir         prompt template overrides
  output_dir          where résumés and interview notes are written
  listen              serve address
  max_retries         extra tailoring rounds after a rejected review (0-10)
  cache               cache job research on disk (true/false)
  checkpoint.backend  memory or sqlite
  checkpoint.path     sqlite database file`,
	Example: `  jobprep config set model sonnet-4-5
  jobprep config set checkpoint.backend sqlite`,
	Args: cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		switch {
		case len(args) == 0:
			return config.Keys(), cobra.ShellCompDirectiveNoFileComp
		case args[0] == "model":
			return completeModels(cmd, args, toComplete)
		case args[0] == "checkpoint.backend":
			return []string{"memory", "sqlite"}, cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveDefault
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if key == "model" && value != "" {
			if _, ok := ai.GetModel(value); !ok && !ai.IsModelSupported(value) {
				return fmt.Errorf("unsupported model: %s (supported: %s)", value, strings.Join(ai.SupportedModelNames(), ", "))
			}
		}
		if err := config.Set(key, value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := config.Get(args[0])
		if err != nil {
			return err
		}
		if value == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "(not set)")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), value)
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all config values",
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := config.All()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "\n%s\n", style.C(style.Bold+style.Cyan, "jobprep config"))
		fmt.Fprintf(out, "%s\n\n", style.C(style.Gray, config.Path()))
		for _, key := range config.Keys() {
			printConfigRow(cmd, key, values[key], defaultHint(key))
		}
		fmt.Fprintln(out)
		return nil
	},
}

func defaultHint(key string) string {
	switch key {
	case "agent":
		return "auto: " + ai.DefaultAgent()
	case "model":
		return "agent default"
	case "schema":
		return "bundled default"
	}
	return ""
}

func printConfigRow(cmd *cobra.Command, key, value, hint string) {
	out := cmd.OutOrStdout()
	switch {
	case value != "":
		fmt.Fprintf(out, "  %-19s %s\n", key, style.C(style.Green, value))
	case hint != "":
		fmt.Fprintf(out, "  %-19s %s\n", key, style.C(style.Gray, "("+hint+")"))
	default:
		fmt.Fprintf(out, "  %-19s %s\n", key, style.C(style.Gray, "(not set)"))
	}
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}
