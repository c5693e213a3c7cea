package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/xrsl/jobprep/pkg/config"
	clog "github.com/xrsl/jobprep/pkg/log"
	"github.com/xrsl/jobprep/pkg/style"
)

var (
	quiet      bool
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "jobprep",
	Short: "Tailor your résumé and prepare for interviews with AI",
	Long: `jobprep researches a job posting, builds your candidate profile, tailors
your résumé with a reviewer loop and, once you approve the résumé, prepares
interview materials.

Runs are checkpointed after every step, pause for your approval before
interview preparation, and can be resumed later with the sqlite backend.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		clog.SetVerbose(verbose)
		clog.SetQuiet(quiet)
		if configPath != "" {
			return config.Use(configPath)
		}
		return nil
	},
}

func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, style.Failure("Error")+err.Error())
		os.Exit(1)
	}
}

func init() {
	style.SetupHelp(rootCmd)

	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default .jobprep.yaml)")
}
