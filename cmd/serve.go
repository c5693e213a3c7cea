package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	clog "github.com/xrsl/jobprep/pkg/log"
	"github.com/xrsl/jobprep/pkg/server"
	"github.com/xrsl/jobprep/pkg/signal"
	"github.com/xrsl/jobprep/pkg/style"
)

var (
	serveListen string
	serveAgent  string
	serveModel  string
	serveJSON   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session HTTP API",
	Long: `Serve the application workflow over HTTP.

  POST   /api/sessions                 start a run (JSON or multipart with a résumé file)
  GET    /api/sessions                 list runs
  GET    /api/sessions/:id             run state
  GET    /api/sessions/:id/history     checkpoints
  POST   /api/sessions/:id/approve     {"approve", "edited_resume", "feedback"}
  POST   /api/sessions/:id/retry       resume a failed run
  GET    /api/sessions/:id/resume.md   tailored résumé
  GET    /api/sessions/:id/interview.md
  DELETE /api/sessions/:id`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !verbose && !quiet {
			clog.SetLevel(slog.LevelInfo)
		}
		clog.SetJSON(serveJSON)

		s, err := openSession(sessionOptions{agent: serveAgent, model: serveModel})
		if err != nil {
			return err
		}
		defer s.Close()

		addr := firstNonEmpty(serveListen, s.cfg.Listen)
		ctx, cancel := signal.WithInterrupt(cmd.Context())
		defer cancel()

		fmt.Fprintf(cmd.OutOrStdout(), "%s serving on %s\n", style.C(style.Blue, "→"), style.C(style.Cyan, "http://"+addr))
		return server.New(s.wf).Start(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "Listen address (default from config)")
	serveCmd.Flags().StringVarP(&serveAgent, "agent", "a", "", "AI agent override")
	serveCmd.Flags().StringVarP(&serveModel, "model", "m", "", "Model override")
	serveCmd.Flags().BoolVar(&serveJSON, "log-json", false, "Log as JSON")
	_ = serveCmd.RegisterFlagCompletionFunc("model", completeModels)
	rootCmd.AddCommand(serveCmd)
}
