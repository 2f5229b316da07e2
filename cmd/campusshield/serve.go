package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/campusshield/internal/backend"
	"github.com/nao1215/campusshield/internal/config"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local scoring backend",
		Long: `Serve runs the rule-based scoring backend that scan and watch call by default.

Endpoints:
  POST /scan     score {"sender", "subject", "body", "links"}
  GET  /health   liveness check

The backend validates its input and answers {"error", "status"} with HTTP 400
for malformed requests. Message content is never logged.

Examples:
  # Listen on the default address (127.0.0.1:5000)
  campusshield serve

  # Listen on another port
  campusshield serve --listen 127.0.0.1:8080`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("listen", "l", config.DefaultListenAddress,
		"Address the backend listens on")

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	addr, err := cmd.Flags().GetString("listen")
	if err != nil {
		return err
	}

	logger := setupLogger(cmd.ErrOrStderr(), getVerboseFlag(cmd))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "%s listening on http://%s\n", backend.ServiceName, addr)
	if err := backend.NewServer(addr, backend.NewDetector(), logger).Run(ctx); err != nil {
		return fmt.Errorf("backend failed: %w", err)
	}
	return nil
}
