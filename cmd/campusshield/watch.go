package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nao1215/campusshield/internal/config"
	"github.com/nao1215/campusshield/internal/log"
	"github.com/nao1215/campusshield/internal/session"
	"github.com/nao1215/campusshield/internal/surface"
	"github.com/nao1215/campusshield/internal/trigger"
	"github.com/nao1215/campusshield/internal/tui"
	"github.com/spf13/cobra"
)

// watchLogFile is the log file of the watch screen, inside the data
// directory. The terminal belongs to the TUI.
const watchLogFile = "watch.log"

// bridgeBuffer is the number of panel and status events buffered for the TUI.
const bridgeBuffer = 64

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [email-page]",
		Short: "Open an interactive scan screen for an e-mail page",
		Long: `Watch hosts an e-mail page and opens an interactive screen with the scan
control and the result panel.

The page file is watched: when it changes on disk the document is reloaded
and the scan control follows whether the new content is an e-mail.

Keys:
  s, enter     scan the page
  arrows       drag the result panel
  c            close the panel
  d            dismiss the panel
  l            show the safety tip
  q, esc       quit

With --verbose, logs are written to watch.log in the data directory.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatchCmd,
	}

	addPageFlags(cmd)

	return cmd
}

// runWatchCmd executes the watch command.
func runWatchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	in, err := readPageInput(cmd, args[0])
	if err != nil {
		return err
	}

	logger, closeLog, err := watchLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	doc, err := openDocument(in.path, in.pageURL)
	if err != nil {
		return err
	}

	db, opts, err := openStore(cfg, in.noHistory, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	bridge := tui.NewBridge(bridgeBuffer)
	defer bridge.Close()

	opts = append(opts,
		session.WithConfig(cfg),
		session.WithLogger(logger),
		session.WithWatchFile(in.path),
		session.WithSurfaceOptions(surface.WithDisplay(bridge.Display())),
	)
	sess, err := session.New(doc, newScorer(cfg, in.offline), opts...)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- sess.Run(runCtx)
	}()

	trig := trigger.New(sess.Hub(), doc.URL(),
		trigger.WithSupportedPages(cfg.SupportedPages),
		trigger.WithTimings(cfg.SettleDelay, cfg.ProbeTimeout, cfg.StatusDuration),
		trigger.WithStatusHandler(bridge.Status()),
		trigger.WithLogger(logger),
	)

	program := tea.NewProgram(
		tui.NewModel(runCtx, doc.URL(), trig, sess, bridge),
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
		tea.WithAltScreen(),
	)
	_, runErr := program.Run()

	bridge.Close()
	cancel()
	if err := <-errCh; err != nil {
		return fmt.Errorf("session failed: %w", err)
	}

	if runErr != nil && !(errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return fmt.Errorf("watch screen failed: %w", runErr)
	}
	return nil
}

// watchLogger returns the logger of the watch screen. Without --verbose
// nothing is logged.
func watchLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	if !cfg.Verbose {
		return log.Discard(), func() {}, nil
	}

	if err := os.MkdirAll(cfg.DBDir, 0750); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(cfg.DBDir, watchLogFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // Path is inside the data directory
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return setupLogger(f, true), func() { _ = f.Close() }, nil
}
