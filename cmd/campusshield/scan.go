package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/campusshield/internal/config"
	"github.com/nao1215/campusshield/internal/model"
	"github.com/nao1215/campusshield/internal/report"
	"github.com/nao1215/campusshield/internal/session"
	"github.com/nao1215/campusshield/internal/surface"
	"github.com/nao1215/campusshield/internal/trigger"
	"github.com/spf13/cobra"
)

// panelWidth is the width of the result panel printed with --panel.
const panelWidth = 60

// resultGrace is how long scan waits for the verdict beyond the page
// agent's own forwarding deadline.
const resultGrace = 2 * time.Second

var (
	// errScanNotRequested is returned when the page agent did not accept
	// the scan request. The trigger status is appended.
	errScanNotRequested = errors.New("scan not requested")

	// errNoVerdict is returned when no verdict arrived in time.
	errNoVerdict = errors.New("no verdict received")
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [email-page]",
		Short: "Scan an e-mail page for phishing indicators",
		Long: `Scan hosts an e-mail page, requests a scan through the page agent, and
prints the verdict.

The page must be a supported e-mail page: its URL must contain one of the
configured supportedPages fragments (mock_email.html, mail.google.com,
http://localhost and http://127.0.0.1 by default). Use --url to give a
local file the URL it was saved from.

The verdict is also recorded in the scan history (see "campusshield history").
Only the verdict is stored, never the message content.

Examples:
  # Scan with the local backend ("campusshield serve")
  campusshield scan mock_email.html

  # Score in-process without a backend
  campusshield scan --offline mock_email.html

  # Treat a saved page as a localhost page
  campusshield scan --url http://localhost:8000/inbox.html inbox.html

  # Output a Markdown report to a file
  campusshield scan --markdown -o reports/verdict.md mock_email.html`,
		Args: cobra.ExactArgs(1),
		RunE: runScanCmd,
	}

	addPageFlags(cmd)
	addReportFlags(cmd)
	cmd.Flags().Bool("panel", false,
		"Print every result panel view to stderr")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	in, err := readPageInput(cmd, args[0])
	if err != nil {
		return err
	}

	showPanel, err := cmd.Flags().GetBool("panel")
	if err != nil {
		return err
	}
	var panel io.Writer
	if showPanel {
		panel = cmd.ErrOrStderr()
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := runScan(ctx, cfg, in, panel, logger)
	if err != nil {
		return err
	}

	return withOutput(cfg, cmd.OutOrStdout(), func(w io.Writer) error {
		_, err := newReportWriter(cfg, w).Write(rep)
		return err
	})
}

// runScan hosts the page, clicks the trigger once and waits for the
// verdict. Views of the result panel are printed to panel when non-nil.
func runScan(ctx context.Context, cfg *config.Config, in pageInput, panel io.Writer, logger *slog.Logger) (*report.Report, error) {
	doc, err := openDocument(in.path, in.pageURL)
	if err != nil {
		return nil, err
	}

	db, opts, err := openStore(cfg, in.noHistory, logger)
	if err != nil {
		return nil, err
	}
	if db != nil {
		defer db.Close()
	}

	results := make(chan model.ScanResult, 1)
	opts = append(opts,
		session.WithConfig(cfg),
		session.WithLogger(logger),
		session.WithResultHook(func(_ context.Context, _ string, result model.ScanResult) {
			select {
			case results <- result:
			default:
			}
		}),
	)
	if panel != nil {
		opts = append(opts, session.WithSurfaceOptions(
			surface.WithDisplay(surface.NewTextPanel(panel, panelWidth))))
	}

	sess, err := session.New(doc, newScorer(cfg, in.offline), opts...)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- sess.Run(runCtx)
	}()
	defer func() {
		cancel()
		if err := <-errCh; err != nil {
			logger.Warn("session stopped with error", "error", err)
		}
	}()

	trig := trigger.New(sess.Hub(), doc.URL(),
		trigger.WithSupportedPages(cfg.SupportedPages),
		trigger.WithTimings(cfg.SettleDelay, cfg.ProbeTimeout, cfg.StatusDuration),
		trigger.WithStatusHandler(func(status string) {
			if status != "" {
				logger.Info("trigger status", "status", status)
			}
		}),
		trigger.WithLogger(logger),
	)

	logger.Info("starting scan", "url", doc.URL(), "backend", cfg.BackendURL, "offline", in.offline)
	outcome := trig.InitiateScan(ctx)
	if !outcome.Requested {
		return nil, fmt.Errorf("%w: %s", errScanNotRequested, outcome.Status)
	}

	timer := time.NewTimer(cfg.ForwardDeadline() + resultGrace)
	defer timer.Stop()

	select {
	case result := <-results:
		return &report.Report{
			Page:      doc.URL(),
			ScannedAt: time.Now(),
			Result:    result,
		}, nil
	case <-timer.C:
		return nil, errNoVerdict
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
