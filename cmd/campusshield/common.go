package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nao1215/campusshield/internal/backend"
	"github.com/nao1215/campusshield/internal/config"
	"github.com/nao1215/campusshield/internal/dom"
	"github.com/nao1215/campusshield/internal/log"
	"github.com/nao1215/campusshield/internal/relay"
	"github.com/nao1215/campusshield/internal/report"
	"github.com/nao1215/campusshield/internal/session"
	"github.com/nao1215/campusshield/internal/store"
	"github.com/spf13/cobra"
)

// addPageFlags registers the flags shared by the commands that host a page.
func addPageFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .campusshield in current or home directory, then the XDG config directory)")
	cmd.Flags().StringP("backend", "b", config.DefaultBackendURL,
		"Scoring backend endpoint")
	cmd.Flags().DurationP("timeout", "t", config.DefaultBackendTimeout,
		"Abort the backend call after this duration")
	cmd.Flags().StringP("url", "u", "",
		"Page URL of the document (default: its file:// URL)")
	cmd.Flags().Bool("offline", false,
		"Score in-process with the built-in detector instead of calling the backend")
	cmd.Flags().String("db-dir", "",
		"Directory of the position and history database (default: XDG data directory)")
	cmd.Flags().Bool("no-history", false,
		"Do not persist panel positions or scan history")
}

// addReportFlags registers the output format flags.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from the config file and the cobra flags.
// Flags the user set explicitly win over the file.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)

	flags := cmd.Flags()
	if flags.Lookup("config") != nil {
		var err error
		cfg.ConfigFilePath, err = flags.GetString("config")
		if err != nil {
			return nil, err
		}
	}

	// If the user explicitly specified a config file path, error if not found.
	// If no path specified, silently keep the defaults.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath != "" {
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.ApplyFile(file)
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if flags.Changed("backend") {
		backendURL, err := flags.GetString("backend")
		if err != nil {
			return nil, err
		}
		cfg.BackendURL = backendURL
	}

	if flags.Changed("timeout") {
		timeout, err := flags.GetDuration("timeout")
		if err != nil {
			return nil, err
		}
		cfg.BackendTimeout = timeout
	}

	if flags.Changed("db-dir") {
		dir, err := flags.GetString("db-dir")
		if err != nil {
			return nil, err
		}
		cfg.DBDir = dir
	}

	if flags.Lookup("json") != nil {
		var err error
		if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
			return nil, err
		}
		if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
			return nil, err
		}
		if cfg.ReportFile, err = flags.GetString("output"); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// setupLogger creates a structured logger based on verbosity setting.
// Sensitive attributes such as the sender are masked.
func setupLogger(w io.Writer, verbose bool) *slog.Logger {
	return log.NewSecureLogger(w, verbose)
}

// openDocument loads the e-mail page at path. A non-empty pageURL replaces
// the file:// URL, which decides support and the storage origin.
func openDocument(path, pageURL string) (*dom.Document, error) {
	if pageURL == "" {
		doc, err := dom.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load document: %w", err)
		}
		return doc, nil
	}

	f, err := os.Open(path) //nolint:gosec // User-provided document path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	defer f.Close()

	doc, err := dom.Parse(f, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return doc, nil
}

// newScorer returns the relay's scorer: the HTTP backend, or the built-in
// detector when offline.
func newScorer(cfg *config.Config, offline bool) relay.Scorer {
	if offline {
		return backend.NewDetector()
	}
	return relay.NewHTTPScorer(cfg.BackendURL, relay.WithMaxBodySize(cfg.MaxBodySize))
}

// pageInput holds the flags describing how a page is hosted.
type pageInput struct {
	path      string
	pageURL   string
	offline   bool
	noHistory bool
}

// readPageInput reads the page flags of cmd.
func readPageInput(cmd *cobra.Command, path string) (pageInput, error) {
	in := pageInput{path: path}
	var err error
	if in.pageURL, err = cmd.Flags().GetString("url"); err != nil {
		return in, err
	}
	if in.offline, err = cmd.Flags().GetBool("offline"); err != nil {
		return in, err
	}
	if in.noHistory, err = cmd.Flags().GetBool("no-history"); err != nil {
		return in, err
	}
	return in, nil
}

// openStore opens the position and history database. It returns nil
// session options when history is disabled.
func openStore(cfg *config.Config, disabled bool, logger *slog.Logger) (*store.DB, []session.Option, error) {
	if disabled {
		return nil, nil, nil
	}
	db, err := store.Open(cfg.DBDir, store.DefaultOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("database opened", "path", db.Path())
	return db, []session.Option{session.WithKV(db), session.WithHistory(db)}, nil
}

// newReportWriter returns the writer for the configured format.
func newReportWriter(cfg *config.Config, w io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(w, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(cfg.Verbose))
	}
}

// withOutput calls fn with the report destination: cfg.ReportFile when set,
// stdout otherwise.
func withOutput(cfg *config.Config, stdout io.Writer, fn func(io.Writer) error) (err error) {
	if cfg.ReportFile == "" {
		return fn(stdout)
	}

	dir := filepath.Dir(cfg.ReportFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports name the scanned page, so only the owner may read them.
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return fn(f)
}
