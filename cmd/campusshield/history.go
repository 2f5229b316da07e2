package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/nao1215/campusshield/internal/store"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit is the number of verdicts listed by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded scan verdicts",
		Long: `History lists the verdicts recorded by scan and watch, newest first.

Only the page origin and the verdict are recorded, never the message content.

Examples:
  # Show the last 20 verdicts
  campusshield history

  # Show every verdict as Markdown
  campusshield history --limit 0 --markdown`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of verdicts to list (0 lists all)")
	cmd.Flags().String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")
	addReportFlags(cmd)

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	opts := store.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := store.Open(cfg.DBDir, opts)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no scan history in %s: %w", cfg.DBDir, err)
	}
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.ListScans(cmd.Context(), limit)
	if err != nil {
		return err
	}

	return withOutput(cfg, cmd.OutOrStdout(), func(w io.Writer) error {
		_, err := newReportWriter(cfg, w).WriteHistory(records)
		return err
	})
}
