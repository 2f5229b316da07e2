package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for campusshield.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campusshield",
		Short: "Phishing scanner for e-mail pages",
		Long: `campusshield scans an e-mail page for phishing indicators.

The page is loaded into a local host document. On request, a page agent
extracts the sender, subject, body and links, a relay forwards them to the
scoring backend, and the verdict is shown on a result panel while suspicious
phrases and links are highlighted in the document.

Run "campusshield serve" to start the local scoring backend, or pass
--offline to score in-process.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewWatchCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
