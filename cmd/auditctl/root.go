package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "auditctl",
		Short: "Operator tool for the docaudit service",
		Long: `auditctl previews audit records for document changes, lists the
audited collections and their field descriptors, and mints push tokens
for event publishers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newCollectionsCmd())
	cmd.AddCommand(newTokenCmd())
	return cmd
}
