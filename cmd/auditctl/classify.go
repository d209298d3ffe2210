package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/onnwee/docaudit/internal/audit"
	"github.com/onnwee/docaudit/internal/collections"
	"github.com/onnwee/docaudit/internal/snapshot"
)

func newClassifyCmd() *cobra.Command {
	var collection, beforePath, afterPath string

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Preview the Update record for a pair of document snapshots",
		Long: `Reads the before and after snapshots of a document (YAML or JSON) and
prints the audit record the service would emit for the update.`,
		Example: `  auditctl classify --collection Characters --before old.yaml --after new.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptors, ok := collections.Descriptors(collection)
			if !ok {
				return fmt.Errorf("unknown collection %q", collection)
			}
			prev, err := loadSnapshot(beforePath)
			if err != nil {
				return err
			}
			next, err := loadSnapshot(afterPath)
			if err != nil {
				return err
			}

			sink := audit.NewInMemorySink()
			rec, err := audit.NewRecorder(sink, slog.Default())
			if err != nil {
				return err
			}
			record, err := rec.RecordUpdate(context.Background(), collection, "preview", prev, next, descriptors)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(record)
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Audited collection name")
	cmd.Flags().StringVar(&beforePath, "before", "", "File holding the snapshot before the change")
	cmd.Flags().StringVar(&afterPath, "after", "", "File holding the snapshot after the change")
	_ = cmd.MarkFlagRequired("collection")
	_ = cmd.MarkFlagRequired("before")
	_ = cmd.MarkFlagRequired("after")
	return cmd
}

// loadSnapshot reads a YAML (or JSON) mapping from path.
func loadSnapshot(path string) (snapshot.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var s map[string]any
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	if s == nil {
		s = map[string]any{}
	}
	return snapshot.Snapshot(s), nil
}
