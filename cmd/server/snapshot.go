package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nandanugg/geofence-monitor/module/core"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export or import the stored geofence registry",
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the stored registry to a YAML file (- for stdout)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx, cfg)
		if err != nil {
			return err
		}
		if db != nil {
			defer func() { _ = db.Close() }()
		}

		var w io.Writer = cmd.OutOrStdout()
		if args[0] != "-" {
			f, err := os.Create(args[0])
			if err != nil {
				return eris.Wrap(err, "snapshot export: create file")
			}
			defer func() { _ = f.Close() }()
			w = f
		}

		n, err := core.ExportSnapshot(ctx, cfg.Store, db, w)
		if err != nil {
			return err
		}
		zap.L().Info("snapshot exported", zap.String("file", args[0]), zap.Int("geofences", n))
		return nil
	},
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the stored registry with a YAML file (- for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx, cfg)
		if err != nil {
			return err
		}
		if db != nil {
			defer func() { _ = db.Close() }()
		}

		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return eris.Wrap(err, "snapshot import: open file")
			}
			defer func() { _ = f.Close() }()
			r = f
		}

		n, err := core.ImportSnapshot(ctx, cfg.Store, db, r)
		if err != nil {
			return err
		}
		zap.L().Info("snapshot imported", zap.String("file", args[0]), zap.Int("geofences", n))
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotExportCmd, snapshotImportCmd)
	rootCmd.AddCommand(snapshotCmd)
}
