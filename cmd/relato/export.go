package relato

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/relato/pkg/audit"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the ledger to Parquet files",
	Long: `Write a Parquet snapshot of people, organizations, facts (historical
rows included), and merge history to the audit directory.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportDir, "out", "", "output directory (default from config)")
}

func runExport(cmd *cobra.Command, args []string) error {
	client, cfg, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	dir := exportDir
	if dir == "" {
		dir = cfg.Audit.ParquetPath
	}

	exporter, err := audit.NewExporter(client.Store(), dir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	written, err := exporter.Export(ctx)
	if err != nil {
		return err
	}
	for _, path := range written {
		fmt.Println(path)
	}
	return nil
}
