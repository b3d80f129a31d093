package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-harvester/internal/archive"
	"github.com/pdiddy/paper-harvester/internal/storage"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Bundle the output directory into articles.zip",
	Long: `Archive rebuilds articles.zip from every file in the output directory,
including the download report, and prints its path. When publishing is
configured the archive is also uploaded to object storage.`,
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	path, err := archive.Build(cfg.Harvest.OutputDir)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)

	if cfg.Publish.Enabled() {
		pub, err := storage.NewMinioStore(cmd.Context(), cfg.Publish)
		if err != nil {
			return fmt.Errorf("connecting to object storage: %w", err)
		}
		loc, err := pub.Publish(cmd.Context(), path)
		if err != nil {
			return err
		}
		logrus.WithField("location", loc).Info("archive published")
	}
	return nil
}
