package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-harvester/internal/history"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

const maxCellWidth = 48

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs or one run's outcomes",
	Long: `History reads the run history database. Without arguments it lists the
most recent runs; with a run ID it prints that run's outcomes in row order.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", history.DefaultLimit, "number of runs to list")
	historyCmd.Flags().Bool("yaml", false, "print YAML instead of a table")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if cfg.History.DBPath == "" {
		return fmt.Errorf("run history is disabled (history.db_path is empty)")
	}
	asYAML, _ := cmd.Flags().GetBool("yaml")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		runs, err := store.ListRuns(ctx, limit)
		if err != nil {
			return err
		}
		if asYAML {
			return writeYAML(out, runs)
		}
		writeRunTable(out, runs)
		return nil
	}

	summary, err := store.Run(ctx, args[0])
	if err != nil {
		return err
	}
	outcomes, err := store.Outcomes(ctx, args[0])
	if err != nil {
		return err
	}
	if asYAML {
		return writeYAML(out, struct {
			Run      types.RunSummary `yaml:"run"`
			Outcomes []types.Outcome  `yaml:"outcomes"`
		}{summary, outcomes})
	}
	writeOutcomeTable(out, outcomes)
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	return enc.Close()
}

func writeRunTable(w io.Writer, runs []types.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	rows := [][]string{{"ID", "STARTED", "SOURCE", "STATE", "PROCESSED", "DOWNLOADED", "FILE"}}
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Source.DisplayName(),
			string(r.State),
			strconv.Itoa(r.Processed) + "/" + strconv.Itoa(r.Total),
			strconv.Itoa(r.Downloaded),
			r.SpreadsheetPath,
		})
	}
	writeTable(w, rows)
}

func writeOutcomeTable(w io.Writer, outcomes []types.Outcome) {
	rows := [][]string{{"DOI", "STATUS", "SOURCE"}}
	for _, o := range outcomes {
		rows = append(rows, []string{o.Identifier, o.Status.String(), o.Source.DisplayName()})
	}
	writeTable(w, rows)
}

// writeTable prints rows as left-aligned columns sized by display width, so
// identifiers with wide characters stay aligned.
func writeTable(w io.Writer, rows [][]string) {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if cw := runewidth.StringWidth(cell); cw > widths[i] {
				widths[i] = min(cw, maxCellWidth)
			}
		}
	}

	for _, row := range rows {
		var sb strings.Builder
		for i, cell := range row {
			cell = runewidth.Truncate(cell, maxCellWidth, "…")
			if i == len(row)-1 {
				sb.WriteString(cell)
				break
			}
			sb.WriteString(runewidth.FillRight(cell, widths[i]))
			sb.WriteString("  ")
		}
		fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))
	}
}
