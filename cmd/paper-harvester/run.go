package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-harvester/internal/batch"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run <spreadsheet>",
	Short: "Process a DOI spreadsheet in the foreground",
	Long: `Run reads the DOI column of an .xlsx or .csv file and resolves each DOI
through the chosen source, printing progress as it goes. The download report
is written to the output directory when the run ends.

The first interrupt (Ctrl-C) stops the run before its next DOI and still
writes the report; a second interrupt aborts immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("source", string(types.SourceUnpaywall), "lookup source: unpaywall or mirror")
	runCmd.Flags().String("column", "", "spreadsheet header holding DOIs (default DOI)")
	runCmd.Flags().String("email", "", "contact email sent to Unpaywall")
	runCmd.Flags().Duration("delay", 0, "minimum delay between DOIs")
	runCmd.Flags().Bool("verify", false, "warn when a downloaded file is not a valid PDF")

	bindFlag("harvest.identifier_column", runCmd.Flags().Lookup("column"))
	bindFlag("harvest.contact_email", runCmd.Flags().Lookup("email"))
	bindFlag("harvest.row_delay", runCmd.Flags().Lookup("delay"))
	bindFlag("harvest.verify_pdf", runCmd.Flags().Lookup("verify"))

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	source, _ := cmd.Flags().GetString("source")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	events := batch.EmitterFunc(func(e batch.Event) {
		switch e.Kind {
		case batch.EventLog:
			fmt.Fprintln(out, e.Message)
		case batch.EventProgress:
			logrus.WithFields(logrus.Fields{"current": e.Current, "total": e.Total}).Debug("progress")
		}
	})

	h := newHarvester(ctx, cfg, events)
	defer h.Close()

	run, err := h.runner.Prepare(args[0], source)
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		interrupts := 0
		for {
			select {
			case <-sigs:
				interrupts++
				if interrupts == 1 {
					logrus.Info("stopping after the current DOI; interrupt again to abort")
					h.runner.Stop()
					continue
				}
				cancel()
				return
			case <-run.Done():
				return
			}
		}
	}()

	h.runner.Execute(ctx, run)

	summary := run.Summary()
	fmt.Fprintf(out, "\n%s: %d/%d processed, %d downloaded\n",
		summary.State, summary.Processed, summary.Total, summary.Downloaded)
	if summary.State == types.RunFailed {
		return fmt.Errorf("run failed: %s", summary.Error)
	}
	return nil
}
