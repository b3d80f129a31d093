package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-harvester/internal/batch"
	"github.com/pdiddy/paper-harvester/internal/server"
)

const (
	shutdownTimeout = 10 * time.Second
	drainTimeout    = 60 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	Long: `Serve exposes the harvester over HTTP: upload a spreadsheet to start a run,
stop it, follow its events, and download the report or the article archive.
On SIGINT or SIGTERM the active run is stopped before its next row and the
server shuts down once the run has written its report.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	serveCmd.Flags().String("upload-dir", "", "directory for uploaded spreadsheets (default uploads)")
	bindFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	bindFlag("server.upload_dir", serveCmd.Flags().Lookup("upload-dir"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	for _, dir := range []string{cfg.Harvest.OutputDir, cfg.Server.UploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Runs outlive the signal so a stopped run can still write its report.
	runCtx, cancelRuns := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRuns()

	events := batch.NewBroadcaster(0)
	h := newHarvester(runCtx, cfg, events)
	defer h.Close()

	opts := []server.Option{
		server.WithLogger(logrus.StandardLogger()),
		server.WithRunContext(runCtx),
	}
	if h.history != nil {
		opts = append(opts, server.WithHistory(h.history))
	}
	if h.publisher != nil {
		opts = append(opts, server.WithPublisher(h.publisher))
	}
	srv := server.New(cfg, h.runner, events, opts...)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end when the signal arrives.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", cfg.Server.Addr).Info("listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Info("shutting down")
	h.runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("http shutdown")
	}

	if run := h.runner.Current(); run != nil {
		select {
		case <-run.Done():
		case <-time.After(drainTimeout):
			logrus.WithField("run_id", run.ID).Warn("run did not stop in time; aborting")
			cancelRuns()
			<-run.Done()
		}
	}
	return nil
}
