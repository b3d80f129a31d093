// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package batch runs a spreadsheet of DOIs through a resolver one row at a
// time, reporting progress as events and writing the download report when
// the pass ends.
package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pdiddy/paper-harvester/internal/acquire"
	"github.com/pdiddy/paper-harvester/internal/httputil"
	"github.com/pdiddy/paper-harvester/internal/report"
	"github.com/pdiddy/paper-harvester/internal/sheet"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, summary types.RunSummary, outcomes []types.Outcome) error
}

// Publisher copies a finished artifact to remote storage and returns its
// remote location.
type Publisher interface {
	Publish(ctx context.Context, path string) (string, error)
}

// ResolverFactory builds the resolver for a run's source.
type ResolverFactory func(source types.Source, logf acquire.LogFunc) (acquire.Resolver, error)

// Runner executes batch runs. At most one run is active at a time.
type Runner struct {
	cfg         types.HarvestConfig
	events      Emitter
	stop        *StopFlag
	newResolver ResolverFactory
	recorder    Recorder
	publisher   Publisher
	log         logrus.FieldLogger

	mu     sync.Mutex
	active *Run
	last   *Run
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder stores every finished run.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithPublisher uploads each generated report.
func WithPublisher(p Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithLogger sets the process logger that mirrors run events.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Runner) { r.log = log }
}

// WithResolverFactory replaces the default acquire resolvers.
func WithResolverFactory(f ResolverFactory) Option {
	return func(r *Runner) { r.newResolver = f }
}

// NewRunner returns a Runner that sends events to events and polls stop
// between rows. client is used by the default resolvers.
func NewRunner(cfg types.HarvestConfig, client *http.Client, events Emitter, stop *StopFlag, opts ...Option) *Runner {
	if events == nil {
		events = EmitterFunc(func(Event) {})
	}
	if stop == nil {
		stop = &StopFlag{}
	}
	r := &Runner{
		cfg:    cfg,
		events: events,
		stop:   stop,
		log:    logrus.StandardLogger(),
	}
	r.newResolver = func(source types.Source, logf acquire.LogFunc) (acquire.Resolver, error) {
		return acquire.New(source, client, cfg, logf)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stop requests that the active run halt before its next row.
func (r *Runner) Stop() {
	r.stop.Set()
}

// Current returns the active run, or the most recent one if none is active.
// It returns nil before the first run.
func (r *Runner) Current() *Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return r.active
	}
	return r.last
}

// Prepare validates source, claims the active-run slot, and clears the stop
// flag. The returned run must be passed to Execute.
func (r *Runner) Prepare(spreadsheetPath, source string) (*Run, error) {
	src, err := types.ParseSource(source)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil, ErrRunInProgress
	}

	run := newRun(uuid.NewString(), spreadsheetPath, src)
	r.active = run
	r.stop.Clear()
	return run, nil
}

// Start prepares a run and executes it on a new goroutine, returning as soon
// as the worker is launched.
func (r *Runner) Start(ctx context.Context, spreadsheetPath, source string) (*Run, error) {
	run, err := r.Prepare(spreadsheetPath, source)
	if err != nil {
		return nil, err
	}
	go r.Execute(ctx, run)
	return run, nil
}

// Execute processes run synchronously. Every row produces one outcome; the
// loop halts early only for a stop request, a cancelled ctx, or an
// unexpected failure. The report is generated once when the loop ends
// normally or by stop request.
func (r *Runner) Execute(ctx context.Context, run *Run) {
	defer r.release(run)
	defer func() {
		if p := recover(); p != nil {
			r.fail(ctx, run, fmt.Sprintf("Unexpected error: %v", p))
		}
	}()

	log := r.log.WithField("run_id", run.ID)
	log.WithFields(logrus.Fields{"file": run.SpreadsheetPath, "source": run.Source}).Info("run started")

	ids, err := sheet.LoadIdentifiers(run.SpreadsheetPath, r.cfg.IdentifierColumn)
	if err != nil {
		if errors.Is(err, sheet.ErrMissingColumn) {
			r.fail(ctx, run, fmt.Sprintf("Error: column %q not found in the file.", r.column()))
		} else {
			r.fail(ctx, run, fmt.Sprintf("Error reading the file: %v", err))
		}
		return
	}

	resolver, err := r.newResolver(run.Source, func(format string, args ...any) {
		r.logEvent(run, fmt.Sprintf(format, args...))
	})
	if err != nil {
		r.fail(ctx, run, fmt.Sprintf("Error: %v", err))
		return
	}

	pacer := httputil.NewPacer(r.cfg.RowDelay)
	total := len(ids)
	run.setTotal(total)
	state := types.RunCompleted

	for i, id := range ids {
		if r.stop.IsSet() {
			run.append(types.Outcome{
				Identifier: id,
				Status:     types.Status{Kind: types.StatusInterrupted},
				Source:     run.Source,
			})
			r.logEvent(run, fmt.Sprintf("Processing interrupted at DOI: %s", id))
			state = types.RunInterrupted
			break
		}
		if err := ctx.Err(); err != nil {
			r.fail(ctx, run, fmt.Sprintf("Run aborted: %v", err))
			return
		}
		if err := pacer.Wait(ctx); err != nil {
			r.fail(ctx, run, fmt.Sprintf("Run aborted: %v", err))
			return
		}

		dest := acquire.OutputPath(r.cfg.OutputDir, id)
		r.logEvent(run, fmt.Sprintf("Processing DOI %d/%d: %s", i+1, total, id))
		run.append(resolver.Resolve(ctx, id, dest))
		r.progressEvent(run, i+1, total)
	}

	reportPath, err := report.Generate(r.cfg.OutputDir, run.Outcomes())
	if err != nil {
		r.fail(ctx, run, fmt.Sprintf("Error generating report: %v", err))
		return
	}
	r.logEvent(run, fmt.Sprintf("Download report saved to: %s", reportPath))

	run.finish(state, reportPath, "")
	summary := run.Summary()
	log.WithFields(logrus.Fields{
		"state":      summary.State,
		"processed":  summary.Processed,
		"downloaded": summary.Downloaded,
		"total":      summary.Total,
	}).Info("run finished")

	r.record(ctx, run)
	if r.publisher != nil {
		if loc, err := r.publisher.Publish(ctx, reportPath); err != nil {
			log.WithError(err).Warn("publishing report failed")
		} else {
			log.WithField("location", loc).Info("report published")
		}
	}
}

// fail ends run without a report.
func (r *Runner) fail(ctx context.Context, run *Run, msg string) {
	r.log.WithField("run_id", run.ID).Error(msg)
	select {
	case <-run.done:
		return
	default:
	}
	r.logEvent(run, msg)
	run.finish(types.RunFailed, "", msg)
	r.record(ctx, run)
}

func (r *Runner) record(ctx context.Context, run *Run) {
	if r.recorder == nil {
		return
	}
	// The run's own ctx may already be cancelled when a run is aborted.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.recorder.RecordRun(recCtx, run.Summary(), run.Outcomes()); err != nil {
		r.log.WithField("run_id", run.ID).WithError(err).Warn("recording run history failed")
	}
}

func (r *Runner) release(run *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == run {
		r.active = nil
		r.last = run
	}
}

func (r *Runner) column() string {
	if r.cfg.IdentifierColumn != "" {
		return r.cfg.IdentifierColumn
	}
	return sheet.DefaultColumn
}

func (r *Runner) logEvent(run *Run, msg string) {
	r.log.WithField("run_id", run.ID).Debug(msg)
	r.events.Emit(Event{RunID: run.ID, Kind: EventLog, Message: msg, Time: time.Now().UTC()})
}

func (r *Runner) progressEvent(run *Run, current, total int) {
	r.events.Emit(Event{RunID: run.ID, Kind: EventProgress, Current: current, Total: total, Time: time.Now().UTC()})
}
