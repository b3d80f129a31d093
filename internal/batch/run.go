// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"sync"
	"time"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

// Run is the state of one pass over an identifier list. The worker owns the
// outcome sequence; readers on other goroutines use Summary and Outcomes,
// which return copies.
type Run struct {
	ID              string
	SpreadsheetPath string
	Source          types.Source
	StartedAt       time.Time

	mu         sync.Mutex
	state      types.RunState
	total      int
	outcomes   []types.Outcome
	reportPath string
	errMsg     string
	finishedAt time.Time
	done       chan struct{}
}

func newRun(id, path string, source types.Source) *Run {
	return &Run{
		ID:              id,
		SpreadsheetPath: path,
		Source:          source,
		StartedAt:       time.Now().UTC(),
		state:           types.RunRunning,
		done:            make(chan struct{}),
	}
}

// Done is closed when the run has finished, successfully or not.
func (r *Run) Done() <-chan struct{} { return r.done }

// Outcomes returns a copy of the outcomes recorded so far.
func (r *Run) Outcomes() []types.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Summary returns a snapshot of the run's progress.
func (r *Run) Summary() types.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	downloaded := 0
	for _, o := range r.outcomes {
		if o.OK() {
			downloaded++
		}
	}
	return types.RunSummary{
		ID:              r.ID,
		SpreadsheetPath: r.SpreadsheetPath,
		Source:          r.Source,
		State:           r.state,
		Total:           r.total,
		Processed:       len(r.outcomes),
		Downloaded:      downloaded,
		ReportPath:      r.reportPath,
		Error:           r.errMsg,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.finishedAt,
	}
}

func (r *Run) setTotal(n int) {
	r.mu.Lock()
	r.total = n
	r.mu.Unlock()
}

func (r *Run) append(o types.Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

func (r *Run) finish(state types.RunState, reportPath, errMsg string) {
	r.mu.Lock()
	r.state = state
	r.reportPath = reportPath
	r.errMsg = errMsg
	r.finishedAt = time.Now().UTC()
	r.mu.Unlock()
	close(r.done)
}
