// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// RunState is the lifecycle state of a batch run.
type RunState string

const (
	RunRunning     RunState = "running"
	RunCompleted   RunState = "completed"
	RunInterrupted RunState = "interrupted"
	RunFailed      RunState = "failed"
)

// RunSummary describes a batch run without its outcome rows.
type RunSummary struct {
	ID              string    `json:"id" yaml:"id"`
	SpreadsheetPath string    `json:"spreadsheet_path" yaml:"spreadsheet_path"`
	Source          Source    `json:"source" yaml:"source"`
	State           RunState  `json:"state" yaml:"state"`
	Total           int       `json:"total" yaml:"total"`
	Processed       int       `json:"processed" yaml:"processed"`
	Downloaded      int       `json:"downloaded" yaml:"downloaded"`
	ReportPath      string    `json:"report_path,omitempty" yaml:"report_path,omitempty"`
	Error           string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt       time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}
