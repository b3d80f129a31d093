// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSource is returned by ParseSource for values outside the
// supported set of lookup services.
var ErrUnknownSource = errors.New("unknown source")

// Source selects which resolver services a batch run.
type Source string

const (
	SourceUnpaywall Source = "unpaywall"
	SourceMirror    Source = "mirror"
)

// ParseSource validates a source selector. "scihub" is accepted as an
// alias for the mirror source.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(SourceUnpaywall):
		return SourceUnpaywall, nil
	case string(SourceMirror), "scihub", "sci-hub":
		return SourceMirror, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
	}
}

// DisplayName is the name written to the report's Source column.
func (s Source) DisplayName() string {
	switch s {
	case SourceUnpaywall:
		return "Unpaywall"
	case SourceMirror:
		return "Mirror"
	default:
		return string(s)
	}
}

// StatusKind categorizes the result of processing one identifier.
type StatusKind string

const (
	StatusDownloaded     StatusKind = "downloaded"
	StatusNoPDFAvailable StatusKind = "no_pdf_available"
	StatusNotOpenAccess  StatusKind = "not_open_access"
	StatusNotFound       StatusKind = "not_found"
	StatusInterrupted    StatusKind = "interrupted"
	StatusError          StatusKind = "error"
)

// Status is a StatusKind plus the message carried by StatusError.
type Status struct {
	Kind   StatusKind `json:"kind" yaml:"kind"`
	Detail string     `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// ErrorStatus builds an error status whose text is "Error: <detail>".
func ErrorStatus(detail string) Status {
	return Status{Kind: StatusError, Detail: "Error: " + detail}
}

// FetchErrorStatus builds an error status for a failed PDF download.
func FetchErrorStatus(detail string) Status {
	return Status{Kind: StatusError, Detail: "Error downloading PDF: " + detail}
}

// String returns the literal text written to the report.
func (s Status) String() string {
	switch s.Kind {
	case StatusDownloaded:
		return "Downloaded"
	case StatusNoPDFAvailable:
		return "Error: no PDF available"
	case StatusNotOpenAccess:
		return "Error: not available as open access"
	case StatusNotFound:
		return "Error: no PDF found"
	case StatusInterrupted:
		return "Interrupted by user"
	case StatusError:
		return s.Detail
	default:
		return string(s.Kind)
	}
}

// Outcome is the per-identifier result of a run.
type Outcome struct {
	Identifier string `json:"identifier" yaml:"identifier"`
	Status     Status `json:"status" yaml:"status"`
	Source     Source `json:"source" yaml:"source"`
}

// OK reports whether the identifier's PDF was downloaded.
func (o Outcome) OK() bool {
	return o.Status.Kind == StatusDownloaded
}
