// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire resolves DOIs to PDF links through a lookup service and
// downloads the PDFs. Every resolution produces exactly one types.Outcome;
// per-identifier failures are recorded in the outcome, never returned as
// errors.
package acquire

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

// LogFunc receives human-readable progress lines.
type LogFunc func(format string, args ...any)

func (f LogFunc) logf(format string, args ...any) {
	if f != nil {
		f(format, args...)
	}
}

// Resolver turns an identifier into a downloaded PDF at destPath or a
// terminal status.
type Resolver interface {
	Resolve(ctx context.Context, identifier, destPath string) types.Outcome
}

// New returns the resolver for source. A nil client uses http.DefaultClient.
func New(source types.Source, client *http.Client, cfg types.HarvestConfig, logf LogFunc) (Resolver, error) {
	if client == nil {
		client = http.DefaultClient
	}
	fetcher := NewFetcher(client, cfg, logf)
	switch source {
	case types.SourceUnpaywall:
		return NewUnpaywall(client, fetcher, cfg, logf), nil
	case types.SourceMirror:
		return NewMirror(client, fetcher, cfg, logf), nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownSource, source)
	}
}

// Filename derives the output file name for an identifier by replacing
// path separators: "10.1000/xyz123" becomes "10.1000_xyz123.pdf".
func Filename(identifier string) string {
	return strings.ReplaceAll(identifier, "/", "_") + ".pdf"
}

// OutputPath joins the sanitized file name onto dir.
func OutputPath(dir, identifier string) string {
	return filepath.Join(dir, Filename(identifier))
}
