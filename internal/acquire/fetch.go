// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/pdiddy/paper-harvester/internal/httputil"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

const defaultFetchTimeout = 30 * time.Second

var disablePDFConfigDir sync.Once

// Fetcher downloads a PDF URL to a local path.
type Fetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	verify    bool
	logf      LogFunc
}

// NewFetcher builds a Fetcher from cfg. A zero FetchTimeout falls back to 30s.
func NewFetcher(client *http.Client, cfg types.HarvestConfig, logf LogFunc) *Fetcher {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{
		client:    client,
		userAgent: cfg.UserAgent,
		timeout:   timeout,
		verify:    cfg.VerifyPDF,
		logf:      logf,
	}
}

// Fetch downloads url to destPath, overwriting any existing file, and
// reports the result as an outcome for identifier under source.
func (f *Fetcher) Fetch(ctx context.Context, url, destPath, identifier string, source types.Source) types.Outcome {
	out := types.Outcome{Identifier: identifier, Source: source}

	if err := f.download(ctx, url, destPath); err != nil {
		out.Status = types.FetchErrorStatus(err.Error())
		f.logf.logf("Error downloading PDF for DOI %s: %v", identifier, err)
		return out
	}

	out.Status = types.Status{Kind: types.StatusDownloaded}
	f.logf.logf("PDF downloaded successfully: DOI %s", identifier)

	if f.verify {
		if err := validatePDF(destPath); err != nil {
			f.logf.logf("Warning: %s does not look like a valid PDF: %v", filepath.Base(destPath), err)
		}
	}
	return out
}

// download fetches url into destPath via a temporary file in the same
// directory, renamed into place once the body has been read in full.
func (f *Fetcher) download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "application/pdf")

	return httputil.Do(ctx, f.client, req, f.timeout, func(resp *http.Response) error {
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}

		tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".fetch-*.tmp")
		if err != nil {
			return fmt.Errorf("creating temp file: %w", err)
		}
		tmpPath := tmpFile.Name()

		_, copyErr := io.Copy(tmpFile, resp.Body)
		closeErr := tmpFile.Close()
		if copyErr != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("writing download: %w", copyErr)
		}
		if closeErr != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("closing temp file: %w", closeErr)
		}
		if err := os.Chmod(tmpPath, 0o644); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("setting file mode: %w", err)
		}

		if err := os.Rename(tmpPath, destPath); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("renaming temp file: %w", err)
		}
		return nil
	})
}

func validatePDF(path string) error {
	disablePDFConfigDir.Do(pdfapi.DisableConfigDir)
	return pdfapi.ValidateFile(path, nil)
}
