// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pdiddy/paper-harvester/internal/httputil"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

// unpaywallAPIBase is the Unpaywall v2 works endpoint. Declared as a var so
// tests can substitute an httptest server.
var unpaywallAPIBase = "https://api.unpaywall.org/v2/"

const defaultLookupTimeout = 30 * time.Second

// unpaywallResponse captures the fields we need from an Unpaywall record.
type unpaywallResponse struct {
	IsOA           bool               `json:"is_oa"`
	BestOALocation *unpaywallLocation `json:"best_oa_location"`
}

type unpaywallLocation struct {
	URLForPDF string `json:"url_for_pdf"`
	URL       string `json:"url"`
}

// Unpaywall resolves DOIs through the Unpaywall API and downloads the best
// open-access PDF.
type Unpaywall struct {
	client  *http.Client
	fetcher *Fetcher
	email   string
	ua      string
	timeout time.Duration
	logf    LogFunc
}

// NewUnpaywall builds the Unpaywall resolver. A zero LookupTimeout falls
// back to 30s.
func NewUnpaywall(client *http.Client, fetcher *Fetcher, cfg types.HarvestConfig, logf LogFunc) *Unpaywall {
	timeout := cfg.LookupTimeout
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return &Unpaywall{
		client:  client,
		fetcher: fetcher,
		email:   cfg.ContactEmail,
		ua:      cfg.UserAgent,
		timeout: timeout,
		logf:    logf,
	}
}

// Resolve looks up doi and downloads its open-access PDF to destPath.
func (u *Unpaywall) Resolve(ctx context.Context, doi, destPath string) types.Outcome {
	out := types.Outcome{Identifier: doi, Source: types.SourceUnpaywall}

	rec, err := u.lookup(ctx, doi)
	if err != nil {
		out.Status = types.ErrorStatus(err.Error())
		u.logf.logf("Error looking up DOI %s: %v", doi, err)
		return out
	}

	if !rec.IsOA {
		out.Status = types.Status{Kind: types.StatusNotOpenAccess}
		u.logf.logf("Error: article not available as open access for DOI %s", doi)
		return out
	}
	if rec.BestOALocation == nil || rec.BestOALocation.URLForPDF == "" {
		out.Status = types.Status{Kind: types.StatusNoPDFAvailable}
		u.logf.logf("Error: no PDF available for DOI %s", doi)
		return out
	}

	return u.fetcher.Fetch(ctx, rec.BestOALocation.URLForPDF, destPath, doi, types.SourceUnpaywall)
}

func (u *Unpaywall) lookup(ctx context.Context, doi string) (*unpaywallResponse, error) {
	// DOIs may carry '?', '#' or '%', so the identifier is path-escaped.
	apiURL := unpaywallAPIBase + (&url.URL{Path: strings.TrimSpace(doi)}).EscapedPath()
	if u.email != "" {
		apiURL += "?" + url.Values{"email": {u.email}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating Unpaywall request: %w", err)
	}
	if u.ua != "" {
		req.Header.Set("User-Agent", u.ua)
	}
	req.Header.Set("Accept", "application/json")

	var rec unpaywallResponse
	err = httputil.Do(ctx, u.client, req, u.timeout, func(resp *http.Response) error {
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return fmt.Errorf("parsing Unpaywall response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
