// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/paper-harvester/internal/httputil"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

// mirrorBase is the mirror origin that receives DOI submissions and prefixes
// relative links. Declared as a var so tests can substitute an httptest server.
var mirrorBase = "https://sci-hub.se"

const defaultMirrorTimeout = 20 * time.Second

// Mirror submits DOIs to a mirror site and downloads the PDF embedded in the
// result page.
type Mirror struct {
	client  *http.Client
	fetcher *Fetcher
	ua      string
	timeout time.Duration
	logf    LogFunc
}

// NewMirror builds the mirror resolver. A zero MirrorTimeout falls back to 20s.
func NewMirror(client *http.Client, fetcher *Fetcher, cfg types.HarvestConfig, logf LogFunc) *Mirror {
	timeout := cfg.MirrorTimeout
	if timeout <= 0 {
		timeout = defaultMirrorTimeout
	}
	return &Mirror{
		client:  client,
		fetcher: fetcher,
		ua:      cfg.UserAgent,
		timeout: timeout,
		logf:    logf,
	}
}

// Resolve submits doi to the mirror and downloads the linked PDF to destPath.
func (m *Mirror) Resolve(ctx context.Context, doi, destPath string) types.Outcome {
	out := types.Outcome{Identifier: doi, Source: types.SourceMirror}

	link, err := m.findLink(ctx, doi)
	if err != nil {
		out.Status = types.ErrorStatus(err.Error())
		m.logf.logf("Error looking up DOI %s on the mirror: %v", doi, err)
		return out
	}
	if link == "" {
		out.Status = types.Status{Kind: types.StatusNotFound}
		m.logf.logf("Error: no PDF found for DOI %s", doi)
		return out
	}

	return m.fetcher.Fetch(ctx, link, destPath, doi, types.SourceMirror)
}

func (m *Mirror) findLink(ctx context.Context, doi string) (string, error) {
	form := url.Values{"request": {doi}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, mirrorBase, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating mirror request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if m.ua != "" {
		req.Header.Set("User-Agent", m.ua)
	}

	var link string
	err = httputil.Do(ctx, m.client, req, m.timeout, func(resp *http.Response) error {
		doc, err := goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			return fmt.Errorf("parsing mirror response: %w", err)
		}
		link = pdfLink(doc)
		return nil
	})
	if err != nil {
		return "", err
	}
	if link == "" {
		return "", nil
	}
	return absoluteLink(mirrorBase, link), nil
}

// pdfLink returns the src of the first iframe, or failing that the src of
// the first embedded PDF.
func pdfLink(doc *goquery.Document) string {
	if src, ok := doc.Find("iframe").First().Attr("src"); ok && strings.TrimSpace(src) != "" {
		return strings.TrimSpace(src)
	}
	if src, ok := doc.Find(`embed[type="application/pdf"]`).First().Attr("src"); ok && strings.TrimSpace(src) != "" {
		return strings.TrimSpace(src)
	}
	return ""
}

// absoluteLink completes a scraped link: protocol-relative links get https,
// root-relative links get the mirror origin, and bare host paths get
// "https://".
func absoluteLink(origin, link string) string {
	switch {
	case strings.HasPrefix(link, "//"):
		return "https:" + link
	case strings.HasPrefix(link, "/"):
		return strings.TrimSuffix(origin, "/") + link
	case !strings.HasPrefix(link, "http"):
		return "https://" + link
	default:
		return link
	}
}
