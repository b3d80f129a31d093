// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server_test

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/pdiddy/paper-harvester/internal/acquire"
	"github.com/pdiddy/paper-harvester/internal/batch"
	"github.com/pdiddy/paper-harvester/internal/server"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

const fakePDF = "%PDF-1.4\n%%EOF\n"

type fakeResolver struct {
	source types.Source
	gate   func() chan struct{}
}

func (f fakeResolver) Resolve(_ context.Context, id, dest string) types.Outcome {
	if g := f.gate(); g != nil {
		<-g
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return types.Outcome{Identifier: id, Status: types.FetchErrorStatus(err.Error()), Source: f.source}
	}
	if err := os.WriteFile(dest, []byte(fakePDF), 0o644); err != nil {
		return types.Outcome{Identifier: id, Status: types.FetchErrorStatus(err.Error()), Source: f.source}
	}
	return types.Outcome{Identifier: id, Status: types.Status{Kind: types.StatusDownloaded}, Source: f.source}
}

type fakeLister struct {
	runs []types.RunSummary
}

func (f fakeLister) ListRuns(context.Context, int) ([]types.RunSummary, error) {
	return f.runs, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func upload(baseURL, filename, content, source string, withFile bool) (*http.Response, map[string]string) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if withFile {
		fw, err := mw.CreateFormFile("file", filename)
		Expect(err).ToNot(HaveOccurred())
		_, err = io.WriteString(fw, content)
		Expect(err).ToNot(HaveOccurred())
	}
	Expect(mw.WriteField("source", source)).To(Succeed())
	Expect(mw.Close()).To(Succeed())

	resp, err := http.Post(baseURL+"/upload", mw.FormDataContentType(), &body)
	Expect(err).ToNot(HaveOccurred())
	defer resp.Body.Close()

	decoded := map[string]string{}
	Expect(json.NewDecoder(resp.Body).Decode(&decoded)).To(Succeed())
	return resp, decoded
}

var _ = Describe("HTTP service", func() {
	var (
		cfg     types.Config
		events  *batch.Broadcaster
		runner  *batch.Runner
		gate    chan struct{}
		opts    []server.Option
		baseURL string
	)

	start := func() {
		srv := server.New(cfg, runner, events, append([]server.Option{server.WithLogger(quietLogger())}, opts...)...)
		ts := httptest.NewServer(srv.Router())
		DeferCleanup(ts.Close)
		baseURL = ts.URL
	}

	waitForRun := func() types.RunSummary {
		run := runner.Current()
		Expect(run).ToNot(BeNil())
		Eventually(run.Done()).Should(BeClosed())
		return run.Summary()
	}

	BeforeEach(func() {
		root := GinkgoT().TempDir()
		cfg = types.Config{
			Harvest: types.HarvestConfig{OutputDir: filepath.Join(root, "downloads")},
			Server:  types.ServerConfig{UploadDir: filepath.Join(root, "uploads")},
		}
		gate = nil
		opts = nil
		events = batch.NewBroadcaster(0)
		factory := func(source types.Source, _ acquire.LogFunc) (acquire.Resolver, error) {
			return fakeResolver{source: source, gate: func() chan struct{} { return gate }}, nil
		}
		runner = batch.NewRunner(cfg.Harvest, nil, events, nil,
			batch.WithResolverFactory(factory),
			batch.WithLogger(quietLogger()),
		)
	})

	AfterEach(func() {
		if run := runner.Current(); run != nil {
			Eventually(run.Done()).Should(BeClosed())
		}
	})

	Describe("GET /healthz", func() {
		It("reports ok", func() {
			start()
			resp, err := http.Get(baseURL + "/healthz")
			Expect(err).ToNot(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("GET /", func() {
		It("serves the upload page", func() {
			start()
			resp, err := http.Get(baseURL + "/")
			Expect(err).ToNot(HaveOccurred())
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring("Paper Harvester"))
			Expect(string(body)).To(ContainSubstring(`value="mirror"`))
		})
	})

	Describe("POST /upload", func() {
		It("rejects a request without a file", func() {
			start()
			resp, body := upload(baseURL, "", "", "unpaywall", false)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["error"]).To(Equal("No file uploaded."))
			Expect(runner.Current()).To(BeNil())
		})

		It("rejects an unknown source without starting a run", func() {
			start()
			resp, body := upload(baseURL, "dois.csv", "DOI\n10.1000/a\n", "library", true)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["error"]).To(ContainSubstring("unknown source"))
			Expect(runner.Current()).To(BeNil())
		})

		It("saves the file and starts a run", func() {
			start()
			resp, body := upload(baseURL, "dois.csv", "DOI\n10.1000/a\n10.1000/b\n", "unpaywall", true)
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
			Expect(body["message"]).To(Equal("File uploaded and processing started!"))
			Expect(body["run_id"]).ToNot(BeEmpty())

			Expect(filepath.Join(cfg.Server.UploadDir, "dois.csv")).To(BeARegularFile())

			summary := waitForRun()
			Expect(summary.ID).To(Equal(body["run_id"]))
			Expect(summary.State).To(Equal(types.RunCompleted))
			Expect(summary.Downloaded).To(Equal(2))
			Expect(filepath.Join(cfg.Harvest.OutputDir, "10.1000_a.pdf")).To(BeARegularFile())
		})

		It("keeps uploaded names inside the upload directory", func() {
			start()
			resp, _ := upload(baseURL, "../../escape.csv", "DOI\n10.1000/a\n", "mirror", true)
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
			Expect(filepath.Join(cfg.Server.UploadDir, "escape.csv")).To(BeARegularFile())
			waitForRun()
		})

		It("returns 409 while a run is active", func() {
			gate = make(chan struct{})
			start()
			resp, _ := upload(baseURL, "dois.csv", "DOI\n10.1000/a\n", "unpaywall", true)
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

			resp, body := upload(baseURL, "other.csv", "DOI\n10.1000/b\n", "unpaywall", true)
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			Expect(body["error"]).To(Equal(batch.ErrRunInProgress.Error()))

			close(gate)
			waitForRun()
		})
	})

	Describe("POST /stop", func() {
		It("interrupts the active run before its next row", func() {
			gate = make(chan struct{})
			start()
			resp, _ := upload(baseURL, "dois.csv", "DOI\n10.1000/a\n10.1000/b\n10.1000/c\n", "unpaywall", true)
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

			stopResp, err := http.Post(baseURL+"/stop", "application/json", nil)
			Expect(err).ToNot(HaveOccurred())
			defer stopResp.Body.Close()
			Expect(stopResp.StatusCode).To(Equal(http.StatusOK))

			close(gate)
			summary := waitForRun()
			Expect(summary.State).To(Equal(types.RunInterrupted))
			Expect(summary.Processed).To(Equal(2))

			outcomes := runner.Current().Outcomes()
			Expect(outcomes[1].Status.String()).To(Equal("Interrupted by user"))
		})
	})

	Describe("GET /report", func() {
		It("returns 404 before any report exists", func() {
			start()
			resp, err := http.Get(baseURL + "/report")
			Expect(err).ToNot(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("streams the report after a run", func() {
			start()
			upload(baseURL, "dois.csv", "DOI\n10.1000/a\n", "unpaywall", true)
			waitForRun()

			resp, err := http.Get(baseURL + "/report")
			Expect(err).ToNot(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("download_report.xlsx"))
		})
	})

	Describe("GET /download", func() {
		It("archives every downloaded file and the report", func() {
			start()
			upload(baseURL, "dois.csv", "DOI\n10.1000/a\n10.1000/b\n", "unpaywall", true)
			waitForRun()

			resp, err := http.Get(baseURL + "/download")
			Expect(err).ToNot(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("articles.zip"))

			data, err := io.ReadAll(resp.Body)
			Expect(err).ToNot(HaveOccurred())
			zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
			Expect(err).ToNot(HaveOccurred())

			var names []string
			for _, f := range zr.File {
				names = append(names, f.Name)
			}
			Expect(names).To(ConsistOf("10.1000_a.pdf", "10.1000_b.pdf", "download_report.xlsx"))
		})
	})

	Describe("GET /status", func() {
		It("returns 404 before the first run", func() {
			start()
			resp, err := http.Get(baseURL + "/status")
			Expect(err).ToNot(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("describes the last run", func() {
			start()
			_, body := upload(baseURL, "dois.csv", "DOI\n10.1000/a\n", "mirror", true)
			waitForRun()

			resp, err := http.Get(baseURL + "/status")
			Expect(err).ToNot(HaveOccurred())
			defer resp.Body.Close()

			var summary types.RunSummary
			Expect(json.NewDecoder(resp.Body).Decode(&summary)).To(Succeed())
			Expect(summary.ID).To(Equal(body["run_id"]))
			Expect(summary.Source).To(Equal(types.SourceMirror))
			Expect(summary.State).To(Equal(types.RunCompleted))
		})
	})

	Describe("GET /runs", func() {
		It("lists runs from history", func() {
			opts = []server.Option{server.WithHistory(fakeLister{runs: []types.RunSummary{{ID: "r2"}, {ID: "r1"}}})}
			start()

			resp, err := http.Get(baseURL + "/runs")
			Expect(err).ToNot(HaveOccurred())
			defer resp.Body.Close()

			var runs []types.RunSummary
			Expect(json.NewDecoder(resp.Body).Decode(&runs)).To(Succeed())
			Expect(runs).To(HaveLen(2))
			Expect(runs[0].ID).To(Equal("r2"))
		})

		It("puts the active run ahead of recorded runs", func() {
			opts = []server.Option{server.WithHistory(fakeLister{runs: []types.RunSummary{{ID: "r1", State: types.RunCompleted}}})}
			start()
			gate = make(chan struct{})
			_, body := upload(baseURL, "dois.csv", "DOI\n10.1000/a\n", "mirror", true)

			resp, err := http.Get(baseURL + "/runs")
			Expect(err).ToNot(HaveOccurred())
			var runs []types.RunSummary
			Expect(json.NewDecoder(resp.Body).Decode(&runs)).To(Succeed())
			resp.Body.Close()

			close(gate)
			waitForRun()

			Expect(runs).To(HaveLen(2))
			Expect(runs[0].ID).To(Equal(body["run_id"]))
			Expect(runs[0].State).To(Equal(types.RunRunning))
			Expect(runs[1].ID).To(Equal("r1"))
		})

		It("leaves a finished run to history", func() {
			opts = []server.Option{server.WithHistory(fakeLister{runs: []types.RunSummary{{ID: "r1", State: types.RunCompleted}}})}
			start()
			upload(baseURL, "dois.csv", "DOI\n10.1000/a\n", "mirror", true)
			waitForRun()

			resp, err := http.Get(baseURL + "/runs")
			Expect(err).ToNot(HaveOccurred())
			defer resp.Body.Close()
			var runs []types.RunSummary
			Expect(json.NewDecoder(resp.Body).Decode(&runs)).To(Succeed())
			Expect(runs).To(HaveLen(1))
			Expect(runs[0].ID).To(Equal("r1"))
		})

		It("falls back to the current run without history", func() {
			start()
			resp, err := http.Get(baseURL + "/runs")
			Expect(err).ToNot(HaveOccurred())
			var runs []types.RunSummary
			Expect(json.NewDecoder(resp.Body).Decode(&runs)).To(Succeed())
			resp.Body.Close()
			Expect(runs).To(BeEmpty())

			upload(baseURL, "dois.csv", "DOI\n10.1000/a\n", "mirror", true)
			waitForRun()

			resp, err = http.Get(baseURL + "/runs")
			Expect(err).ToNot(HaveOccurred())
			defer resp.Body.Close()
			Expect(json.NewDecoder(resp.Body).Decode(&runs)).To(Succeed())
			Expect(runs).To(HaveLen(1))
		})
	})

	Describe("GET /events", func() {
		It("streams log and progress events for a run", func() {
			start()
			resp, err := http.Get(baseURL + "/events")
			Expect(err).ToNot(HaveOccurred())
			DeferCleanup(resp.Body.Close)
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
			Eventually(events.Subscribers).Should(Equal(1))

			upload(baseURL, "dois.csv", "DOI\n10.1000/a\n", "unpaywall", true)

			var lines []string
			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				lines = append(lines, scanner.Text())
				if strings.HasPrefix(scanner.Text(), "data:") && strings.Contains(scanner.Text(), "Download report saved to") {
					break
				}
			}
			stream := strings.Join(lines, "\n")
			Expect(stream).To(ContainSubstring("event: log\ndata: "))
			Expect(stream).To(ContainSubstring("Processing DOI 1/1: 10.1000/a"))
			Expect(stream).To(ContainSubstring("event: progress\ndata: "))
			Expect(stream).To(ContainSubstring(`"current":1,"total":1`))

			waitForRun()
		})
	})
})
