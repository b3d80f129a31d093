// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/paper-harvester/internal/archive"
	"github.com/pdiddy/paper-harvester/internal/batch"
	"github.com/pdiddy/paper-harvester/internal/report"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

type messageResponse struct {
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Healthz reports liveness.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Upload saves the multipart "file" field under the upload directory and
// starts a run against it with the "source" form value.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart payload"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No file uploaded."})
		return
	}
	defer file.Close()

	source := r.FormValue("source")
	if _, err := types.ParseSource(source); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if s.running() {
		writeJSON(w, http.StatusConflict, errorResponse{Error: batch.ErrRunInProgress.Error()})
		return
	}

	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		s.log.WithError(err).Error("saving upload failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to save file"})
		return
	}

	run, err := s.runner.Start(s.runCtx, path, source)
	switch {
	case errors.Is(err, batch.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, types.ErrUnknownSource):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, messageResponse{
		Message: "File uploaded and processing started!",
		RunID:   run.ID,
	})
}

// Stop requests that the active run halt before its next row.
func (s *Server) Stop(w http.ResponseWriter, r *http.Request) {
	s.runner.Stop()
	writeJSON(w, http.StatusOK, messageResponse{Message: "Processing stopped successfully!"})
}

// Download rebuilds the archive of the output directory and streams it.
func (s *Server) Download(w http.ResponseWriter, r *http.Request) {
	path, err := archive.Build(s.harvest.OutputDir)
	if err != nil {
		s.log.WithError(err).Error("building archive failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to build archive"})
		return
	}

	if s.publisher != nil {
		if loc, err := s.publisher.Publish(r.Context(), path); err != nil {
			s.log.WithError(err).Warn("publishing archive failed")
		} else {
			s.log.WithField("location", loc).Info("archive published")
		}
	}

	serveAttachment(w, r, path, archive.FileName)
}

// Report streams the most recent download report.
func (s *Server) Report(w http.ResponseWriter, r *http.Request) {
	path := report.Path(s.harvest.OutputDir)
	if _, err := os.Stat(path); err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no report available"})
		return
	}
	serveAttachment(w, r, path, report.FileName)
}

// Status returns the active run's summary, or the most recent run's.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	run := s.runner.Current()
	if run == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no runs yet"})
		return
	}
	writeJSON(w, http.StatusOK, run.Summary())
}

// Runs lists recent runs from history, headed by the active run while it
// is still in progress. Without history it lists only the current run.
func (s *Server) Runs(w http.ResponseWriter, r *http.Request) {
	runs := []types.RunSummary{}
	current := s.runner.Current()
	if s.history == nil {
		if current != nil {
			runs = append(runs, current.Summary())
		}
		writeJSON(w, http.StatusOK, runs)
		return
	}

	listed, err := s.history.ListRuns(r.Context(), defaultRunsLimit)
	if err != nil {
		s.log.WithError(err).Error("listing runs failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list runs"})
		return
	}

	if current != nil {
		if active := current.Summary(); active.State == types.RunRunning {
			runs = append(runs, active)
			for _, run := range listed {
				if run.ID != active.ID {
					runs = append(runs, run)
				}
			}
			writeJSON(w, http.StatusOK, runs)
			return
		}
	}
	writeJSON(w, http.StatusOK, append(runs, listed...))
}

func (s *Server) running() bool {
	run := s.runner.Current()
	return run != nil && run.Summary().State == types.RunRunning
}

func (s *Server) saveUpload(src io.Reader, filename string) (string, error) {
	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(filename, `\`, "/")))
	if name == "/" || name == "." {
		return "", fmt.Errorf("invalid file name %q", filename)
	}
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}

	path := filepath.Join(s.cfg.UploadDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", path, err)
	}
	return path, nil
}

func serveAttachment(w http.ResponseWriter, r *http.Request, path, name string) {
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
