package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-coordinator/internal/coordinator"
)

type seedRequest struct {
	RunID    string   `json:"runId"`
	URLs     []string `json:"urls"`
	Depth    int      `json:"depth"`
	Priority int      `json:"priority"`
}

type configureRequest struct {
	RunID  string                  `json:"runId"`
	Name   string                  `json:"name"`
	Config coordinator.ConfigPatch `json:"config"`
}

type runRequest struct {
	RunID string `json:"runId"`
}

type workRequest struct {
	RunID     string `json:"runId"`
	BatchSize int    `json:"batchSize"`
	WorkerID  string `json:"workerId"`
}

// reportRequest is the worker's result payload. Content, when present, is
// written to the blob store before the report is applied.
type reportRequest struct {
	RunID   string `json:"runId"`
	Content string `json:"content,omitempty"`
	coordinator.ResultReport
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeErrorCode(w, coordinator.CodeInvalidRequest, "invalid JSON body")
		return false
	}
	return true
}

func orDefaultRun(runID string) string {
	if runID == "" {
		return DefaultRunID
	}
	return runID
}

func queryRunID(r *http.Request) string {
	return orDefaultRun(r.URL.Query().Get("run_id"))
}

func (s *Server) seed(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.coord.Seed(r.Context(), orDefaultRun(req.RunID), req.URLs, req.Depth, req.Priority)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) configure(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if !s.decode(w, r, &req) {
		return
	}
	ref, err := s.coord.Configure(r.Context(), orDefaultRun(req.RunID), req.Config, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"configId": ref.ID})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.coord.Start)
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.coord.Pause)
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.coord.Resume)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.coord.Cancel)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.coord.Reset)
}

func (s *Server) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, runID string) (coordinator.RunState, error)) {
	var req runRequest
	if !s.decode(w, r, &req) {
		return
	}
	run, err := op(r.Context(), orDefaultRun(req.RunID))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": string(run.Status)})
}

func (s *Server) requestWork(w http.ResponseWriter, r *http.Request) {
	var req workRequest
	if !s.decode(w, r, &req) {
		return
	}
	batch, err := s.coord.RequestWork(r.Context(), orDefaultRun(req.RunID), req.BatchSize, req.WorkerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, batch)
}

func (s *Server) reportResult(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if !s.decode(w, r, &req) {
		return
	}
	runID := orDefaultRun(req.RunID)

	if req.Content != "" {
		if req.ContentHash == "" {
			hash, err := s.hasher.Hash([]byte(req.Content))
			if err != nil {
				s.writeError(w, fmt.Errorf("hash content: %w", err))
				return
			}
			req.ContentHash = hash
		}
		if err := s.storeContent(r, runID, req); err != nil {
			s.writeError(w, err)
			return
		}
	}

	if err := s.coord.ReportResult(r.Context(), runID, req.ResultReport); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// storeContent writes the reported page body to the blob store before the
// report is applied. A failed write rejects the whole report so the worker
// retries with content intact.
func (s *Server) storeContent(r *http.Request, runID string, req reportRequest) error {
	if s.blobs == nil {
		return nil
	}
	cfg, _, err := s.coord.Config(r.Context(), runID)
	if err != nil {
		return err
	}
	if !cfg.ContentFilter.StoreContent {
		return nil
	}
	key := contentKey(runID, req.URL, req.ContentHash)
	metadata := map[string]string{"url": req.URL, "runId": runID}
	if err := s.blobs.Put(r.Context(), key, []byte(req.Content), "text/html; charset=utf-8", metadata); err != nil {
		return fmt.Errorf("store content: %w", err)
	}
	return nil
}

// contentKey builds the blob key {runId}/{hostname}/{hash16}.html.
func contentKey(runID, rawURL, contentHash string) string {
	domain := coordinator.DomainOf(rawURL)
	if domain == "" {
		domain = "unknown"
	}
	hash := contentHash
	if len(hash) > 16 {
		hash = hash[:16]
	}
	return fmt.Sprintf("%s/%s/%s.html", runID, domain, hash)
}

func (s *Server) onCron(w http.ResponseWriter, r *http.Request) {
	runIDs := s.coord.RunIDs()
	hasDefault := false
	for _, id := range runIDs {
		if id == DefaultRunID {
			hasDefault = true
			break
		}
	}
	if !hasDefault {
		runIDs = append(runIDs, DefaultRunID)
	}

	reports := make([]coordinator.MaintenanceReport, 0, len(runIDs))
	for _, runID := range runIDs {
		report, err := s.coord.Maintain(r.Context(), runID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		reports = append(reports, report)
	}

	view, err := s.coord.Status(r.Context(), DefaultRunID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"queueSize": view.QueueSize,
		"runs":      reports,
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	view, err := s.coord.Stats(r.Context(), queryRunID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	view, err := s.coord.Status(r.Context(), queryRunID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) errors(w http.ResponseWriter, r *http.Request) {
	errs, err := s.coord.RecentErrors(r.Context(), queryRunID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"errors": errs})
}

func (s *Server) pages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.coord.Pages(r.Context(), queryRunID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if pages == nil {
		pages = []coordinator.PageRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

func (s *Server) content(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		s.writeErrorCode(w, coordinator.CodeContentNotFound, "content storage is not configured")
		return
	}
	runID := queryRunID(r)
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		s.writeErrorCode(w, coordinator.CodeInvalidRequest, "url query parameter is required")
		return
	}
	normalized, err := coordinator.NormalizeURL(rawURL)
	if err != nil {
		s.writeErrorCode(w, coordinator.CodeInvalidRequest, "invalid url")
		return
	}

	pages, err := s.coord.Pages(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var hash string
	for _, page := range pages {
		if page.URL == normalized {
			hash = page.ContentHash
			break
		}
	}
	if hash == "" {
		s.writeErrorCode(w, coordinator.CodeContentNotFound, "no content recorded for url")
		return
	}

	data, err := s.blobs.Get(r.Context(), contentKey(runID, normalized, hash))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write content failed", zap.Error(err))
	}
}
