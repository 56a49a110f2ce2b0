// internal/server/handlers/research.go

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"magnet/internal/domain/problem"
	"magnet/internal/domain/research"
	"magnet/internal/domain/trend"
)

// maxBodyBytes bounds request bodies before JSON decoding
const maxBodyBytes = 32 << 20

// ResearchService is what the handlers need from the research service
type ResearchService interface {
	Score(items []problem.EnrichedItem, top int) ([]problem.ScoredItem, error)
	Trends(items []problem.EnrichedItem, meta []trend.ClusterMeta) ([]trend.ClusterTrendReport, error)
	Run(ctx context.Context, batch research.Batch) (*research.Run, error)
	GetRun(ctx context.Context, id string) (*research.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]research.RunSummary, error)
	LatestRun(ctx context.Context) (*research.Run, error)
	ExportRun(ctx context.Context, id string, format research.ExportFormat, w io.Writer) error
}

// Run listing page size
const (
	defaultRunsLimit = 10
	maxRunsLimit     = 100
)

// ResearchHandler handles scoring, trend and run requests
type ResearchHandler struct {
	service  ResearchService
	maxItems int
	logger   *slog.Logger
}

// NewResearchHandler creates a new research handler
func NewResearchHandler(service ResearchService, maxItems int, logger *slog.Logger) *ResearchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResearchHandler{
		service:  service,
		maxItems: maxItems,
		logger:   logger.With("component", "http"),
	}
}

type batchRequest struct {
	Items    []json.RawMessage   `json:"items"`
	Clusters []trend.ClusterMeta `json:"clusters"`
	Top      int                 `json:"top"`
}

type runsResponse struct {
	Runs   []research.RunSummary `json:"runs"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type scoreResponse struct {
	Items            []problem.ScoredItem `json:"items"`
	TotalItems       int                  `json:"total_items"`
	ProcessingTimeMS int64                `json:"processing_time_ms"`
}

type trendsResponse struct {
	Trends           []trend.ClusterTrendReport `json:"trends"`
	TotalItems       int                        `json:"total_items"`
	ProcessingTimeMS int64                      `json:"processing_time_ms"`
}

// Score ranks a batch of items
func (h *ResearchHandler) Score(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	batch, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}

	ranked, err := h.service.Score(batch.Items, batch.Top)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to score items", err)
		return
	}

	respondWithJSON(w, http.StatusOK, scoreResponse{
		Items:            ranked,
		TotalItems:       len(batch.Items),
		ProcessingTimeMS: time.Since(started).Milliseconds(),
	})
}

// RunTrends classifies the clusters of a batch
func (h *ResearchHandler) RunTrends(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	batch, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}

	reports, err := h.service.Trends(batch.Items, batch.Clusters)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to analyze trends", err)
		return
	}

	respondWithJSON(w, http.StatusOK, trendsResponse{
		Trends:           reports,
		TotalItems:       len(batch.Items),
		ProcessingTimeMS: time.Since(started).Milliseconds(),
	})
}

// CreateRun scores, analyzes and stores a batch
func (h *ResearchHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	batch, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}

	run, err := h.service.Run(r.Context(), batch)
	if err != nil {
		respondWithServiceError(w, h.logger, "Failed to create run", err)
		return
	}

	view := *run
	view.Ranked = run.TopRanked(batch.Top)
	respondWithJSON(w, http.StatusCreated, view)
}

// GetRun returns a stored run. The optional top query parameter limits the
// ranked items returned.
func (h *ResearchHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, h.logger, http.StatusBadRequest, "Missing run ID", nil)
		return
	}

	top, ok := h.queryInt(w, r, "top", 0)
	if !ok {
		return
	}

	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, research.ErrNotFound) {
			respondWithError(w, h.logger, http.StatusNotFound, "Run not found", nil)
		} else {
			respondWithError(w, h.logger, http.StatusInternalServerError, "Failed to get run", err)
		}
		return
	}

	view := *run
	view.Ranked = run.TopRanked(top)
	respondWithJSON(w, http.StatusOK, view)
}

// ListRuns returns stored run summaries, newest first, paged by the limit
// and offset query parameters
func (h *ResearchHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.queryInt(w, r, "limit", defaultRunsLimit)
	if !ok {
		return
	}
	if limit < 1 || limit > maxRunsLimit {
		respondWithError(w, h.logger, http.StatusBadRequest,
			fmt.Sprintf("limit must be between 1 and %d", maxRunsLimit), nil)
		return
	}

	offset, ok := h.queryInt(w, r, "offset", 0)
	if !ok {
		return
	}

	runs, err := h.service.ListRuns(r.Context(), limit, offset)
	if err != nil {
		respondWithError(w, h.logger, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	respondWithJSON(w, http.StatusOK, runsResponse{Runs: runs, Limit: limit, Offset: offset})
}

// LatestRun returns the most recently completed run
func (h *ResearchHandler) LatestRun(w http.ResponseWriter, r *http.Request) {
	top, ok := h.queryInt(w, r, "top", 0)
	if !ok {
		return
	}

	run, err := h.service.LatestRun(r.Context())
	if err != nil {
		if errors.Is(err, research.ErrNotFound) {
			respondWithError(w, h.logger, http.StatusNotFound, "No runs found", nil)
		} else {
			respondWithError(w, h.logger, http.StatusInternalServerError, "Failed to get latest run", err)
		}
		return
	}

	view := *run
	view.Ranked = run.TopRanked(top)
	respondWithJSON(w, http.StatusOK, view)
}

// ExportRun downloads a stored run as JSON, CSV or Markdown
func (h *ResearchHandler) ExportRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, h.logger, http.StatusBadRequest, "Missing run ID", nil)
		return
	}

	format, err := research.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, "Invalid format, expected json, csv or markdown", nil)
		return
	}

	var buf bytes.Buffer
	if err := h.service.ExportRun(r.Context(), id, format, &buf); err != nil {
		if errors.Is(err, research.ErrNotFound) {
			respondWithError(w, h.logger, http.StatusNotFound, "Run not found", nil)
		} else {
			respondWithError(w, h.logger, http.StatusInternalServerError, "Failed to export run", err)
		}
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=run-%s.%s", id, format.Extension()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// queryInt reads a non-negative integer query parameter, writing the error
// response itself when it is malformed
func (h *ResearchHandler) queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondWithError(w, h.logger, http.StatusBadRequest, "Invalid "+name, nil)
		return 0, false
	}
	return n, true
}

// decodeBatch reads and validates a batch request, writing the error response
// itself when the request is rejected
func (h *ResearchHandler) decodeBatch(w http.ResponseWriter, r *http.Request) (research.Batch, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return research.Batch{}, false
	}

	if req.Items == nil {
		respondWithError(w, h.logger, http.StatusBadRequest, "items is required", nil)
		return research.Batch{}, false
	}
	if len(req.Items) > h.maxItems {
		respondWithError(w, h.logger, http.StatusBadRequest,
			fmt.Sprintf("Batch too large: %d items, limit is %d", len(req.Items), h.maxItems), nil)
		return research.Batch{}, false
	}
	if req.Top < 0 {
		respondWithError(w, h.logger, http.StatusBadRequest, "top must not be negative", nil)
		return research.Batch{}, false
	}

	items, err := problem.DecodeItems(req.Items)
	if err != nil {
		var verr *problem.ValidationError
		if errors.As(err, &verr) {
			respondWithValidationError(w, verr)
		} else {
			respondWithError(w, h.logger, http.StatusBadRequest, "Invalid items", err)
		}
		return research.Batch{}, false
	}

	return research.Batch{Items: items, Clusters: req.Clusters, Top: req.Top}, true
}
