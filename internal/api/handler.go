package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-health/triage/internal/domain"
	"github.com/opensource-health/triage/internal/lexicon"
	"github.com/opensource-health/triage/internal/sentiment"
	"github.com/opensource-health/triage/internal/stats"
	"github.com/opensource-health/triage/internal/triage"
	"github.com/opensource-health/triage/internal/worker"
)

// maxBodyBytes bounds request bodies on the submission endpoints.
const maxBodyBytes = 1 << 20

// Deps are the collaborators served over HTTP. Cache, Bus, Tally and
// Sentiment are optional.
type Deps struct {
	Pipeline  *triage.Service
	Stats     *stats.Engine
	Store     domain.DetectionStore
	Lexicons  *lexicon.Registry
	Cache     domain.Cache
	Bus       domain.EventBus
	Tally     *worker.Tally
	Sentiment *sentiment.Classifier
	Version   string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	deps Deps
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// ProcessRequest is the JSON form of a submission.
type ProcessRequest struct {
	InputText string `json:"inputText"`
}

// ProcessResponse is returned to clients that accept JSON.
type ProcessResponse struct {
	BatchID     string                   `json:"batchId,omitempty"`
	Records     []domain.DetectionRecord `json:"records"`
	DisplayText string                   `json:"displayText"`
}

// Process handles POST /process and POST /api/process. The input arrives
// as the form field inputText or as a JSON body. The reply is the display
// text as text/plain unless the client accepts JSON.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	text, err := readInputText(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.deps.Pipeline.Process(r.Context(), text)
	if err != nil {
		slog.Error("failed to process input",
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to save detection result")
		return
	}

	if !wantsJSON(r) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(res.Summary.DisplayText))
		return
	}

	writeJSON(w, http.StatusOK, ProcessResponse{
		BatchID:     res.BatchID,
		Records:     res.Summary.Records,
		DisplayText: res.Summary.DisplayText,
	})
}

// OverallPercentages handles GET /api/persentase-penyakit.
func (h *Handler) OverallPercentages(w http.ResponseWriter, r *http.Request) {
	agg, err := h.deps.Stats.ComputeOverallPercentages(r.Context())
	if errors.Is(err, domain.ErrNoData) {
		writeError(w, http.StatusNotFound, "no detection data available")
		return
	}
	if err != nil {
		slog.Error("failed to compute overall percentages", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute disease percentages")
		return
	}

	writeJSON(w, http.StatusOK, agg)
}

// DiseasePercentage handles GET /api/persentase-penyakit/{penyakit}.
func (h *Handler) DiseasePercentage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "penyakit")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	pct, err := h.deps.Stats.ComputePercentageFor(r.Context(), name)
	if err != nil {
		slog.Error("failed to compute disease percentage",
			"disease", name,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to compute disease percentage")
		return
	}

	writeJSON(w, http.StatusOK, pct)
}

// QueryDetections handles GET /api/detections?field=&value=.
func (h *Handler) QueryDetections(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	value := r.URL.Query().Get("value")
	if field == "" {
		writeError(w, http.StatusBadRequest, "field is required")
		return
	}

	records, err := h.deps.Store.QueryByField(r.Context(), field, value)
	if errors.Is(err, domain.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, "unsupported field: "+field)
		return
	}
	if err != nil {
		slog.Error("failed to query detections",
			"field", field,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to query detections")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// ListLexicon handles GET /api/lexicon.
func (h *Handler) ListLexicon(w http.ResponseWriter, r *http.Request) {
	lex := h.deps.Lexicons.Current()
	rules := lex.Rules()

	writeJSON(w, http.StatusOK, map[string]any{
		"version": lex.Version(),
		"mode":    lex.Mode(),
		"source":  h.deps.Lexicons.Source(),
		"rules":   rules,
		"count":   len(rules),
	})
}

// ReloadLexicon handles POST /api/lexicon/reload.
func (h *Handler) ReloadLexicon(w http.ResponseWriter, r *http.Request) {
	lex, err := h.deps.Lexicons.Reload()
	switch {
	case errors.Is(err, lexicon.ErrNoSource):
		writeError(w, http.StatusBadRequest, "lexicon is built in and cannot be reloaded")
		return
	case errors.Is(err, domain.ErrInvalidInput):
		slog.Warn("rejected lexicon reload", "error", err)
		writeError(w, http.StatusBadRequest, "lexicon file is invalid: "+err.Error())
		return
	case err != nil:
		slog.Error("failed to reload lexicon", "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to read lexicon file")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "lexicon reloaded successfully",
		"version": lex.Version(),
		"count":   lex.Len(),
	})
}

// LiveStats handles GET /api/stats/live.
func (h *Handler) LiveStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Tally == nil {
		writeError(w, http.StatusServiceUnavailable, "live tally is disabled")
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Tally.Snapshot())
}

// SentimentRequest is the body of POST /api/sentiment.
type SentimentRequest struct {
	Text string `json:"text"`
}

// Sentiment handles POST /api/sentiment.
func (h *Handler) Sentiment(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sentiment == nil {
		writeError(w, http.StatusServiceUnavailable, "sentiment classifier is disabled")
		return
	}

	var req SentimentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	writeJSON(w, http.StatusOK, h.deps.Sentiment.Predict(req.Text))
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			slog.Warn("health check failed", "component", name, "error", err)
			checks[name] = "down"
			status = "degraded"
			return
		}
		checks[name] = "up"
	}

	if h.deps.Store != nil {
		check("store", func() error { return h.deps.Store.Ping(ctx) })
	}
	if h.deps.Cache != nil {
		check("cache", func() error { return h.deps.Cache.Ping(ctx) })
	}
	if h.deps.Bus != nil {
		check("bus", func() error { return h.deps.Bus.Ping(ctx) })
	}

	resp := map[string]any{
		"status":  status,
		"version": h.deps.Version,
		"checks":  checks,
	}
	if h.deps.Lexicons != nil {
		resp["lexicon"] = h.deps.Lexicons.Current().Version()
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ready reports whether the detection store is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store != nil {
		if err := h.deps.Store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func readInputText(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req ProcessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", err
		}
		return req.InputText, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.FormValue("inputText"), nil
}

func wantsJSON(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mediaType == "application/json" {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
