package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appai "github.com/bryanwahyu/automaton-risk/internal/application/ai"
	appdataset "github.com/bryanwahyu/automaton-risk/internal/application/dataset"
	apprisk "github.com/bryanwahyu/automaton-risk/internal/application/risk"
	appscans "github.com/bryanwahyu/automaton-risk/internal/application/scans"
	domainai "github.com/bryanwahyu/automaton-risk/internal/domain/ai"
	"github.com/bryanwahyu/automaton-risk/internal/domain/risk"
	domain "github.com/bryanwahyu/automaton-risk/internal/domain/scans"
	"github.com/bryanwahyu/automaton-risk/internal/middleware"
)

// Deps are the services behind the API.
type Deps struct {
	Scans      *appscans.Service
	Dispatcher appscans.Dispatcher
	Exporter   *appdataset.Exporter
	Trainer    *apprisk.Trainer
	Artifacts  risk.ArtifactStore
	Analyst    *appai.Service
	Health     map[string]middleware.HealthChecker
	Logger     *slog.Logger
}

// Options configure the middleware stack.
type Options struct {
	APIKeys             map[string]string
	AllowPrivateTargets bool
	Limiter             *middleware.RateLimiter // nil disables rate limiting
	CORSOrigins         []string
}

type Router struct {
	Deps
	allowPrivate bool

	mu        sync.Mutex
	predictor *apprisk.Predictor
	version   string // bundle version the cached predictor was loaded from
}

func NewRouter(deps Deps, opt Options) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := &Router{Deps: deps, allowPrivate: opt.AllowPrivateTargets}
	origins := opt.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.Logging(deps.Logger))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-API-Key", "Authorization"},
		MaxAge:         300,
	}))
	mux.Use(middleware.RateLimit(opt.Limiter))
	mux.Use(middleware.APIKeyAuth(opt.APIKeys))

	mux.Get("/health", middleware.HealthHandler(deps.Health))
	mux.Get("/healthz", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/scans", r.wrap(r.handleStartScan))
		rt.Get("/scans", r.wrap(r.handleListScans))
		rt.Get("/scans/{id}", r.wrap(r.handleGetScan))
		rt.Get("/scans/{id}/errors", r.wrap(r.handleScanErrors))
		rt.Post("/scans/{id}/analysis", r.wrap(r.handleAnalyze))
		rt.Get("/analyses", r.wrap(r.handleListAnalyses))
		rt.Get("/export", r.wrap(r.handleExportDocument))
		rt.Post("/export", r.wrap(r.handleExportFile))
		rt.Post("/train", r.wrap(r.handleTrain))
		rt.Post("/risk/predict", r.wrap(r.handlePredict))
	})
	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// httpError carries a status for client mistakes.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status, msg := r.classify(err)
		if status >= http.StatusInternalServerError {
			r.Logger.Error("request failed", "path", req.URL.Path, "error", err)
		}
		writeJSON(w, status, map[string]string{"error": msg})
	}
}

func (r *Router) classify(err error) (int, string) {
	var he *httpError
	var te *risk.TrainingError
	switch {
	case errors.As(err, &he):
		return he.status, he.msg
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, risk.ErrArtifactNotFound):
		return http.StatusNotFound, "no trained model available"
	case errors.Is(err, risk.ErrTrainingInProgress):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domainai.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "ai quota exceeded"
	case errors.As(err, &te):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, req *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func scanID(req *http.Request) (domain.ScanID, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateScanID(id); err != nil {
		return "", badRequest("%v", err)
	}
	return domain.ScanID(id), nil
}

func queryInt(req *http.Request, key string) int {
	n, _ := strconv.Atoi(req.URL.Query().Get(key))
	return n
}

// POST /v1/scans
// Body: {"target": "<url>"}
func (r *Router) handleStartScan(w http.ResponseWriter, req *http.Request) error {
	var body appscans.Request
	if err := decode(w, req, &body); err != nil {
		return err
	}
	body.Target = middleware.SanitizeString(body.Target)
	if err := middleware.ValidateTarget(body.Target, r.allowPrivate); err != nil {
		return badRequest("%v", err)
	}
	if err := r.Dispatcher.Dispatch(req.Context(), body); err != nil {
		return fmt.Errorf("dispatch scan: %w", err)
	}
	return writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "queued",
		"target":   body.Target,
		"queuedAt": time.Now().UTC(),
	})
}

// GET /v1/scans, most recent first
func (r *Router) handleListScans(w http.ResponseWriter, req *http.Request) error {
	list, err := r.Exporter.Snapshot(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/scans/{id}
func (r *Router) handleGetScan(w http.ResponseWriter, req *http.Request) error {
	id, err := scanID(req)
	if err != nil {
		return err
	}
	scan, err := r.Scans.Get(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, scan)
}

// GET /v1/scans/{id}/errors?limit=20
func (r *Router) handleScanErrors(w http.ResponseWriter, req *http.Request) error {
	id, err := scanID(req)
	if err != nil {
		return err
	}
	list, err := r.Scans.ErrorsOf(req.Context(), id, middleware.ValidateLimit(queryInt(req, "limit")))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/scans/{id}/analysis
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	id, err := scanID(req)
	if err != nil {
		return err
	}
	a, err := r.Analyst.AnalyzeScan(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, a)
}

// GET /v1/analyses?page=&page_size=
func (r *Router) handleListAnalyses(w http.ResponseWriter, req *http.Request) error {
	page := middleware.ValidatePage(queryInt(req, "page"))
	size := middleware.ValidateLimit(queryInt(req, "page_size"))
	list, err := r.Analyst.Paginate(req.Context(), page, size)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/export returns the snapshot document without writing it.
func (r *Router) handleExportDocument(w http.ResponseWriter, req *http.Request) error {
	return r.handleListScans(w, req)
}

// POST /v1/export writes the snapshot file.
func (r *Router) handleExportFile(w http.ResponseWriter, req *http.Request) error {
	n, err := r.Exporter.Export(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"scans": n, "path": r.Exporter.Path})
}

// POST /v1/train
func (r *Router) handleTrain(w http.ResponseWriter, req *http.Request) error {
	res, err := r.Trainer.TrainAndPersist(req.Context())
	if errors.Is(err, risk.ErrNoData) {
		return writeJSON(w, http.StatusOK, map[string]any{"status": "no_data"})
	}
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.predictor = nil
	r.mu.Unlock()
	return writeJSON(w, http.StatusOK, map[string]any{"status": "trained", "result": res})
}

// POST /v1/risk/predict
// Body: {"alert_name": "...", "target": "...", "scan_duration_seconds": 1.5, "alerts_in_scan": 3}
func (r *Router) handlePredict(w http.ResponseWriter, req *http.Request) error {
	var in apprisk.Input
	if err := decode(w, req, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.AlertName) == "" {
		return badRequest("alert_name is required")
	}
	p, err := r.loadPredictor(req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, p.Predict(in))
}

// loadPredictor returns the cached predictor while the store still points at
// the bundle it was loaded from; another replica may have trained since.
func (r *Router) loadPredictor(req *http.Request) (*apprisk.Predictor, error) {
	ctx := req.Context()
	r.mu.Lock()
	defer r.mu.Unlock()

	var version string
	if v, ok := r.Artifacts.(risk.Versioned); ok {
		var err error
		if version, err = v.Version(ctx); err != nil {
			if errors.Is(err, risk.ErrArtifactNotFound) {
				r.predictor = nil
			}
			return nil, err
		}
	}
	if r.predictor != nil && r.version == version {
		return r.predictor, nil
	}
	p, err := apprisk.LoadPredictor(ctx, r.Artifacts)
	if err != nil {
		return nil, err
	}
	r.predictor, r.version = p, version
	return p, nil
}
