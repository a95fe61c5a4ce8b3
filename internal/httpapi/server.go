// Package httpapi serves the tradewise REST API: running and browsing
// backtests, listing strategies and stored symbols, health and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradewise/internal/engine"
	"tradewise/internal/report"
	"tradewise/internal/store"
	"tradewise/pkg/tradewise"
)

// maxBodyBytes bounds a backtest request body.
const maxBodyBytes = 1 << 20

// Server serves the backtest HTTP API.
type Server struct {
	engine   *engine.Engine
	bars     store.BarStore // nil disables /api/symbols
	market   string
	gatherer prometheus.Gatherer
	log      *slog.Logger
}

// NewServer creates a new HTTP API server. A nil gatherer serves the default
// Prometheus registry.
func NewServer(eng *engine.Engine, bars store.BarStore, market string, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = slog.Default()
	}
	if market == "" {
		market = "us"
	}
	return &Server{
		engine:   eng,
		bars:     bars,
		market:   market,
		gatherer: gatherer,
		log:      log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/backtests", s.handleRunBacktest)
	mux.HandleFunc("GET /api/backtests", s.handleListBacktests)
	mux.HandleFunc("GET /api/backtests/{id}", s.handleGetBacktest)
	mux.HandleFunc("GET /api/strategies", s.handleStrategies)
	mux.HandleFunc("GET /api/symbols", s.handleSymbols)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// Handler returns an http.Handler with CORS and request logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(s.logRequests(mux))
}

func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var body tradewise.BacktestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	req, err := RequestFromWire(body)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	run, err := s.engine.Run(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.Header().Set("Location", "/api/backtests/"+run.ID)
	writeJSONStatus(w, http.StatusCreated, RunToWire(run))
}

func (s *Server) handleListBacktests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.RunFilter{
		Strategy: q.Get("strategy"),
		Symbol:   q.Get("symbol"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	runs, err := s.engine.List(r.Context(), f)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	out := tradewise.RunList{Runs: make([]tradewise.RunSummary, len(runs))}
	for i := range runs {
		out.Runs[i] = RunSummaryToWire(&runs[i])
	}
	writeJSON(w, out)
}

func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+run.ID+`.csv"`)
		if err := report.WriteTraceCSV(w, &run.Report); err != nil {
			s.log.Error("writing CSV trace", "id", run.ID, "error", err)
		}
		return
	}
	writeJSON(w, RunToWire(run))
}

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, tradewise.StrategyList{Strategies: StrategiesToWire(s.engine.Strategies())})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	market := strings.ToLower(r.URL.Query().Get("market"))
	if market == "" {
		market = s.market
	}
	out := tradewise.SymbolList{Market: market, Source: s.engine.SourceName(), Symbols: []string{}}
	if s.bars != nil {
		symbols, err := s.bars.ListSymbols(r.Context(), market)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		if symbols != nil {
			out.Symbols = symbols
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "source": s.engine.SourceName()})
}

// writeEngineError maps engine errors onto HTTP status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= 500 {
		s.log.Error("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

// StatusFor returns the HTTP status for an engine error.
func StatusFor(err error) int {
	switch {
	case engine.IsInvalid(err):
		return http.StatusBadRequest
	case engine.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, engine.ErrPoolClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start).Round(time.Microsecond),
		)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(tradewise.ErrorResponse{Error: msg})
}
