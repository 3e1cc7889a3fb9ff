// Package server exposes statement parsing over HTTP and gRPC.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/statement-parser/internal/common"
	"github.com/joseph-ayodele/statement-parser/internal/contract"
	"github.com/joseph-ayodele/statement-parser/internal/entity"
	"github.com/joseph-ayodele/statement-parser/internal/metrics"
	"github.com/joseph-ayodele/statement-parser/internal/pipeline"
)

// Parser turns uploaded bytes into a statement result.
type Parser interface {
	ProcessBytes(ctx context.Context, name string, data []byte) (entity.StatementResult, error)
}

// History is the optional result store behind the /history routes.
type History interface {
	Record(ctx context.Context, fileName string, data []byte, res entity.StatementResult) (entity.HistoryRecord, error)
	Get(ctx context.Context, id uuid.UUID) (entity.HistoryRecord, error)
	List(ctx context.Context, limit, offset int) ([]entity.HistoryRecord, error)
	Search(ctx context.Context, q string, limit int) ([]entity.HistoryRecord, error)
	HealthCheck(ctx context.Context) error
}

// Exporter renders the history as spreadsheets.
type Exporter interface {
	ExportXLSX(ctx context.Context) ([]byte, error)
	ExportCSV(ctx context.Context, w io.Writer) error
}

// HTTPConfig holds the HTTP surface settings.
type HTTPConfig struct {
	MaxUploadBytes int64
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
}

// HTTPServer serves the REST API.
type HTTPServer struct {
	cfg      HTTPConfig
	parser   Parser
	history  History
	exporter Exporter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// HTTPOption customizes an HTTPServer.
type HTTPOption func(*HTTPServer)

func WithHistory(h History) HTTPOption {
	return func(s *HTTPServer) { s.history = h }
}

func WithExporter(e Exporter) HTTPOption {
	return func(s *HTTPServer) { s.exporter = e }
}

func WithHTTPMetrics(m *metrics.Metrics) HTTPOption {
	return func(s *HTTPServer) { s.metrics = m }
}

func NewHTTPServer(cfg HTTPConfig, parser Parser, logger *slog.Logger, opts ...HTTPOption) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	s := &HTTPServer{cfg: cfg, parser: parser, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the routed handler with its middleware.
func (s *HTTPServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(requestID(s.logger), instrument(s.metrics), timeout(s.cfg.RequestTimeout))

	r.HandleFunc("/parse/", s.handleParse).Methods(http.MethodPost)
	r.HandleFunc("/parse", s.handleParse).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/schema", s.handleSchema).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/history", s.handleHistoryList).Methods(http.MethodGet)
	r.HandleFunc("/history/search", s.handleHistorySearch).Methods(http.MethodGet)
	r.HandleFunc("/history/{id}", s.handleHistoryGet).Methods(http.MethodGet)
	r.HandleFunc("/export.xlsx", s.handleExportXLSX).Methods(http.MethodGet)
	r.HandleFunc("/export.csv", s.handleExportCSV).Methods(http.MethodGet)

	var limiter *rate.Limiter
	if s.cfg.RateLimitRPS > 0 {
		burst := s.cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimitRPS), burst)
	}
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{RequestIDHeader},
	})

	var h http.Handler = r
	h = rateLimit(limiter)(h)
	h = c.Handler(h)
	h = recovery(s.logger)(h)
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorBody(msg string) pipeline.Response {
	return pipeline.Response{Status: pipeline.StatusError, Message: msg}
}

func (s *HTTPServer) handleParse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := common.LoggerFromContext(ctx, s.logger)

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(min(s.cfg.MaxUploadBytes, 32<<20)); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody(fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes)))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("expected multipart form with a file field"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing file field"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("could not read upload"))
		return
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("uploaded file is empty"))
		return
	}
	name := filepath.Base(header.Filename)

	res, err := s.parser.ProcessBytes(ctx, name, data)
	if err != nil {
		logger.Error("server.parse.failed", "file_name", name, "error", err)
		writeJSON(w, http.StatusOK, pipeline.Failure(err))
		return
	}

	resp := pipeline.Success(res)
	if err := contract.Validate(resp); err != nil {
		logger.Warn("server.parse.contract_mismatch", "file_name", name, "error", err)
	}
	if s.history != nil {
		if rec, err := s.history.Record(ctx, name, data, *resp.Data); err != nil {
			logger.Error("server.history.save_failed", "file_name", name, "error", err)
		} else {
			w.Header().Set("X-History-ID", rec.ID.String())
		}
	}
	logger.Info("server.parse.ok", "file_name", name, "bytes", len(data), "bank", resp.Data.Bank)
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if s.history != nil {
		if err := s.history.HealthCheck(r.Context()); err != nil {
			body["status"] = "degraded"
			body["history"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["history"] = "ok"
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *HTTPServer) handleSchema(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	_, _ = w.Write(contract.Schema())
}

func (s *HTTPServer) requireHistory(w http.ResponseWriter) bool {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, errorBody("history is disabled"))
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v >= 0 {
		return v
	}
	return def
}

func (s *HTTPServer) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	recs, err := s.history.List(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(recs)})
}

func (s *HTTPServer) handleHistorySearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	recs, err := s.history.Search(r.Context(), q, queryInt(r, "limit", 10))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(recs)})
}

func (s *HTTPServer) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	raw := mux.Vars(r)["id"]
	if err := common.NewValidator().Field("id", raw, common.UUID).Err(); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.history.Get(r.Context(), uuid.MustParse(raw))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *HTTPServer) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeJSON(w, http.StatusNotFound, errorBody("export is disabled"))
		return
	}
	data, err := s.exporter.ExportXLSX(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="statements.xlsx"`)
	_, _ = w.Write(data)
}

func (s *HTTPServer) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeJSON(w, http.StatusNotFound, errorBody("export is disabled"))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="statements.csv"`)
	if err := s.exporter.ExportCSV(r.Context(), w); err != nil {
		common.LoggerFromContext(r.Context(), s.logger).Error("server.export.csv_failed", "error", err)
	}
}

// writeError maps an error to a status code and JSON body.
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		common.LoggerFromContext(r.Context(), s.logger).Error("server.request.failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, pipeline.Failure(err))
}

func nonNil(recs []entity.HistoryRecord) []entity.HistoryRecord {
	if recs == nil {
		return []entity.HistoryRecord{}
	}
	return recs
}
