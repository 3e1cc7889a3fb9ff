package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/statement-parser/internal/common"
	"github.com/joseph-ayodele/statement-parser/internal/entity"
	"github.com/joseph-ayodele/statement-parser/internal/metrics"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubParser struct {
	mu    sync.Mutex
	names []string
	res   entity.StatementResult
	err   error
	panic bool
}

func (p *stubParser) ProcessBytes(ctx context.Context, name string, data []byte) (entity.StatementResult, error) {
	p.mu.Lock()
	p.names = append(p.names, name)
	p.mu.Unlock()
	if p.panic {
		panic("kaboom")
	}
	if common.RequestIDFromContext(ctx) == "" {
		return entity.StatementResult{}, errors.New("no request id")
	}
	return p.res, p.err
}

type stubHistory struct {
	mu      sync.Mutex
	records []entity.HistoryRecord
	healthy error
}

func (h *stubHistory) Record(_ context.Context, name string, _ []byte, res entity.StatementResult) (entity.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	raw, _ := json.Marshal(res)
	rec := entity.HistoryRecord{ID: uuid.New(), FileName: name, Bank: res.Bank, Result: raw, CreatedAt: time.Now()}
	h.records = append(h.records, rec)
	return rec, nil
}

func (h *stubHistory) Get(_ context.Context, id uuid.UUID) (entity.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.ID == id {
			return r, nil
		}
	}
	return entity.HistoryRecord{}, common.NewAppError(common.CodeNotFound, "history record not found", common.ErrNotFound)
}

func (h *stubHistory) List(context.Context, int, int) ([]entity.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]entity.HistoryRecord(nil), h.records...), nil
}

func (h *stubHistory) Search(_ context.Context, q string, _ int) ([]entity.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []entity.HistoryRecord
	for _, r := range h.records {
		if strings.Contains(strings.ToLower(r.Bank), strings.ToLower(q)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (h *stubHistory) HealthCheck(context.Context) error { return h.healthy }

type stubExporter struct{}

func (stubExporter) ExportXLSX(context.Context) ([]byte, error) { return []byte("PK\x03\x04"), nil }
func (stubExporter) ExportCSV(_ context.Context, w io.Writer) error {
	_, err := io.WriteString(w, "id,file_name\n")
	return err
}

func sampleResult() entity.StatementResult {
	page := 0
	return entity.StatementResult{
		Bank:    "HDFC Bank",
		BankKey: "HDFC",
		Fields: map[entity.Field]entity.FieldResult{
			entity.FieldCardLast4:   {Value: "4321", Confidence: 0.91, PageIndex: &page, Snippet: "Card Last 4 Digits: 4321"},
			entity.FieldCardVariant: {Value: "", Confidence: 0.2, Snippet: "R e g a l i a"},
		},
	}
}

func upload(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Bank   string                    `json:"bank"`
		Fields map[string]map[string]any `json:"fields"`
	} `json:"data"`
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestParseEndpoint(t *testing.T) {
	parser := &stubParser{res: sampleResult()}
	hist := &stubHistory{}
	m := metrics.New()
	h := NewHTTPServer(HTTPConfig{MaxUploadBytes: 1 << 20}, parser, testLogger,
		WithHistory(hist), WithHTTPMetrics(m)).Handler()

	t.Run("success", func(t *testing.T) {
		body, ct := upload(t, "file", "../../statement.pdf", []byte("%PDF-1.4 data"))
		req := httptest.NewRequest(http.MethodPost, "/parse/", body)
		req.Header.Set("Content-Type", ct)

		rec, env := do(t, h, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "success", env.Status)
		assert.Equal(t, "HDFC Bank", env.Data.Bank)
		assert.Equal(t, "4321", env.Data.Fields["card_last4"]["value"])
		assert.Equal(t, "Regalia", env.Data.Fields["card_variant"]["value"], "empty value falls back to the cleaned snippet")
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
		assert.NotEmpty(t, rec.Header().Get("X-History-ID"))

		assert.Equal(t, "statement.pdf", parser.names[len(parser.names)-1])
		require.Len(t, hist.records, 1)
	})

	t.Run("processing failure is a 200 error envelope", func(t *testing.T) {
		failing := NewHTTPServer(HTTPConfig{}, &stubParser{err: common.NewAppError(common.CodeOCR, "ocr failed", common.ErrOCR)}, testLogger).Handler()
		body, ct := upload(t, "file", "scan.pdf", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/parse/", body)
		req.Header.Set("Content-Type", ct)

		rec, env := do(t, failing, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "error", env.Status)
		assert.Equal(t, "ocr failed", env.Message)
	})

	t.Run("missing file field", func(t *testing.T) {
		body, ct := upload(t, "document", "a.pdf", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/parse/", body)
		req.Header.Set("Content-Type", ct)

		rec, env := do(t, h, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "error", env.Status)
	})

	t.Run("empty file", func(t *testing.T) {
		body, ct := upload(t, "file", "a.pdf", nil)
		req := httptest.NewRequest(http.MethodPost, "/parse/", body)
		req.Header.Set("Content-Type", ct)

		rec, _ := do(t, h, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/parse/", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		rec, _ := do(t, h, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		small := NewHTTPServer(HTTPConfig{MaxUploadBytes: 64}, parser, testLogger).Handler()
		body, ct := upload(t, "file", "big.pdf", bytes.Repeat([]byte("a"), 1024))
		req := httptest.NewRequest(http.MethodPost, "/parse/", body)
		req.Header.Set("Content-Type", ct)
		rec, _ := do(t, small, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("panic recovered", func(t *testing.T) {
		boom := NewHTTPServer(HTTPConfig{}, &stubParser{panic: true}, testLogger).Handler()
		body, ct := upload(t, "file", "a.pdf", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/parse/", body)
		req.Header.Set("Content-Type", ct)
		rec, env := do(t, boom, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "error", env.Status)
	})

	t.Run("metrics recorded by route", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Contains(t, rec.Body.String(), `route="/parse/"`)
	})
}

func TestHistoryEndpoints(t *testing.T) {
	hist := &stubHistory{}
	rec, err := hist.Record(context.Background(), "jan.pdf", nil, sampleResult())
	require.NoError(t, err)
	h := NewHTTPServer(HTTPConfig{}, &stubParser{}, testLogger, WithHistory(hist), WithExporter(stubExporter{})).Handler()

	t.Run("list", func(t *testing.T) {
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/history?limit=5", nil))
		require.Equal(t, http.StatusOK, resp.Code)
		var body struct {
			Items []entity.HistoryRecord `json:"items"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		require.Len(t, body.Items, 1)
		assert.Equal(t, rec.ID, body.Items[0].ID)
	})

	t.Run("get", func(t *testing.T) {
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/history/"+rec.ID.String(), nil))
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Contains(t, resp.Body.String(), `"file_name":"jan.pdf"`)
	})

	t.Run("get unknown", func(t *testing.T) {
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/history/"+uuid.NewString(), nil))
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("get bad id", func(t *testing.T) {
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/history/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Contains(t, resp.Body.String(), "must be a valid UUID")
	})

	t.Run("search", func(t *testing.T) {
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/history/search?q=hdfc", nil))
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Contains(t, resp.Body.String(), rec.ID.String())

		resp = httptest.NewRecorder()
		h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/history/search", nil))
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("exports", func(t *testing.T) {
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/export.xlsx", nil))
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Contains(t, resp.Header().Get("Content-Type"), "spreadsheetml")

		resp = httptest.NewRecorder()
		h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/export.csv", nil))
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "id,file_name\n", resp.Body.String())
	})

	t.Run("disabled history", func(t *testing.T) {
		bare := NewHTTPServer(HTTPConfig{}, &stubParser{}, testLogger).Handler()
		for _, path := range []string{"/history", "/export.xlsx", "/export.csv"} {
			resp := httptest.NewRecorder()
			bare.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusNotFound, resp.Code, path)
		}
	})
}

func TestHealthAndSchema(t *testing.T) {
	hist := &stubHistory{}
	h := NewHTTPServer(HTTPConfig{}, &stubParser{}, testLogger, WithHistory(hist)).Handler()

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	hist.healthy = errors.New("db gone")
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/schema", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "statement parse response")
}

func TestMiddleware(t *testing.T) {
	t.Run("rate limit", func(t *testing.T) {
		h := NewHTTPServer(HTTPConfig{RateLimitRPS: 0.001, RateLimitBurst: 1}, &stubParser{}, testLogger).Handler()
		first := httptest.NewRecorder()
		h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		second := httptest.NewRecorder()
		h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, first.Code)
		assert.Equal(t, http.StatusTooManyRequests, second.Code)
	})

	t.Run("cors preflight", func(t *testing.T) {
		h := NewHTTPServer(HTTPConfig{CORSOrigins: []string{"https://app.example"}}, &stubParser{}, testLogger).Handler()
		req := httptest.NewRequest(http.MethodOptions, "/parse/", nil)
		req.Header.Set("Origin", "https://app.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		assert.Equal(t, "https://app.example", resp.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("request id kept when valid", func(t *testing.T) {
		h := NewHTTPServer(HTTPConfig{}, &stubParser{}, testLogger).Handler()
		id := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(RequestIDHeader, id)
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		assert.Equal(t, id, resp.Header().Get(RequestIDHeader))
	})
}

func dialBufnet(t *testing.T, svc *ParseService) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs, _ := NewGRPCServer(svc, 1<<20, testLogger)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCParse(t *testing.T) {
	parser := &stubParser{res: sampleResult()}
	conn := dialBufnet(t, NewParseService(parser, nil, testLogger))
	ctx := metadata.AppendToOutgoingContext(context.Background(), FileNameMetadata, "march.pdf")

	t.Run("success", func(t *testing.T) {
		out := new(structpb.Struct)
		require.NoError(t, conn.Invoke(ctx, ParseMethod, wrapperspb.Bytes([]byte("%PDF")), out))

		m := out.AsMap()
		assert.Equal(t, "success", m["status"])
		data := m["data"].(map[string]any)
		assert.Equal(t, "HDFC Bank", data["bank"])
		fields := data["fields"].(map[string]any)
		assert.Equal(t, "4321", fields["card_last4"].(map[string]any)["value"])
		assert.Equal(t, "march.pdf", parser.names[len(parser.names)-1])
	})

	t.Run("empty payload", func(t *testing.T) {
		err := conn.Invoke(ctx, ParseMethod, wrapperspb.Bytes(nil), new(structpb.Struct))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("processing error maps to status", func(t *testing.T) {
		failing := dialBufnet(t, NewParseService(&stubParser{err: common.NewAppError(common.CodeInvalidInput, "not a pdf", common.ErrInvalidInput)}, nil, testLogger))
		out := new(structpb.Struct)
		err := failing.Invoke(ctx, ParseMethod, wrapperspb.Bytes([]byte("x")), out)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
		assert.Contains(t, status.Convert(err).Message(), "not a pdf")
		assert.Empty(t, out.GetFields(), "failures carry no envelope")
	})

	t.Run("panic maps to internal", func(t *testing.T) {
		boom := dialBufnet(t, NewParseService(&stubParser{panic: true}, nil, testLogger))
		err := boom.Invoke(ctx, ParseMethod, wrapperspb.Bytes([]byte("x")), new(structpb.Struct))
		assert.Equal(t, codes.Internal, status.Code(err))
	})

	t.Run("health", func(t *testing.T) {
		resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
	})
}
