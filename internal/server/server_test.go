package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rshade/eap-emissions-calculator/internal/emissions"
	"github.com/rshade/eap-emissions-calculator/internal/export"
	"github.com/rshade/eap-emissions-calculator/internal/store"
)

func newTestServer(t *testing.T, mutate func(*Options)) *Server {
	t.Helper()
	root := t.TempDir()
	opts := Options{
		Calculator: emissions.NewCalculator(nil),
		Exporter: export.NewExporter(export.Dirs{
			Downloads: filepath.Join(root, "dl"),
			Data:      filepath.Join(root, "data"),
		}, zerolog.Nop()),
		Logger: zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}

func TestListSources(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/api/v1/sources", "")
	require.Equal(t, http.StatusOK, w.Code)

	var sources []sourceResponse
	decodeBody(t, w, &sources)
	require.Len(t, sources, 13)
	assert.Equal(t, "natural_gas", sources[0].ID)
	assert.Equal(t, "Природен газ (м³)", sources[0].Label)
}

func TestAddListAndTotals(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, "/api/v1/records", `{"source_id":"natural_gas","quantity":10}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var rec emissions.Record
	decodeBody(t, w, &rec)
	assert.NotEmpty(t, rec.ID)
	assert.InDelta(t, 93.0, rec.Energy, 1e-9)
	assert.InDelta(t, 19.0, rec.Emissions, 1e-9)

	w = do(t, s, http.MethodPost, "/api/v1/records", `{"source_id":"electricity","quantity":1.234}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/records", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list recordsResponse
	decodeBody(t, w, &list)
	assert.Len(t, list.Records, 2)
	assert.Equal(t, emissions.Totals{Energy: 94.23, Emissions: 19.99}, list.Totals)

	w = do(t, s, http.MethodGet, "/api/v1/totals", "")
	require.Equal(t, http.StatusOK, w.Code)
	var totals emissions.Totals
	decodeBody(t, w, &totals)
	assert.Equal(t, list.Totals, totals)
}

func TestAddRecord_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"zero quantity", `{"source_id":"electricity","quantity":0}`, http.StatusBadRequest, codeInvalidQuantity},
		{"negative quantity", `{"source_id":"electricity","quantity":-2}`, http.StatusBadRequest, codeInvalidQuantity},
		{"unknown source", `{"source_id":"plutonium","quantity":1}`, http.StatusBadRequest, codeUnknownSource},
		{"quantity overflows", `{"source_id":"hardwood","quantity":1e306}`, http.StatusBadRequest, codeInvalidQuantity},
		{"missing quantity", `{"source_id":"electricity"}`, http.StatusBadRequest, codeInvalidRequest},
		{"missing source", `{"quantity":1}`, http.StatusBadRequest, codeInvalidRequest},
		{"unknown field", `{"source_id":"electricity","quantity":1,"extra":true}`, http.StatusBadRequest, codeInvalidRequest},
		{"not json", `quantity=1`, http.StatusBadRequest, codeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			w := do(t, s, http.MethodPost, "/api/v1/records", tt.body)
			require.Equal(t, tt.wantStatus, w.Code)

			var resp errorResponse
			decodeBody(t, w, &resp)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.TraceID)
			assert.Equal(t, 0, s.calc.Len())
		})
	}
}

func TestUpdateAndRemoveRecord(t *testing.T) {
	s := newTestServer(t, nil)
	rec, err := s.calc.Add("hard_coal", 10)
	require.NoError(t, err)

	w := do(t, s, http.MethodPatch, "/api/v1/records/"+rec.ID, `{"quantity":20}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp updateRecordResponse
	decodeBody(t, w, &resp)
	assert.True(t, resp.Changed)
	assert.InDelta(t, 40.0, resp.Record.Emissions, 1e-9)
	assert.Equal(t, 40.0, resp.Totals.Emissions)

	w = do(t, s, http.MethodPatch, "/api/v1/records/"+rec.ID, `{"quantity":20}`)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &resp)
	assert.False(t, resp.Changed)

	w = do(t, s, http.MethodPatch, "/api/v1/records/"+rec.ID, `{"quantity":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPatch, "/api/v1/records/missing", `{"quantity":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodDelete, "/api/v1/records/"+rec.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, s.calc.Len())

	w = do(t, s, http.MethodDelete, "/api/v1/records/"+rec.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReset(t *testing.T) {
	s := newTestServer(t, nil)
	_, _ = s.calc.Add("electricity", 5)
	_, _ = s.calc.Add("district_heat", 5)

	w := do(t, s, http.MethodDelete, "/api/v1/records", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, s.calc.Len())
	assert.Equal(t, emissions.Totals{}, s.calc.Totals())
}

func TestExport(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/api/v1/export", "")
	require.Equal(t, http.StatusConflict, w.Code)

	_, err := s.calc.Add("natural_gas", 10)
	require.NoError(t, err)

	w = do(t, s, http.MethodGet, "/api/v1/export?format=csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "CO2_Emissions_")
	assert.Contains(t, w.Body.String(), "Природен газ,10.0,м³,93.0,19.0")

	w = do(t, s, http.MethodGet, "/api/v1/export?format=xlsx", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	w = do(t, s, http.MethodGet, "/api/v1/export?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportFile(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, "/api/v1/export/files", "")
	require.Equal(t, http.StatusConflict, w.Code)

	_, err := s.calc.Add("softwood", 1)
	require.NoError(t, err)

	w = do(t, s, http.MethodPost, "/api/v1/export/files?format=csv&location=external", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp exportFileResponse
	decodeBody(t, w, &resp)
	assert.FileExists(t, resp.Path)
	assert.Contains(t, resp.Path, filepath.Join("dl", "Emissions"))

	w = do(t, s, http.MethodPost, "/api/v1/export/files?location=moon", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTraceIDHeader(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/totals", nil)
	req.Header.Set(TraceIDHeader, "abc-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(TraceIDHeader))

	w = do(t, s, http.MethodGet, "/api/v1/totals", "")
	assert.Len(t, w.Header().Get(TraceIDHeader), 36, "generated trace id is a UUID")
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.RateLimit = 0.001
		o.RateBurst = 1
	})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/totals", "").Code)

	w := do(t, s, http.MethodGet, "/api/v1/totals", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var resp errorResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, codeRateLimited, resp.Code)

	// health and metrics are not rate limited
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	w := do(t, s, http.MethodPost, "/api/v1/records", `{"source_id":"lignite","quantity":3}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `eap_calculations_total{source="lignite"} 1`)
	assert.Contains(t, body, "eap_records 1")
	assert.Contains(t, body, `eap_http_requests_total{operation="AddRecord",status="201"} 1`)
}

func TestPersistsToStore(t *testing.T) {
	st, err := store.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	s := newTestServer(t, func(o *Options) { o.Store = st })

	w := do(t, s, http.MethodPost, "/api/v1/records", `{"source_id":"anthracite","quantity":2}`)
	require.Equal(t, http.StatusCreated, w.Code)

	loaded, err := st.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "anthracite", loaded[0].Source.ID)

	w = do(t, s, http.MethodDelete, "/api/v1/records", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	loaded, err = st.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

// failingStore rejects every write.
type failingStore struct {
	saves int
}

func (f *failingStore) Load(context.Context) ([]emissions.Record, error) { return nil, nil }

func (f *failingStore) Save(context.Context, []emissions.Record) error {
	f.saves++
	return errors.New("disk full")
}

func (f *failingStore) Clear(context.Context) error { return errors.New("disk full") }

func (f *failingStore) Close() error { return nil }

func TestMutations_RollBackWhenSaveFails(t *testing.T) {
	calc := emissions.NewCalculator(nil)
	kept, err := calc.Add("natural_gas", 10)
	require.NoError(t, err)

	st := &failingStore{}
	s := newTestServer(t, func(o *Options) {
		o.Calculator = calc
		o.Store = st
	})

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"add", http.MethodPost, "/api/v1/records", `{"source_id":"electricity","quantity":5}`},
		{"update", http.MethodPatch, "/api/v1/records/" + kept.ID, `{"quantity":20}`},
		{"remove", http.MethodDelete, "/api/v1/records/" + kept.ID, ""},
		{"reset", http.MethodDelete, "/api/v1/records", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, tt.method, tt.target, tt.body)
			require.Equal(t, http.StatusInternalServerError, w.Code)

			var resp errorResponse
			decodeBody(t, w, &resp)
			assert.Equal(t, codeInternal, resp.Code)

			records := calc.Records()
			require.Len(t, records, 1, "failed change must not stay in memory")
			assert.Equal(t, kept, records[0])
		})
	}
	assert.Equal(t, len(tests), st.saves)

	w := do(t, s, http.MethodGet, "/api/v1/totals", "")
	require.Equal(t, http.StatusOK, w.Code)
	var totals emissions.Totals
	decodeBody(t, w, &totals)
	assert.Equal(t, emissions.Totals{Energy: 93, Emissions: 19}, totals)
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/totals", nil)
	w := httptest.NewRecorder()

	s.writeJSON(w, req, http.StatusOK, emissions.Totals{Energy: math.Inf(1)})

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var resp errorResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, codeInternal, resp.Code)
}

func TestServe_HTTPAndGRPCHealth(t *testing.T) {
	s := newTestServer(t, func(o *Options) { o.ShutdownTimeout = time.Second })

	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, httpLn, grpcLn) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + httpLn.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	conn, err := grpc.NewClient(grpcLn.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	checkCtx, checkCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer checkCancel()
	resp, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
