package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/asset-engine/assets"
	"github.com/warp/asset-engine/depreciation"
	"github.com/warp/asset-engine/metrics"
	"github.com/warp/asset-engine/store/sqlite"
)

type testServer struct {
	ctx     context.Context
	store   *sqlite.Store
	engine  *depreciation.Engine
	metrics *metrics.Metrics
	handler *Handler
	router  http.Handler
}

// newTestServer wires an in-memory SQLite store, the engine and the router
// with the demo company, accounts, templates and category already saved.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixed }

	builder := depreciation.NewBuilder(2)
	builder.Now = clock
	lc := depreciation.NewLifecycle(builder, nil, nil)
	lc.Now = clock

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	engine := depreciation.NewEngine(st, nil)
	engine.Now = clock
	engine.Metrics = m

	svc := assets.NewService(st, lc, engine, nil)
	svc.Now = clock

	h := NewHandler(st, svc, engine, nil)
	h.Today = func() depreciation.Date { return date("2024-03-31") }
	require.NoError(t, h.seedSettings(ctx))

	router := NewRouter(h, RouterOptions{Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})
	return &testServer{ctx: ctx, store: st, engine: engine, metrics: m, handler: h, router: router}
}

// do sends a request through the router. body may be nil, a raw JSON
// string or a value to marshal; headers come in name/value pairs.
func (ts *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

// submitted inserts and submits a demo asset.
func (ts *testServer) submitted(t *testing.T, id string) *depreciation.Asset {
	t.Helper()
	a := demoAsset(id, "Lathe "+id)
	require.NoError(t, ts.handler.insertAndSubmit(ts.ctx, a))
	got, err := ts.store.GetAsset(ts.ctx, a.ID)
	require.NoError(t, err)
	return got
}

func (ts *testServer) activeSchedule(t *testing.T, ref depreciation.ParentRef, book string) *depreciation.Schedule {
	t.Helper()
	s, err := depreciation.ActiveSchedule(ts.ctx, ts.store, ref, book)
	require.NoError(t, err)
	require.NotNil(t, s, "no active schedule for %s", ref)
	return s
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equalf(t, status, rec.Code, "body: %s", rec.Body.String())
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(s string) depreciation.Date { return depreciation.MustParseDate(s) }

func requireAmount(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(expected).Equal(actual), "expected %s, got %s", expected, actual.String())
}
