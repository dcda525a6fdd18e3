package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"sdgateway/gateway"
	"sdgateway/history"
	"sdgateway/logging"
	"sdgateway/metrics"
	"sdgateway/profile"
	"sdgateway/shutdown"
)

// fakePipeline returns canned results and records what it was asked.
type fakePipeline struct {
	mu sync.Mutex

	snapshot profile.Snapshot
	result   *gateway.Result
	err      error

	generate []gateway.GenerateRequest
	edit     []gateway.EditRequest
	upscale  []gateway.UpscaleRequest
	ctxs     []context.Context
}

func (p *fakePipeline) Snapshot() (*profile.Snapshot, error) {
	return profile.StaticSource{Snapshot: p.snapshot}.Load()
}

func (p *fakePipeline) Generate(ctx context.Context, req gateway.GenerateRequest) (*gateway.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generate = append(p.generate, req)
	p.ctxs = append(p.ctxs, ctx)
	return p.result, p.err
}

func (p *fakePipeline) Edit(ctx context.Context, req gateway.EditRequest) (*gateway.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edit = append(p.edit, req)
	p.ctxs = append(p.ctxs, ctx)
	return p.result, p.err
}

func (p *fakePipeline) Upscale(ctx context.Context, req gateway.UpscaleRequest) (*gateway.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.upscale = append(p.upscale, req)
	p.ctxs = append(p.ctxs, ctx)
	return p.result, p.err
}

type fakeRegistry struct {
	upscalers []string
	err       error
}

func (r fakeRegistry) Samplers(ctx context.Context) ([]string, error) {
	return []string{"Euler a"}, r.err
}

func (r fakeRegistry) Upscalers(ctx context.Context) ([]string, error) {
	return r.upscalers, r.err
}

type fakeHistory struct {
	mu      sync.Mutex
	records []history.Record
}

func (h *fakeHistory) Record(ctx context.Context, rec history.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *fakeHistory) Recent(ctx context.Context, limit int) ([]history.Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit > len(h.records) {
		limit = len(h.records)
	}
	return h.records[:limit], nil
}

type testServer struct {
	server    *Server
	pipeline  *fakePipeline
	history   *fakeHistory
	collector *metrics.Collector
	store     *metrics.Store
	manager   *shutdown.Manager
	samples   string
}

func newTestServer(t *testing.T, mutate func(*Config, *Deps)) *testServer {
	t.Helper()

	samples := filepath.Join(t.TempDir(), "samples")
	snap := profile.Defaults()
	snap.Plugin = map[string]interface{}{
		"sample_path": samples,
		"autosave":    true,
	}

	ts := &testServer{
		pipeline: &fakePipeline{
			snapshot: snap,
			result: &gateway.Result{
				Outputs: []string{"/out/1700000000_0.png", "/out/1700000000_1.png"},
				Info:    "Steps: 20, Sampler: Euler a",
				Width:   512,
				Height:  512,
				Seed:    42,
				Prompt:  "a castle",
				Mode:    -1,
				Model:   "Euler a",
			},
		},
		history:   &fakeHistory{},
		collector: metrics.NewCollector(),
		store:     metrics.NewStore(metrics.DefaultStoreConfig(), time.Now()),
		manager:   shutdown.NewManager(logging.NewNop()),
		samples:   samples,
	}

	cfg := DefaultConfig()
	deps := Deps{
		Pipeline:  ts.pipeline,
		Registry:  fakeRegistry{upscalers: []string{"None", "Lanczos"}},
		Collector: ts.collector,
		Store:     ts.store,
		History:   ts.history,
		Shutdown:  ts.manager,
		Logger:    logging.NewNop(),
		Now:       func() time.Time { return time.Unix(1700000000, 0) },
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	srv, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ts.server = srv
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestNew_Validation(t *testing.T) {
	manager := shutdown.NewManager(logging.NewNop())
	tests := []struct {
		name string
		deps Deps
	}{
		{"no pipeline", Deps{Registry: fakeRegistry{}, Shutdown: manager}},
		{"no registry", Deps{Pipeline: &fakePipeline{}, Shutdown: manager}},
		{"no shutdown", Deps{Pipeline: &fakePipeline{}, Registry: fakeRegistry{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(DefaultConfig(), tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestServer_Config(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	body := decodeBody[map[string]interface{}](t, rec)
	absSamples, _ := filepath.Abs(ts.samples)
	wantImg := filepath.Join(absSamples, "1700000000.png")
	if body["new_img"] != wantImg {
		t.Errorf("new_img = %v, want %s", body["new_img"], wantImg)
	}
	if body["new_img_mask"] != filepath.Join(absSamples, "1700000000_mask.png") {
		t.Errorf("new_img_mask = %v", body["new_img_mask"])
	}
	upscalers, _ := body["upscalers"].([]interface{})
	if len(upscalers) != 2 || upscalers[0] != "None" {
		t.Errorf("upscalers = %v", body["upscalers"])
	}
	if body["autosave"] != true || body["sample_path"] != ts.samples {
		t.Errorf("plugin keys not merged: %v", body)
	}
	if info, err := os.Stat(ts.samples); err != nil || !info.IsDir() {
		t.Errorf("sample path not created: %v", err)
	}
}

func TestServer_ConfigRegistryFailure(t *testing.T) {
	ts := newTestServer(t, func(_ *Config, d *Deps) {
		d.Registry = fakeRegistry{err: errors.New("connection refused")}
	})

	rec := ts.do(t, http.MethodGet, "/config", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestServer_Txt2Img(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/txt2img", `{"prompt":"a castle","seed":0,"orig_width":1000,"orig_height":500,"unknown":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	resp := decodeBody[generationResponse](t, rec)
	if len(resp.Outputs) != 2 || resp.Info != ts.pipeline.result.Info {
		t.Errorf("response = %+v", resp)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing X-Request-ID header")
	}

	req := ts.pipeline.generate[0]
	if req.Prompt != "a castle" || req.Seed == nil || *req.Seed != 0 {
		t.Errorf("decoded request = %+v", req)
	}
	if req.OrigWidth == nil || *req.OrigWidth != 1000 {
		t.Errorf("OrigWidth = %v", req.OrigWidth)
	}
}

func TestServer_Img2Img(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/img2img", `{"mode":1,"src_path":"/in/src.png","mask_path":"/in/mask.png","denoising_strength":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	req := ts.pipeline.edit[0]
	if req.Mode == nil || *req.Mode != 1 || req.MaskPath != "/in/mask.png" {
		t.Errorf("decoded request = %+v", req)
	}
	if req.DenoisingStrength == nil || *req.DenoisingStrength != 0 {
		t.Errorf("DenoisingStrength = %v, want explicit 0", req.DenoisingStrength)
	}
}

func TestServer_Upscale(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.pipeline.result = &gateway.Result{
		Outputs: []string{"/out/1700000000.png"},
		Info:    "upscaled by Lanczos",
		Mode:    -1,
		Model:   "Lanczos",
	}

	rec := ts.do(t, http.MethodPost, "/upscale", `{"src_path":"/in/a.png","upscaler_name":"Lanczos"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[upscaleResponse](t, rec)
	if resp.Output != "/out/1700000000.png" {
		t.Errorf("output = %q", resp.Output)
	}
	if len(resp.Outputs) != 1 || resp.Outputs[0] != resp.Output {
		t.Errorf("outputs = %v", resp.Outputs)
	}
	if resp.Info != "upscaled by Lanczos" {
		t.Errorf("info = %q", resp.Info)
	}
}

func TestServer_UpscaleNoneReturnsNull(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.pipeline.result = nil

	rec := ts.do(t, http.MethodPost, "/upscale", `{"src_path":"/in/a.png","upscaler_name":"None"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "null" {
		t.Errorf("body = %q, want null", got)
	}
}

func TestServer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid dimension", fmt.Errorf("%w: orig_width must be positive", gateway.ErrInvalidDimension), http.StatusBadRequest},
		{"invalid mode", gateway.ErrInvalidMode, http.StatusBadRequest},
		{"missing mask", gateway.ErrMissingMask, http.StatusBadRequest},
		{"missing source", gateway.ErrMissingSource, http.StatusBadRequest},
		{"unknown sampler", gateway.ErrUnknownSampler, http.StatusBadRequest},
		{"unknown upscaler", gateway.ErrUnknownUpscaler, http.StatusBadRequest},
		{"invalid parameter", gateway.ErrInvalidParameter, http.StatusBadRequest},
		{"engine failure", fmt.Errorf("%w: CUDA out of memory", gateway.ErrEngineFailure), http.StatusInternalServerError},
		{"persist", gateway.ErrPersist, http.StatusInternalServerError},
		{"shutting down", shutdown.ErrShuttingDown, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.pipeline.err = tt.err

			rec := ts.do(t, http.MethodPost, "/txt2img", `{}`)
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
			resp := decodeBody[errorResponse](t, rec)
			if resp.Detail != tt.err.Error() {
				t.Errorf("detail = %q, want %q", resp.Detail, tt.err.Error())
			}
		})
	}
}

func TestServer_MalformedJSON(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/txt2img", "/img2img", "/upscale"} {
		rec := ts.do(t, http.MethodPost, path, `{"prompt":`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", path, rec.Code)
		}
	}
	if n := len(ts.pipeline.generate) + len(ts.pipeline.edit) + len(ts.pipeline.upscale); n != 0 {
		t.Errorf("pipeline called %d times for malformed bodies", n)
	}
}

func TestServer_EngineCallIgnoresClientCancel(t *testing.T) {
	ts := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/txt2img", strings.NewReader(`{}`)).WithContext(ctx)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := ts.pipeline.ctxs[0]
	if got.Err() != nil {
		t.Errorf("pipeline context cancelled: %v", got.Err())
	}
	if RequestIDFromContext(got) != "req-123" {
		t.Errorf("request ID = %q, want req-123", RequestIDFromContext(got))
	}
}

func TestServer_RejectsAfterShutdown(t *testing.T) {
	ts := newTestServer(t, nil)
	if err := ts.manager.Shutdown(); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, http.MethodPost, "/txt2img", `{}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if len(ts.pipeline.generate) != 0 {
		t.Error("pipeline ran after shutdown")
	}
	if len(ts.history.records) != 0 {
		t.Error("rejected request recorded in history")
	}

	health := ts.do(t, http.MethodGet, "/health", "")
	if health.Code != http.StatusServiceUnavailable {
		t.Errorf("/health status = %d, want 503", health.Code)
	}
}

func TestServer_RecordsMetricsAndHistory(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.do(t, http.MethodPost, "/txt2img", `{}`)
	ts.pipeline.err = gateway.ErrUnknownSampler
	ts.pipeline.result = nil
	ts.do(t, http.MethodPost, "/img2img", `{}`)

	if got := requestsTotal(t, ts.collector, "txt2img", "success"); got != 1 {
		t.Errorf("txt2img success = %v, want 1", got)
	}
	if got := requestsTotal(t, ts.collector, "img2img", "error"); got != 1 {
		t.Errorf("img2img error = %v, want 1", got)
	}
	if n, err := testutil.GatherAndCount(ts.collector.Registry(), metrics.Namespace+"_requests_total"); err != nil || n != 2 {
		t.Errorf("requests_total series = %d (%v), want 2", n, err)
	}

	tasks := ts.store.GetTaskMetrics()
	if tasks.TotalProcessed != 2 || tasks.TotalErrors != 1 || tasks.TotalImages != 2 {
		t.Errorf("task metrics = %+v", tasks)
	}

	if len(ts.history.records) != 2 {
		t.Fatalf("history records = %d, want 2", len(ts.history.records))
	}
	ok, failed := ts.history.records[0], ts.history.records[1]
	if ok.Endpoint != "txt2img" || ok.Status != history.StatusSuccess || ok.Seed != 42 || len(ok.Outputs) != 2 {
		t.Errorf("success record = %+v", ok)
	}
	if ok.RequestID == "" {
		t.Error("success record has no request ID")
	}
	if failed.Endpoint != "img2img" || failed.Status != history.StatusError || failed.Mode != -1 {
		t.Errorf("failure record = %+v", failed)
	}
	if failed.ErrorMessage != gateway.ErrUnknownSampler.Error() {
		t.Errorf("ErrorMessage = %q", failed.ErrorMessage)
	}
}

// requestsTotal reads one requests_total child from the collector's registry.
func requestsTotal(t *testing.T, c *metrics.Collector, endpoint, status string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != metrics.Namespace+"_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["endpoint"] == endpoint && labels["status"] == status {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
