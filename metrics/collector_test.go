package metrics

import (
	"context"
	"errors"
	"image"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"sdgateway/sdruntime"
)

func TestCollector_RecordRequest(t *testing.T) {
	c := NewCollector()

	c.RecordRequest(EndpointTxt2Img, TaskStatusSuccess, 2*time.Second, 2)
	c.RecordRequest(EndpointTxt2Img, TaskStatusSuccess, time.Second, 1)
	c.RecordRequest(EndpointTxt2Img, TaskStatusError, time.Second, 0)

	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues(EndpointTxt2Img, TaskStatusSuccess)); got != 2 {
		t.Errorf("requests_total{success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues(EndpointTxt2Img, TaskStatusError)); got != 1 {
		t.Errorf("requests_total{error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.imagesPersisted.WithLabelValues(EndpointTxt2Img)); got != 3 {
		t.Errorf("images_persisted_total = %v, want 3", got)
	}
	if got := testutil.CollectAndCount(c.requestDuration); got != 1 {
		t.Errorf("request_duration_seconds series = %d, want 1", got)
	}
}

func TestCollector_TrackInFlight(t *testing.T) {
	c := NewCollector()

	done := c.TrackInFlight()
	if got := testutil.ToFloat64(c.inFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
	done()
	if got := testutil.ToFloat64(c.inFlight); got != 0 {
		t.Errorf("in flight after done = %v, want 0", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.RecordRequest(EndpointUpscale, TaskStatusSuccess, time.Second, 1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`sdgateway_requests_total{endpoint="upscale",status="success"} 1`,
		"sdgateway_images_persisted_total",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCollectors_AreIndependent(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	a.RecordRequest(EndpointImg2Img, TaskStatusSuccess, time.Second, 1)

	if got := testutil.ToFloat64(b.requestsTotal.WithLabelValues(EndpointImg2Img, TaskStatusSuccess)); got != 0 {
		t.Errorf("second collector saw %v requests, want 0", got)
	}
}

type fakeBackend struct {
	err error
}

func (f fakeBackend) Txt2Img(ctx context.Context, p sdruntime.Txt2ImgParams) (*sdruntime.Result, error) {
	return &sdruntime.Result{}, f.err
}

func (f fakeBackend) Img2Img(ctx context.Context, p sdruntime.Img2ImgParams) (*sdruntime.Result, error) {
	return &sdruntime.Result{}, f.err
}

func (f fakeBackend) Upscale(ctx context.Context, name string, img image.Image, w, h int) (*sdruntime.Result, error) {
	return &sdruntime.Result{}, f.err
}

func (f fakeBackend) Samplers(ctx context.Context) ([]string, error) { return []string{"Euler"}, nil }

func (f fakeBackend) Upscalers(ctx context.Context) ([]string, error) {
	return []string{sdruntime.NoneUpscaler}, nil
}

func (f fakeBackend) ConfigureFaceRestorer(ctx context.Context, name string, w float64) error {
	return nil
}

func TestInstrumentEngine(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()

	ok := InstrumentEngine(fakeBackend{}, c)
	_, _ = ok.Txt2Img(ctx, sdruntime.Txt2ImgParams{})
	_, _ = ok.Img2Img(ctx, sdruntime.Img2ImgParams{})

	failing := InstrumentEngine(fakeBackend{err: errors.New("boom")}, c)
	_, _ = failing.Upscale(ctx, "Lanczos", nil, 8, 8)

	if got := testutil.CollectAndCount(c.engineDuration); got != 3 {
		t.Errorf("engine_duration_seconds series = %d, want 3", got)
	}

	// Registry calls are not timed.
	if _, err := ok.Samplers(ctx); err != nil {
		t.Fatal(err)
	}
	if got := testutil.CollectAndCount(c.engineDuration); got != 3 {
		t.Errorf("engine_duration_seconds series after Samplers = %d, want 3", got)
	}
}
