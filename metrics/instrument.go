package metrics

import (
	"context"
	"image"
	"time"

	"sdgateway/sdruntime"
)

// InstrumentedBackend wraps a sdruntime.Backend and times every engine
// call. Registry and face restorer calls are passed through untimed.
type InstrumentedBackend struct {
	sdruntime.Backend
	collector *Collector
}

var _ sdruntime.Backend = (*InstrumentedBackend)(nil)

// InstrumentEngine returns backend with engine calls recorded on c.
func InstrumentEngine(backend sdruntime.Backend, c *Collector) *InstrumentedBackend {
	return &InstrumentedBackend{Backend: backend, collector: c}
}

// Txt2Img implements sdruntime.Engine.
func (b *InstrumentedBackend) Txt2Img(ctx context.Context, p sdruntime.Txt2ImgParams) (*sdruntime.Result, error) {
	start := time.Now()
	res, err := b.Backend.Txt2Img(ctx, p)
	b.collector.RecordEngineCall(EndpointTxt2Img, err, time.Since(start))
	return res, err
}

// Img2Img implements sdruntime.Engine.
func (b *InstrumentedBackend) Img2Img(ctx context.Context, p sdruntime.Img2ImgParams) (*sdruntime.Result, error) {
	start := time.Now()
	res, err := b.Backend.Img2Img(ctx, p)
	b.collector.RecordEngineCall(EndpointImg2Img, err, time.Since(start))
	return res, err
}

// Upscale implements sdruntime.Upscaler.
func (b *InstrumentedBackend) Upscale(ctx context.Context, name string, img image.Image, width, height int) (*sdruntime.Result, error) {
	start := time.Now()
	res, err := b.Backend.Upscale(ctx, name, img, width, height)
	b.collector.RecordEngineCall(EndpointUpscale, err, time.Since(start))
	return res, err
}
