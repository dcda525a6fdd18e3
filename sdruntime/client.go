package sdruntime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"sdgateway/imageops"
	"sdgateway/logging"
)

// ClientConfig configures a webui API client.
type ClientConfig struct {
	// BaseURL of the webui, e.g. http://127.0.0.1:7860
	BaseURL string

	// Auth is "user:password" for a webui started with --api-auth.
	Auth string

	// Timeout bounds a single HTTP call. Generation calls can be slow.
	Timeout time.Duration

	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client talks to an AUTOMATIC1111-compatible webui over its JSON API.
//
// Thread Safety: Client is safe for concurrent use. The webui itself
// queues generation requests.
type Client struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
	logger   *logging.Logger
}

var _ Backend = (*Client)(nil)

// NewClient creates a Client. It does not contact the engine.
func NewClient(cfg ClientConfig, logger *logging.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		logger:  logger.Named("sdruntime"),
	}
	if cfg.Auth != "" {
		c.user, c.password, _ = strings.Cut(cfg.Auth, ":")
	}
	return c
}

// Txt2Img runs a text-to-image generation.
func (c *Client) Txt2Img(ctx context.Context, p Txt2ImgParams) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var resp generationResponse
	if err := c.post(ctx, "/sdapi/v1/txt2img", newTxt2ImgRequest(p), &resp); err != nil {
		return nil, err
	}
	return decodeGeneration(resp, p.ExpectedImages())
}

// Img2Img runs an image-to-image generation. A non-nil mask makes it an
// inpainting request.
func (c *Client) Img2Img(ctx context.Context, p Img2ImgParams) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	source, err := imageops.EncodeBase64PNG(p.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: encode source: %v", ErrGenerationFailed, err)
	}

	req := img2imgRequest{
		txt2imgRequest:        newTxt2ImgRequest(p.Txt2ImgParams),
		InitImages:            []string{source},
		MaskBlur:              p.MaskBlur,
		InpaintingFill:        p.InpaintingFill,
		InpaintFullRes:        p.InpaintFullRes,
		InpaintFullResPadding: p.InpaintPadding,
		DenoisingStrength:     p.DenoisingStrength,
		ResizeMode:            p.ResizeMode,
	}
	if p.Mask != nil {
		if req.Mask, err = imageops.EncodeBase64PNG(p.Mask); err != nil {
			return nil, fmt.Errorf("%w: encode mask: %v", ErrGenerationFailed, err)
		}
	}

	var resp generationResponse
	if err := c.post(ctx, "/sdapi/v1/img2img", req, &resp); err != nil {
		return nil, err
	}
	return decodeGeneration(resp, p.ExpectedImages())
}

// Upscale runs the named upscaler through the extras endpoint.
func (c *Client) Upscale(ctx context.Context, name string, img image.Image, width, height int) (*Result, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: upscale target %dx%d", ErrInvalidParams, width, height)
	}

	encoded, err := imageops.EncodeBase64PNG(img)
	if err != nil {
		return nil, fmt.Errorf("%w: encode source: %v", ErrGenerationFailed, err)
	}

	req := extraSingleImageRequest{
		Image:            encoded,
		ResizeMode:       1,
		UpscalingResizeW: width,
		UpscalingResizeH: height,
		Upscaler1:        name,
	}

	var resp extraSingleImageResponse
	if err := c.post(ctx, "/sdapi/v1/extra-single-image", req, &resp); err != nil {
		return nil, err
	}
	if resp.Image == "" {
		return nil, ErrNoImages
	}

	out, err := imageops.DecodeBase64(resp.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecodeFail, err)
	}
	return &Result{Images: []image.Image{out}, HTML: resp.HTMLInfo, Info: resp.HTMLInfo}, nil
}

// Samplers lists sampler names in registry order.
func (c *Client) Samplers(ctx context.Context) ([]string, error) {
	var items []namedItem
	if err := c.get(ctx, "/sdapi/v1/samplers", &items); err != nil {
		return nil, err
	}
	return names(items), nil
}

// Upscalers lists upscaler names with NoneUpscaler first.
func (c *Client) Upscalers(ctx context.Context) ([]string, error) {
	var items []namedItem
	if err := c.get(ctx, "/sdapi/v1/upscalers", &items); err != nil {
		return nil, err
	}

	list := []string{NoneUpscaler}
	for _, name := range names(items) {
		if name != NoneUpscaler {
			list = append(list, name)
		}
	}
	return list, nil
}

// ConfigureFaceRestorer sets the engine-wide face restoration options.
func (c *Client) ConfigureFaceRestorer(ctx context.Context, name string, codeformerWeight float64) error {
	return c.post(ctx, "/sdapi/v1/options", optionsRequest{
		FaceRestorationModel: name,
		CodeFormerWeight:     codeformerWeight,
	}, nil)
}

// Ping checks that the engine API answers.
func (c *Client) Ping(ctx context.Context) error {
	var items []namedItem
	return c.get(ctx, "/sdapi/v1/samplers", &items)
}

func newTxt2ImgRequest(p Txt2ImgParams) txt2imgRequest {
	return txt2imgRequest{
		Prompt:         p.Prompt,
		NegativePrompt: p.NegativePrompt,
		SamplerName:    p.SamplerName,
		SamplerIndex:   p.SamplerName,
		Steps:          p.Steps,
		CFGScale:       p.CFGScale,
		Seed:           p.Seed,
		Width:          p.Width,
		Height:         p.Height,
		NIter:          p.BatchCount,
		BatchSize:      p.BatchSize,
		RestoreFaces:   p.RestoreFaces,
		Tiling:         p.Tiling,
		SendImages:     true,
	}
}

// decodeGeneration decodes the returned images. When the engine returns
// more images than requested, the leading extras are grids and dropped.
func decodeGeneration(resp generationResponse, expected int) (*Result, error) {
	if len(resp.Images) == 0 {
		return nil, ErrNoImages
	}

	encoded := resp.Images
	if expected > 0 && len(encoded) > expected {
		encoded = encoded[len(encoded)-expected:]
	}

	images := make([]image.Image, 0, len(encoded))
	for i, s := range encoded {
		img, err := imageops.DecodeBase64(s)
		if err != nil {
			return nil, fmt.Errorf("%w: image %d: %v", ErrImageDecodeFail, i, err)
		}
		images = append(images, img)
	}

	return &Result{Images: images, Info: resp.Info}, nil
}

func names(items []namedItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Name)
	}
	return out
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("sdruntime: marshal %s body: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("sdruntime: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrEngineUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("engine call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s: status %d: %s",
			ErrEngineResponse, method, path, resp.StatusCode, readErrorDetail(resp.Body))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: decode response: %v", ErrEngineResponse, method, path, err)
	}
	return nil
}

func readErrorDetail(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var e errorResponse
	if json.Unmarshal(data, &e) == nil {
		for _, s := range []string{e.Detail, e.Errors, e.Error} {
			if s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(data))
}
