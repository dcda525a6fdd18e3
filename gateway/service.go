package gateway

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"sdgateway/imageops"
	"sdgateway/logging"
	"sdgateway/profile"
	"sdgateway/sdruntime"
)

// Config wires a Service to its collaborators.
type Config struct {
	// Engine runs txt2img and img2img
	Engine sdruntime.Engine

	// Upscaler runs named upscalers
	Upscaler sdruntime.Upscaler

	// Registry lists samplers and upscalers
	Registry sdruntime.Registry

	// FaceRestorer receives the face restoration settings once per request
	FaceRestorer sdruntime.FaceRestorer

	// Profiles is read once per request
	Profiles profile.Source

	Logger *logging.Logger

	// MaskLoader defaults to LoadMask
	MaskLoader MaskLoader

	// Now defaults to time.Now
	Now func() time.Time
}

// Service runs the generate, edit and upscale pipelines.
//
// Thread-Safety: Service holds no per-request state and is safe for
// concurrent use. The engine is treated as externally synchronized.
type Service struct {
	engine   sdruntime.Engine
	upscaler sdruntime.Upscaler
	registry sdruntime.Registry
	faces    sdruntime.FaceRestorer
	profiles profile.Source
	logger   *logging.Logger
	loadMask MaskLoader
	now      func() time.Time
}

// Result reports a finished request.
type Result struct {
	// Outputs are absolute paths of the persisted images, in engine order
	Outputs []string

	// Info is the engine's metadata string
	Info string

	// Working dimensions sent to the engine
	Width  int
	Height int

	Seed   int64
	Prompt string

	// Mode is the normalized edit mode, -1 outside img2img
	Mode int

	// Model is the sampler or upscaler used
	Model string

	EngineDuration time.Duration
}

// NewService validates cfg and returns a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Engine == nil || cfg.Upscaler == nil || cfg.Registry == nil || cfg.FaceRestorer == nil {
		return nil, errors.New("gateway: engine capabilities cannot be nil")
	}
	if cfg.Profiles == nil {
		return nil, errors.New("gateway: profile source cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("gateway: logger cannot be nil")
	}

	s := &Service{
		engine:   cfg.Engine,
		upscaler: cfg.Upscaler,
		registry: cfg.Registry,
		faces:    cfg.FaceRestorer,
		profiles: cfg.Profiles,
		logger:   cfg.Logger.Named("gateway"),
		loadMask: cfg.MaskLoader,
		now:      cfg.Now,
	}
	if s.loadMask == nil {
		s.loadMask = LoadMask
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Snapshot loads the current profile configuration.
func (s *Service) Snapshot() (*profile.Snapshot, error) {
	return s.profiles.Load()
}

// Generate runs a txt2img request: resolve, fit, invoke, resize back to
// the requested canvas and persist as {ts}_{i}.png.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	start := s.now()
	snap, err := s.profiles.Load()
	if err != nil {
		return nil, err
	}
	opt := snap.Generate

	if err := s.configureFaces(ctx, req.FaceRestorer, req.CodeformerWeight, opt); err != nil {
		return nil, err
	}

	params := sdruntime.Txt2ImgParams{
		Prompt:         ResolveString(req.Prompt, opt.Prompts.Collect()),
		NegativePrompt: ResolveString(req.NegativePrompt, opt.NegativePrompt.Collect()),
		SamplerName:    ResolveString(req.SamplerName, opt.SamplerName),
		Steps:          Resolve(req.Steps, opt.Steps),
		CFGScale:       Resolve(req.CFGScale, opt.CFGScale),
		Seed:           Resolve(req.Seed, opt.Seed),
		BatchCount:     Resolve(req.BatchCount, opt.BatchCount),
		BatchSize:      Resolve(req.BatchSize, opt.BatchSize),
		RestoreFaces:   Resolve(req.UseGFPGAN, opt.UseGFPGAN),
		Tiling:         Resolve(req.Tiling, opt.Tiling),
	}
	if params.SamplerIndex, err = SamplerIndex(ctx, s.registry, params.SamplerName); err != nil {
		return nil, err
	}

	canvasW, canvasH, err := requestedCanvas(req.OrigWidth, req.OrigHeight)
	if err != nil {
		return nil, err
	}
	base, limit := Resolve(req.BaseSize, opt.BaseSize), Resolve(req.MaxSize, opt.MaxSize)
	fitW, fitH := canvasW, canvasH
	if fitW == 0 {
		fitW, fitH = base, base
	}
	if params.Width, params.Height, err = FitDimensions(base, limit, fitW, fitH); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}

	s.logger.Info("txt2img",
		zap.String("sampler", params.SamplerName),
		zap.Int("width", params.Width),
		zap.Int("height", params.Height),
		zap.Int("batch_count", params.BatchCount),
		zap.Int("batch_size", params.BatchSize),
		zap.Int64("seed", params.Seed))

	engineStart := time.Now()
	out, err := s.engine.Txt2Img(ctx, params)
	engineDuration := time.Since(engineStart)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineFailure, err)
	}

	images, err := ResizeAll(out.Images, canvasW, canvasH)
	if err != nil {
		return nil, err
	}
	outputs, err := PersistBatch(opt.SamplePath, start.Unix(), images)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Outputs:        outputs,
		Info:           out.Info,
		Width:          params.Width,
		Height:         params.Height,
		Seed:           params.Seed,
		Prompt:         params.Prompt,
		Mode:           -1,
		Model:          params.SamplerName,
		EngineDuration: engineDuration,
	}
	s.logFinished("txt2img", res, start)
	return res, nil
}

// Edit runs an img2img request. The source image fixes the canvas size;
// the mode decides the working size, whether a mask is sent and whether
// unmasked pixels are cleared in the persisted output.
func (s *Service) Edit(ctx context.Context, req EditRequest) (*Result, error) {
	start := s.now()
	snap, err := s.profiles.Load()
	if err != nil {
		return nil, err
	}
	opt := snap.Edit

	if err := s.configureFaces(ctx, req.FaceRestorer, req.CodeformerWeight, opt); err != nil {
		return nil, err
	}

	params := sdruntime.Img2ImgParams{
		Txt2ImgParams: sdruntime.Txt2ImgParams{
			Prompt:         ResolveString(req.Prompt, opt.Prompts.Collect()),
			NegativePrompt: ResolveString(req.NegativePrompt, opt.NegativePrompt.Collect()),
			SamplerName:    ResolveString(req.SamplerName, opt.SamplerName),
			Steps:          Resolve(req.Steps, opt.Steps),
			CFGScale:       Resolve(req.CFGScale, opt.CFGScale),
			Seed:           Resolve(req.Seed, opt.Seed),
			BatchCount:     Resolve(req.BatchCount, opt.BatchCount),
			BatchSize:      Resolve(req.BatchSize, opt.BatchSize),
			RestoreFaces:   Resolve(req.UseGFPGAN, opt.UseGFPGAN),
			Tiling:         Resolve(req.Tiling, opt.Tiling),
		},
		MaskBlur:          Resolve(req.MaskBlur, opt.MaskBlur),
		InpaintingFill:    Resolve(req.InpaintingFill, opt.InpaintingFill),
		DenoisingStrength: Resolve(req.DenoisingStrength, opt.DenoisingStrength),
		InpaintFullRes:    Resolve(req.InpaintFullRes, opt.InpaintFullRes),
		ResizeMode:        opt.ResizeMode,
		InpaintPadding:    sdruntime.InpaintPadding,
	}
	if params.SamplerIndex, err = SamplerIndex(ctx, s.registry, params.SamplerName); err != nil {
		return nil, err
	}

	source, err := openSource(req.SrcPath)
	if err != nil {
		return nil, err
	}
	origW, origH := imageops.Size(source)

	sel, err := SelectMode(EditMode(Resolve(req.Mode, opt.Mode)), req.MaskPath, s.loadMask)
	if err != nil {
		return nil, err
	}
	params.Mode = int(sel.Mode)
	params.Mask = sel.Mask

	upscalerIndex, err := UpscalerIndex(ctx, s.registry, ResolveString(req.UpscalerName, opt.UpscalerName))
	if err != nil {
		return nil, err
	}

	base := Resolve(req.BaseSize, opt.BaseSize)
	if sel.SquareCanvas {
		if base < DimensionStep {
			return nil, fmt.Errorf("%w: base_size %d", ErrInvalidDimension, base)
		}
		params.Width, params.Height = base, base
		if upscalerIndex > 0 {
			source = imageops.ToRGB(source)
		}
	} else {
		params.Width, params.Height, err = FitDimensions(base, Resolve(req.MaxSize, opt.MaxSize), origW, origH)
		if err != nil {
			return nil, err
		}
	}
	params.Image = source
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}

	s.logger.Info("img2img",
		zap.Stringer("mode", sel.Mode),
		zap.String("src_path", req.SrcPath),
		zap.String("sampler", params.SamplerName),
		zap.Int("width", params.Width),
		zap.Int("height", params.Height),
		zap.Float64("denoising_strength", params.DenoisingStrength),
		zap.Int64("seed", params.Seed))

	engineStart := time.Now()
	out, err := s.engine.Img2Img(ctx, params)
	engineDuration := time.Since(engineStart)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineFailure, err)
	}

	images, err := ResizeAll(out.Images, origW, origH)
	if err != nil {
		return nil, err
	}
	if images, err = Composite(images, sel.Policy, sel.Mask); err != nil {
		return nil, err
	}
	outputs, err := PersistBatch(opt.SamplePath, start.Unix(), images)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Outputs:        outputs,
		Info:           out.Info,
		Width:          params.Width,
		Height:         params.Height,
		Seed:           params.Seed,
		Prompt:         params.Prompt,
		Mode:           int(sel.Mode),
		Model:          params.SamplerName,
		EngineDuration: engineDuration,
	}
	s.logFinished("img2img", res, start)
	return res, nil
}

// Upscale runs the selected upscaler at twice the source size and resizes
// the result back, persisting one {ts}.png. With the "None" upscaler it
// returns (nil, nil) and writes nothing.
func (s *Service) Upscale(ctx context.Context, req UpscaleRequest) (*Result, error) {
	start := s.now()
	snap, err := s.profiles.Load()
	if err != nil {
		return nil, err
	}
	opt := snap.Upscale

	source, err := openSource(req.SrcPath)
	if err != nil {
		return nil, err
	}
	rgb := imageops.ToRGB(source)
	origW, origH := imageops.Size(rgb)

	name := ResolveString(req.UpscalerName, opt.UpscalerName)
	index, err := UpscalerIndex(ctx, s.registry, name)
	if err != nil {
		return nil, err
	}
	if index == 0 {
		s.logger.Info("no upscaler selected, nothing to do", zap.String("src_path", req.SrcPath))
		return nil, nil
	}

	var input image.Image = rgb
	if Resolve(req.DownscaleFirst, opt.DownscaleFirst) {
		if input, err = imageops.Resize(rgb, max(origW/2, 1), max(origH/2, 1)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDimension, err)
		}
	}

	s.logger.Info("upscale",
		zap.String("upscaler", name),
		zap.String("src_path", req.SrcPath),
		zap.Int("width", origW),
		zap.Int("height", origH))

	engineStart := time.Now()
	out, err := s.upscaler.Upscale(ctx, name, input, 2*origW, 2*origH)
	engineDuration := time.Since(engineStart)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineFailure, err)
	}
	if len(out.Images) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrEngineFailure, sdruntime.ErrNoImages)
	}

	resized, err := imageops.Resize(out.Images[0], origW, origH)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDimension, err)
	}
	output, err := PersistSingle(opt.SamplePath, start.Unix(), resized)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Outputs:        []string{output},
		Info:           out.Info,
		Width:          2 * origW,
		Height:         2 * origH,
		Mode:           -1,
		Model:          name,
		EngineDuration: engineDuration,
	}
	s.logFinished("upscale", res, start)
	return res, nil
}

// configureFaces pushes the resolved face restoration settings to the
// engine. It is the only engine-wide side effect of a request.
func (s *Service) configureFaces(ctx context.Context, name string, weight *float64, opt profile.Profile) error {
	restorer := ResolveString(name, opt.FaceRestorer)
	w := Resolve(weight, opt.CodeformerWeight)
	if err := s.faces.ConfigureFaceRestorer(ctx, restorer, w); err != nil {
		return fmt.Errorf("%w: configure face restorer: %w", ErrEngineFailure, err)
	}
	return nil
}

func (s *Service) logFinished(endpoint string, res *Result, start time.Time) {
	s.logger.Info("finished",
		logging.PathFields(res.Outputs),
		zap.String("info", res.Info),
		logging.GenerationFields(logging.GenerationMetrics{
			Endpoint:       endpoint,
			Images:         len(res.Outputs),
			Width:          res.Width,
			Height:         res.Height,
			Mode:           res.Mode,
			Seed:           res.Seed,
			Model:          res.Model,
			EngineDuration: res.EngineDuration,
			Duration:       s.now().Sub(start),
		}))
}

func openSource(path string) (image.Image, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: src_path is empty", ErrMissingSource)
	}
	img, err := imageops.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingSource, err)
	}
	return img, nil
}

// requestedCanvas returns the orig_width/orig_height pair, (0, 0) when
// neither was sent.
func requestedCanvas(w, h *int) (int, int, error) {
	switch {
	case w == nil && h == nil:
		return 0, 0, nil
	case w == nil || h == nil:
		return 0, 0, fmt.Errorf("%w: orig_width and orig_height must be sent together", ErrInvalidDimension)
	case *w <= 0 || *h <= 0:
		return 0, 0, fmt.Errorf("%w: canvas %dx%d", ErrInvalidDimension, *w, *h)
	}
	return *w, *h, nil
}
