package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"sdgateway/gateway"
	"sdgateway/history"
	"sdgateway/metrics"
	"sdgateway/shutdown"
)

// maxBodyBytes bounds request bodies. Payloads carry file paths, not images.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Detail string `json:"detail"`
}

type generationResponse struct {
	Outputs []string `json:"outputs"`
	Info    string   `json:"info"`
}

// upscaleResponse keeps the single "output" path older plugins read.
type upscaleResponse struct {
	Output  string   `json:"output"`
	Outputs []string `json:"outputs"`
	Info    string   `json:"info"`
}

type historyResponse struct {
	Records []history.Record `json:"records"`
	Count   int              `json:"count"`
}

// handleConfig reports where the next image and mask should be written,
// the available upscalers and the plugin section of the profile. Plugin
// keys win over the computed ones.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Pipeline.Snapshot()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	samplePath := snap.PluginSamplePath()
	if err := os.MkdirAll(samplePath, 0755); err != nil {
		s.writeError(w, r, fmt.Errorf("failed to create sample path: %w", err))
		return
	}
	base, err := filepath.Abs(filepath.Join(samplePath, strconv.FormatInt(s.now().Unix(), 10)))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	upscalers, err := s.deps.Registry.Upscalers(r.Context())
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", gateway.ErrEngineFailure, err))
		return
	}

	resp := map[string]interface{}{
		"new_img":      base + ".png",
		"new_img_mask": base + "_mask.png",
		"upscalers":    upscalers,
	}
	for k, v := range snap.Plugin {
		resp[k] = v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTxt2Img(w http.ResponseWriter, r *http.Request) {
	var req gateway.GenerateRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, ok := s.execute(w, r, metrics.EndpointTxt2Img, func(ctx context.Context) (*gateway.Result, error) {
		return s.deps.Pipeline.Generate(ctx, req)
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, generationResponse{Outputs: res.Outputs, Info: res.Info})
}

func (s *Server) handleImg2Img(w http.ResponseWriter, r *http.Request) {
	var req gateway.EditRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, ok := s.execute(w, r, metrics.EndpointImg2Img, func(ctx context.Context) (*gateway.Result, error) {
		return s.deps.Pipeline.Edit(ctx, req)
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, generationResponse{Outputs: res.Outputs, Info: res.Info})
}

// handleUpscale answers JSON null when the "None" upscaler is selected.
func (s *Server) handleUpscale(w http.ResponseWriter, r *http.Request) {
	var req gateway.UpscaleRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, ok := s.execute(w, r, metrics.EndpointUpscale, func(ctx context.Context) (*gateway.Result, error) {
		return s.deps.Pipeline.Upscale(ctx, req)
	})
	if !ok {
		return
	}
	if res == nil || len(res.Outputs) == 0 {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, upscaleResponse{
		Output:  res.Outputs[0],
		Outputs: res.Outputs,
		Info:    res.Info,
	})
}

// execute runs one pipeline call as a tracked operation detached from
// client cancellation, then records metrics and history. On failure the
// error response is already written and ok is false.
func (s *Server) execute(
	w http.ResponseWriter,
	r *http.Request,
	endpoint string,
	run func(context.Context) (*gateway.Result, error),
) (res *gateway.Result, ok bool) {
	if s.deps.Collector != nil {
		defer s.deps.Collector.TrackInFlight()()
	}

	ctx := context.WithoutCancel(r.Context())
	start := time.Now()
	err := s.deps.Shutdown.WrapOperation(ctx, endpoint, func(ctx context.Context) error {
		var err error
		res, err = run(ctx)
		return err
	})
	s.observe(ctx, endpoint, start, res, err)

	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return res, true
}

// observe feeds one finished request to the metrics collector, the
// in-memory store and the history store.
func (s *Server) observe(ctx context.Context, endpoint string, start time.Time, res *gateway.Result, err error) {
	end := time.Now()
	duration := end.Sub(start)

	status := metrics.TaskStatusSuccess
	errMsg := ""
	if err != nil {
		status = metrics.TaskStatusError
		errMsg = err.Error()
	}
	images := 0
	if res != nil {
		images = len(res.Outputs)
	}

	if s.deps.Collector != nil {
		s.deps.Collector.RecordRequest(endpoint, status, duration, images)
	}

	requestID := RequestIDFromContext(ctx)
	if s.deps.Store != nil {
		s.deps.Store.RecordTask(metrics.TaskRecord{
			ID:        requestID,
			Endpoint:  endpoint,
			Status:    status,
			StartTime: start,
			EndTime:   end,
			Duration:  duration,
			Images:    images,
			ErrorMsg:  errMsg,
		})
	}

	if s.deps.History == nil || errors.Is(err, shutdown.ErrShuttingDown) {
		return
	}
	rec := history.Record{
		RequestID:    requestID,
		Endpoint:     endpoint,
		Mode:         -1,
		Status:       status,
		ErrorMessage: errMsg,
		DurationMS:   duration.Milliseconds(),
		CreatedAt:    start,
	}
	if res != nil {
		rec.Prompt = res.Prompt
		rec.Seed = res.Seed
		rec.Width = res.Width
		rec.Height = res.Height
		rec.Mode = res.Mode
		rec.Model = res.Model
		rec.Outputs = res.Outputs
		rec.Info = res.Info
	}
	if herr := s.deps.History.Record(ctx, rec); herr != nil {
		s.logger.Warn("failed to record history",
			zap.String("request_id", requestID),
			zap.Error(herr))
	}
}

// handleHealth reports process health, engine reachability and task
// counters. It answers 503 once shutdown has begun.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Health:           metrics.SystemHealthRunning,
		ActiveOperations: s.deps.Shutdown.ActiveOperations(),
		ShuttingDown:     s.deps.Shutdown.IsShuttingDown(),
	}

	if s.deps.Store != nil {
		status := s.deps.Store.GetSystemStatus()
		tasks := s.deps.Store.GetTaskMetrics()
		resp.Health = status.Health
		resp.Version = status.Version
		resp.Uptime = FormatDuration(status.Uptime)
		resp.UptimeSecs = status.Uptime.Seconds()
		resp.EngineReachable = status.EngineReachable
		resp.EngineError = status.EngineError
		resp.LastCheck = status.LastCheck
		resp.Tasks = &tasks
		resp.RecentTasks = s.deps.Store.GetRecentTasks(healthRecentTasks)
	}

	code := http.StatusOK
	if resp.ShuttingDown {
		resp.Health = "shutting_down"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

type healthResponse struct {
	Health           string               `json:"health"`
	Version          string               `json:"version,omitempty"`
	Uptime           string               `json:"uptime,omitempty"`
	UptimeSecs       float64              `json:"uptime_secs"`
	EngineReachable  bool                 `json:"engine_reachable"`
	EngineError      string               `json:"engine_error,omitempty"`
	LastCheck        time.Time            `json:"last_check"`
	ActiveOperations int64                `json:"active_operations"`
	ShuttingDown     bool                 `json:"shutting_down"`
	Tasks            *metrics.TaskMetrics `json:"tasks,omitempty"`
	RecentTasks      []metrics.TaskRecord `json:"recent_tasks,omitempty"`
}

// healthRecentTasks is how many finished requests /health lists.
const healthRecentTasks = 5

// handleHistory lists recent requests, newest first. limit defaults to
// HistoryDefaultLimit and is capped at HistoryMaxLimit.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: "history is disabled"})
		return
	}

	limit := s.config.HistoryDefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "limit must be a positive integer"})
			return
		}
		limit = min(n, s.config.HistoryMaxLimit)
	}

	recs, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Records: recs, Count: len(recs)})
}

// decode reads a JSON body into dst. Unknown fields are ignored so older
// plugin builds keep working.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// statusFor maps an error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shutdown.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case gateway.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	fields := []zap.Field{
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
	if code >= 500 {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Info("request rejected", fields...)
	}
	writeJSON(w, code, errorResponse{Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
