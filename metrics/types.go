// Package metrics records what the gateway has been doing: Prometheus
// series for scraping plus an in-memory summary for the health endpoint.
//
// This file contains atom-level type definitions with no behavior.
package metrics

import "time"

// TaskRecord is one finished gateway request.
type TaskRecord struct {
	// ID is the request ID assigned by the HTTP middleware
	ID string `json:"id"`

	// Endpoint is txt2img, img2img or upscale
	Endpoint string `json:"endpoint"`

	// Status is "success" or "error"
	Status string `json:"status"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	// Images is the number of files persisted
	Images int `json:"images"`

	// ErrorMsg is set when Status is "error"
	ErrorMsg string `json:"error_msg,omitempty"`
}

// TaskMetrics aggregates every TaskRecord seen since start.
type TaskMetrics struct {
	TotalProcessed int64 `json:"total_processed"`
	TotalSuccess   int64 `json:"total_success"`
	TotalErrors    int64 `json:"total_errors"`
	TotalImages    int64 `json:"total_images"`

	// ByEndpoint contains per-endpoint statistics
	ByEndpoint map[string]*EndpointMetrics `json:"by_endpoint"`
}

// EndpointMetrics summarises one endpoint.
type EndpointMetrics struct {
	Count int64 `json:"count"`

	// SuccessRate is the percentage of successful requests (0-100)
	SuccessRate float64 `json:"success_rate"`

	AvgDuration time.Duration `json:"avg_duration"`
}

// SystemStatus is the overall health reported by GET /health.
type SystemStatus struct {
	// Health is "running" or "degraded"
	Health string `json:"health"`

	Version string        `json:"version"`
	Uptime  time.Duration `json:"uptime"`

	// EngineReachable is the result of the last engine probe
	EngineReachable bool      `json:"engine_reachable"`
	EngineError     string    `json:"engine_error,omitempty"`
	LastCheck       time.Time `json:"last_check"`
}

// Status constants for TaskRecord
const (
	TaskStatusSuccess = "success"
	TaskStatusError   = "error"
)

// Health constants for SystemStatus
const (
	SystemHealthRunning  = "running"
	SystemHealthDegraded = "degraded"
)

// Endpoint names used as metric labels
const (
	EndpointTxt2Img = "txt2img"
	EndpointImg2Img = "img2img"
	EndpointUpscale = "upscale"
)
