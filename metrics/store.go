package metrics

import (
	"sync"
	"time"
)

// Store keeps a bounded history of recent requests and running totals in
// memory. It backs GET /health and needs no database.
//
// Usage:
//
//	store := NewStore(DefaultStoreConfig(), time.Now())
//	store.RecordTask(task)
//	summary := store.GetTaskMetrics()
type Store struct {
	mu sync.RWMutex

	// Circular buffer of recent tasks
	taskHistory []TaskRecord
	taskCap     int
	taskHead    int
	taskSize    int

	totalTasks   int64
	totalSuccess int64
	totalErrors  int64
	totalImages  int64
	byEndpoint   map[string]*endpointStats

	engineReachable bool
	engineError     string
	lastCheck       time.Time

	startTime time.Time
	version   string
}

type endpointStats struct {
	count         int64
	successCount  int64
	totalDuration time.Duration
}

// StoreConfig configures the Store.
type StoreConfig struct {
	// TaskHistoryCapacity is the max number of tasks to retain in history
	TaskHistoryCapacity int
	// Version is the application version string
	Version string
}

// DefaultStoreConfig returns a default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		TaskHistoryCapacity: 100,
		Version:             "dev",
	}
}

// NewStore creates a Store. startTime is used to calculate uptime.
func NewStore(config StoreConfig, startTime time.Time) *Store {
	capacity := config.TaskHistoryCapacity
	if capacity < 1 {
		capacity = 100
	}

	return &Store{
		taskHistory:     make([]TaskRecord, capacity),
		taskCap:         capacity,
		byEndpoint:      make(map[string]*endpointStats),
		engineReachable: true,
		startTime:       startTime,
		version:         config.Version,
	}
}

// RecordTask adds a finished request.
func (s *Store) RecordTask(task TaskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.taskHistory[s.taskHead] = task
	s.taskHead = (s.taskHead + 1) % s.taskCap
	if s.taskSize < s.taskCap {
		s.taskSize++
	}

	s.totalTasks++
	s.totalImages += int64(task.Images)
	switch task.Status {
	case TaskStatusSuccess:
		s.totalSuccess++
	case TaskStatusError:
		s.totalErrors++
	}

	stats, ok := s.byEndpoint[task.Endpoint]
	if !ok {
		stats = &endpointStats{}
		s.byEndpoint[task.Endpoint] = stats
	}
	stats.count++
	if task.Status == TaskStatusSuccess {
		stats.successCount++
	}
	stats.totalDuration += task.Duration
}

// GetTaskMetrics returns aggregated request statistics.
func (s *Store) GetTaskMetrics() TaskMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := TaskMetrics{
		TotalProcessed: s.totalTasks,
		TotalSuccess:   s.totalSuccess,
		TotalErrors:    s.totalErrors,
		TotalImages:    s.totalImages,
		ByEndpoint:     make(map[string]*EndpointMetrics, len(s.byEndpoint)),
	}

	for endpoint, stats := range s.byEndpoint {
		m := &EndpointMetrics{Count: stats.count}
		if stats.count > 0 {
			m.SuccessRate = float64(stats.successCount) / float64(stats.count) * 100
			m.AvgDuration = stats.totalDuration / time.Duration(stats.count)
		}
		metrics.ByEndpoint[endpoint] = m
	}

	return metrics
}

// GetRecentTasks returns up to limit records, oldest first.
func (s *Store) GetRecentTasks(limit int) []TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.taskSize == 0 {
		return []TaskRecord{}
	}
	if limit > s.taskSize {
		limit = s.taskSize
	}

	result := make([]TaskRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.taskHead - limit + i + s.taskCap) % s.taskCap
		result[i] = s.taskHistory[idx]
	}
	return result
}

// UpdateEngineStatus records the outcome of an engine probe. A nil err
// marks the engine reachable.
func (s *Store) UpdateEngineStatus(err error, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.engineReachable = err == nil
	s.engineError = ""
	if err != nil {
		s.engineError = err.Error()
	}
	s.lastCheck = at
}

// GetSystemStatus returns the overall health. The gateway is degraded
// while the engine is unreachable.
func (s *Store) GetSystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := SystemHealthRunning
	if !s.engineReachable {
		health = SystemHealthDegraded
	}

	return SystemStatus{
		Health:          health,
		Version:         s.version,
		Uptime:          time.Since(s.startTime),
		EngineReachable: s.engineReachable,
		EngineError:     s.engineError,
		LastCheck:       s.lastCheck,
	}
}
