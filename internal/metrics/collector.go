// Package metrics provides in-memory generation usage statistics.
package metrics

import (
	"math"
	"sync"
	"time"

	"github.com/raphaelgruber/council-go/internal/models"
)

// UsageMetrics holds aggregated generation metrics for one key (a pipeline
// stage or a model name).
type UsageMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	TotalInputTokens  int64
	TotalOutputTokens int64
	MinInputTokens    int64
	MaxInputTokens    int64
	MinOutputTokens   int64
	MaxOutputTokens   int64
}

// UsageSnapshot provides computed stats from raw metrics.
type UsageSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	AvgInputTokens    float64 `json:"avg_input_tokens"`
	AvgOutputTokens   float64 `json:"avg_output_tokens"`
	MinInputTokens    int64   `json:"min_input_tokens"`
	MaxInputTokens    int64   `json:"max_input_tokens"`
	MinOutputTokens   int64   `json:"min_output_tokens"`
	MaxOutputTokens   int64   `json:"max_output_tokens"`
}

// Snapshot is the full usage picture at a point in time.
type Snapshot struct {
	UptimeSeconds float64                   `json:"uptime_seconds"`
	Drafts        *UsageSnapshot            `json:"drafts,omitempty"`
	Critiques     *UsageSnapshot            `json:"critiques,omitempty"`
	Synthesis     *UsageSnapshot            `json:"synthesis,omitempty"`
	Models        map[string]*UsageSnapshot `json:"models,omitempty"`
}

// Collector aggregates in-memory generation statistics per stage and per
// model. All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	stages    map[string]*UsageMetrics
	models    map[string]*UsageMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		stages:    make(map[string]*UsageMetrics),
		models:    make(map[string]*UsageMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for a key.
// Caller must hold write lock.
func getOrCreate(m map[string]*UsageMetrics, key string) *UsageMetrics {
	u, ok := m[key]
	if !ok {
		u = &UsageMetrics{
			MinTime:         time.Duration(math.MaxInt64),
			MinInputTokens:  math.MaxInt64,
			MinOutputTokens: math.MaxInt64,
		}
		m[key] = u
	}
	return u
}

func record(u *UsageMetrics, duration time.Duration, inputTokens, outputTokens int64) {
	u.Count++
	u.TotalTime += duration

	if duration < u.MinTime {
		u.MinTime = duration
	}
	if duration > u.MaxTime {
		u.MaxTime = duration
	}

	u.TotalInputTokens += inputTokens
	u.TotalOutputTokens += outputTokens

	if inputTokens < u.MinInputTokens {
		u.MinInputTokens = inputTokens
	}
	if inputTokens > u.MaxInputTokens {
		u.MaxInputTokens = inputTokens
	}
	if outputTokens < u.MinOutputTokens {
		u.MinOutputTokens = outputTokens
	}
	if outputTokens > u.MaxOutputTokens {
		u.MaxOutputTokens = outputTokens
	}
}

// RecordGeneration records one completed generation call, attributed both to
// its pipeline stage and to the model that produced it.
func (c *Collector) RecordGeneration(stage, model string, duration time.Duration, inputTokens, outputTokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record(getOrCreate(c.stages, stage), duration, inputTokens, outputTokens)
	record(getOrCreate(c.models, model), duration, inputTokens, outputTokens)
}

// snapshotUsage creates a snapshot for one key, returning nil if no data.
func snapshotUsage(u *UsageMetrics) *UsageSnapshot {
	if u == nil || u.Count == 0 {
		return nil
	}

	minIn := u.MinInputTokens
	if minIn == math.MaxInt64 {
		minIn = 0
	}
	minOut := u.MinOutputTokens
	if minOut == math.MaxInt64 {
		minOut = 0
	}

	return &UsageSnapshot{
		Count:       u.Count,
		TotalTimeMs: u.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(u.TotalTime.Milliseconds()) / float64(u.Count),
		MinTimeMs:   u.MinTime.Milliseconds(),
		MaxTimeMs:   u.MaxTime.Milliseconds(),

		TotalInputTokens:  u.TotalInputTokens,
		TotalOutputTokens: u.TotalOutputTokens,
		AvgInputTokens:    float64(u.TotalInputTokens) / float64(u.Count),
		AvgOutputTokens:   float64(u.TotalOutputTokens) / float64(u.Count),
		MinInputTokens:    minIn,
		MaxInputTokens:    u.MaxInputTokens,
		MinOutputTokens:   minOut,
		MaxOutputTokens:   u.MaxOutputTokens,
	}
}

// Snapshot returns a point-in-time snapshot of all usage metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	modelSnaps := make(map[string]*UsageSnapshot, len(c.models))
	for name, u := range c.models {
		if snap := snapshotUsage(u); snap != nil {
			modelSnaps[name] = snap
		}
	}

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Drafts:        snapshotUsage(c.stages[models.StageDrafts]),
		Critiques:     snapshotUsage(c.stages[models.StageCritiques]),
		Synthesis:     snapshotUsage(c.stages[models.StageSynthesis]),
		Models:        modelSnaps,
	}
}
