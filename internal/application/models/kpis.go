package models

import "time"

// KPIs aggregates quick-check telemetry over a time window.
type KPIs struct {
	Since             time.Time         `json:"since"`
	Until             time.Time         `json:"until"`
	QuickChecks       int               `json:"quickChecks"`
	LatencyP50Ms      int64             `json:"latencyP50Ms"`
	LatencyP95Ms      int64             `json:"latencyP95Ms"`
	FallbackRate      float64           `json:"fallbackRate"`
	AverageConfidence float64           `json:"averageConfidence"`
	SyncStateCounts   map[SyncState]int `json:"syncStateCounts"`
	StatusCounts      map[Status]int    `json:"statusCounts"`
}
