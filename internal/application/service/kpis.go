package service

import (
	"context"
	"encoding/json"
	"math"
	"slices"
	"time"

	"labelcheck/internal/application/models"
	dErrors "labelcheck/pkg/domain-errors"
)

// ComputeKPIs aggregates quick-check events recorded in [since, until).
// Zero bounds are open. Status and sync-state counts cover applications
// updated inside the window.
func (s *Service) ComputeKPIs(ctx context.Context, since, until time.Time) (_ *models.KPIs, err error) {
	ctx, end := s.startSpan(ctx, "ComputeKPIs")
	defer func() { end(err) }()

	if !since.IsZero() && !until.IsZero() && until.Before(since) {
		return nil, dErrors.New(dErrors.CodeValidation, "until must not be before since")
	}

	events, err := s.store.ListEventsByType(ctx, []models.EventType{models.EventScannerQuickCheckRecorded}, since, until)
	if err != nil {
		return nil, translate(err, "failed to read quick-check events")
	}

	kpis := &models.KPIs{
		Since:           since,
		Until:           until,
		SyncStateCounts: map[models.SyncState]int{},
		StatusCounts:    map[models.Status]int{},
	}

	latencies := make([]int64, 0, len(events))
	var fallbacks int
	var confidenceSum float64
	for _, ev := range events {
		var p models.ScannerQuickCheckRecordedPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			continue
		}
		latencies = append(latencies, p.Result.LatencyMs)
		confidenceSum += p.Result.Confidence
		if p.Result.UsedFallback {
			fallbacks++
		}
	}
	if n := len(latencies); n > 0 {
		slices.Sort(latencies)
		kpis.QuickChecks = n
		kpis.LatencyP50Ms = nearestRank(latencies, 50)
		kpis.LatencyP95Ms = nearestRank(latencies, 95)
		kpis.FallbackRate = float64(fallbacks) / float64(n)
		kpis.AverageConfidence = confidenceSum / float64(n)
	}

	apps, err := s.store.ListApplications(ctx)
	if err != nil {
		return nil, translate(err, "failed to list applications")
	}
	for _, app := range apps {
		if !since.IsZero() && app.UpdatedAt.Before(since) {
			continue
		}
		if !until.IsZero() && !app.UpdatedAt.Before(until) {
			continue
		}
		kpis.StatusCounts[app.Status]++
		kpis.SyncStateCounts[app.SyncState]++
	}
	return kpis, nil
}

// nearestRank returns the p-th percentile of sorted values.
func nearestRank(sorted []int64, p float64) int64 {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	rank = min(max(rank, 1), len(sorted))
	return sorted[rank-1]
}
