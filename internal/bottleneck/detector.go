package bottleneck

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/vehicle-recon/internal/db"
	"github.com/ukydev/vehicle-recon/internal/models"
)

// Severity cutoffs. The source's thresholds were inferred from UI
// color-coding, so they are constants here rather than hard invariants.
const (
	// CriticalOverageRatio marks dwell overage at or past double the SLA.
	CriticalOverageRatio = 1.0
	// HighOverageRatio marks dwell overage at or past 50% over the SLA.
	HighOverageRatio = 0.5
	// HighShortfallRatio marks throughput at or below half the target.
	HighShortfallRatio = 0.5
)

// Detector derives bottleneck alerts from the step registry and the current
// progression snapshot. It has no write side effects and is safe to run
// concurrently at any frequency; the snapshot may change between reads.
type Detector struct {
	steps  db.StepCollection
	states db.StepStateCollection
	now    func() time.Time
}

// NewDetector creates a bottleneck detector.
func NewDetector(steps db.StepCollection, states db.StepStateCollection) *Detector {
	return &Detector{steps: steps, states: states, now: time.Now}
}

// WithClock overrides the detector clock. Tests only.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// ComputeAlerts scans every occupied step and returns dwell and throughput
// alerts. A step can carry both at once, as distinct entries keyed by step
// id. Terminal steps stop the dwell clock and emit nothing.
func (d *Detector) ComputeAlerts(ctx context.Context) ([]models.BottleneckAlert, error) {
	steps, err := d.steps.FindSteps(ctx)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	now := d.now()
	var alerts []models.BottleneckAlert
	for _, step := range steps {
		if step.IsLastStep {
			continue
		}
		open, err := d.states.FindOpenByStep(ctx, step.ID.Hex())
		if err != nil {
			return nil, fmt.Errorf("step occupancy: %w", err)
		}
		if len(open) == 0 {
			continue
		}
		if alert := dwellAlert(step, open, now); alert != nil {
			alerts = append(alerts, *alert)
		}
		if step.TargetThroughput > 0 {
			departed, err := d.states.CountDepartures(ctx, step.ID.Hex(), now.Add(-24*time.Hour))
			if err != nil {
				return nil, fmt.Errorf("step departures: %w", err)
			}
			if alert := throughputAlert(step, float64(departed), now); alert != nil {
				alerts = append(alerts, *alert)
			}
		}
	}
	return alerts, nil
}

// ComputeSLAStatus grades a single step: green with no vehicle over SLA,
// yellow with any positive overage, red once the worst overage reaches the
// high cutoff.
func (d *Detector) ComputeSLAStatus(ctx context.Context, stepID string) (models.SLAStatus, error) {
	step, err := d.steps.FindStepByID(ctx, stepID)
	if err != nil {
		return "", err
	}
	if step.IsLastStep || step.SLAHours <= 0 {
		return models.SLAGreen, nil
	}
	open, err := d.states.FindOpenByStep(ctx, stepID)
	if err != nil {
		return "", fmt.Errorf("step occupancy: %w", err)
	}
	worst := 0.0
	violations := 0
	now := d.now()
	for _, state := range open {
		ratio := overageRatio(step.SLAHours, state.EnteredStepAt, now)
		if ratio > 0 {
			violations++
			if ratio > worst {
				worst = ratio
			}
		}
	}
	switch {
	case violations == 0:
		return models.SLAGreen, nil
	case worst >= HighOverageRatio:
		return models.SLARed, nil
	default:
		return models.SLAYellow, nil
	}
}

// Summarize aggregates per-step occupancy, average dwell, holding cost and
// bucket counts for the dashboard. A step is flagged bottlenecked when its
// average dwell exceeds the configured bottleneck threshold.
func (d *Detector) Summarize(ctx context.Context) ([]models.StepSummary, error) {
	steps, err := d.steps.FindSteps(ctx)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	now := d.now()
	summaries := make([]models.StepSummary, 0, len(steps))
	for _, step := range steps {
		open, err := d.states.FindOpenByStep(ctx, step.ID.Hex())
		if err != nil {
			return nil, fmt.Errorf("step occupancy: %w", err)
		}
		summary := models.StepSummary{
			StepID:   step.ID.Hex(),
			StepName: step.Name,
			Ordinal:  step.Ordinal,
			Buckets:  map[models.DayBucket]int{},
		}
		totalDays := 0
		for _, state := range open {
			days := models.DaysInStep(state.EnteredStepAt, now)
			totalDays += days
			summary.Buckets[models.ClassifyBucket(float64(days))]++
			summary.HoldingCost += float64(days) * step.CostPerDay
		}
		summary.VehicleCount = len(open)
		if len(open) > 0 {
			summary.AverageDays = float64(totalDays) / float64(len(open))
			if step.BottleneckThresholdHours > 0 {
				summary.Bottlenecked = summary.AverageDays*24 > step.BottleneckThresholdHours
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// overageRatio returns how far past the SLA a dwell is, as a fraction of the
// SLA. Zero or negative means within SLA. Dwell is measured in whole days,
// the same rounding shown to users.
func overageRatio(slaHours float64, enteredAt, now time.Time) float64 {
	if slaHours <= 0 {
		return 0
	}
	dwellHours := float64(models.DaysInStep(enteredAt, now)) * 24
	return (dwellHours - slaHours) / slaHours
}

func dwellAlert(step models.Step, open []models.VehicleStepState, now time.Time) *models.BottleneckAlert {
	if step.SLAHours <= 0 {
		return nil
	}
	violations := 0
	worst := 0.0
	for _, state := range open {
		ratio := overageRatio(step.SLAHours, state.EnteredStepAt, now)
		if ratio > 0 {
			violations++
			if ratio > worst {
				worst = ratio
			}
		}
	}
	if violations == 0 {
		return nil
	}
	severity := models.SeverityMedium
	switch {
	case worst >= CriticalOverageRatio:
		severity = models.SeverityCritical
	case worst >= HighOverageRatio:
		severity = models.SeverityHigh
	}
	return &models.BottleneckAlert{
		StepID:            step.ID.Hex(),
		StepName:          step.Name,
		Metric:            models.MetricDwellTime,
		Severity:          severity,
		ViolatingVehicles: violations,
		WorstOverageRatio: worst,
		Message: fmt.Sprintf("%d vehicle(s) in %s past the %.0fh SLA (worst %.0f%% over)",
			violations, step.Name, step.SLAHours, worst*100),
		ComputedAt: now,
	}
}

func throughputAlert(step models.Step, departed float64, now time.Time) *models.BottleneckAlert {
	if departed >= step.TargetThroughput {
		return nil
	}
	shortfall := (step.TargetThroughput - departed) / step.TargetThroughput
	severity := models.SeverityMedium
	if shortfall >= HighShortfallRatio {
		severity = models.SeverityHigh
	}
	return &models.BottleneckAlert{
		StepID:           step.ID.Hex(),
		StepName:         step.Name,
		Metric:           models.MetricThroughput,
		Severity:         severity,
		ActualThroughput: departed,
		TargetThroughput: step.TargetThroughput,
		Message: fmt.Sprintf("%s cleared %.0f vehicle(s) in 24h against a target of %.0f",
			step.Name, departed, step.TargetThroughput),
		ComputedAt: now,
	}
}
