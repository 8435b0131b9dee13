package models

import "time"

// AlertSeverity grades a bottleneck alert.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// AlertMetric names the measurement that triggered an alert.
type AlertMetric string

const (
	MetricDwellTime  AlertMetric = "dwell_time"
	MetricThroughput AlertMetric = "throughput"
)

// BottleneckAlert is a derived, ephemeral finding over a single step.
// Alerts are recomputed on demand and never stored as source of truth.
// A step can carry a dwell alert and a throughput alert at the same time;
// they stay distinct entries.
type BottleneckAlert struct {
	StepID            string        `json:"step_id"`
	StepName          string        `json:"step_name"`
	Metric            AlertMetric   `json:"metric"`
	Severity          AlertSeverity `json:"severity"`
	ViolatingVehicles int           `json:"violating_vehicles,omitempty"`
	WorstOverageRatio float64       `json:"worst_overage_ratio,omitempty"`
	ActualThroughput  float64       `json:"actual_throughput,omitempty"`
	TargetThroughput  float64       `json:"target_throughput,omitempty"`
	Message           string        `json:"message"`
	ComputedAt        time.Time     `json:"computed_at"`
}

// SLAStatus is the traffic-light health of a single step.
type SLAStatus string

const (
	SLAGreen  SLAStatus = "green"
	SLAYellow SLAStatus = "yellow"
	SLARed    SLAStatus = "red"
)

// StepSummary aggregates the current occupancy of one step for dashboards.
type StepSummary struct {
	StepID       string            `json:"step_id"`
	StepName     string            `json:"step_name"`
	Ordinal      int               `json:"ordinal"`
	VehicleCount int               `json:"vehicle_count"`
	AverageDays  float64           `json:"average_days"`
	HoldingCost  float64           `json:"holding_cost"`
	Buckets      map[DayBucket]int `json:"buckets"`
	Bottlenecked bool              `json:"bottlenecked"`
}
