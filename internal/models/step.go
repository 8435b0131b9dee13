package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Step represents one stage in the ordered reconditioning pipeline.
// Ordinals are 1-based, dense and unique across the registry; reordering
// reassigns them as a single unit.
type Step struct {
	ID                       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name                     string             `bson:"name" json:"name"`
	Ordinal                  int                `bson:"ordinal" json:"ordinal"`
	Color                    string             `bson:"color" json:"color"`
	Icon                     string             `bson:"icon" json:"icon"`
	SLAHours                 float64            `bson:"sla_hours" json:"sla_hours"`
	CostPerDay               float64            `bson:"cost_per_day" json:"cost_per_day"`
	IsLastStep               bool               `bson:"is_last_step" json:"is_last_step"`
	TargetThroughput         float64            `bson:"target_throughput" json:"target_throughput"` // vehicles/day expected to clear
	BottleneckThresholdHours float64            `bson:"bottleneck_threshold_hours" json:"bottleneck_threshold_hours"`
	ParallelCapable          bool               `bson:"parallel_capable" json:"parallel_capable"`
	ExpressLaneEligible      bool               `bson:"express_lane_eligible" json:"express_lane_eligible"`
	ShowInSidebar            bool               `bson:"show_in_sidebar" json:"show_in_sidebar"`
	CreatedAt                time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt                time.Time          `bson:"updated_at" json:"updated_at"`
}

// StepAssignment links a step to the users notified when a vehicle enters it.
// Assignments are replaced wholesale per step and role, never diffed.
type StepAssignment struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	StepID    string             `bson:"step_id" json:"step_id"`
	Role      string             `bson:"role" json:"role"` // e.g. "technician", "manager"
	UserIDs   []string           `bson:"user_ids" json:"user_ids"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// StepPatch carries the updatable fields of a step. Nil means "leave as is".
// Ordinal is deliberately absent: position changes only via reorder.
type StepPatch struct {
	Name                     *string  `json:"name,omitempty"`
	Color                    *string  `json:"color,omitempty"`
	Icon                     *string  `json:"icon,omitempty"`
	SLAHours                 *float64 `json:"sla_hours,omitempty"`
	CostPerDay               *float64 `json:"cost_per_day,omitempty"`
	IsLastStep               *bool    `json:"is_last_step,omitempty"`
	TargetThroughput         *float64 `json:"target_throughput,omitempty"`
	BottleneckThresholdHours *float64 `json:"bottleneck_threshold_hours,omitempty"`
	ParallelCapable          *bool    `json:"parallel_capable,omitempty"`
	ExpressLaneEligible      *bool    `json:"express_lane_eligible,omitempty"`
	ShowInSidebar            *bool    `json:"show_in_sidebar,omitempty"`
}

// Apply copies the set fields of the patch onto the step.
func (p *StepPatch) Apply(s *Step) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Color != nil {
		s.Color = *p.Color
	}
	if p.Icon != nil {
		s.Icon = *p.Icon
	}
	if p.SLAHours != nil {
		s.SLAHours = *p.SLAHours
	}
	if p.CostPerDay != nil {
		s.CostPerDay = *p.CostPerDay
	}
	if p.IsLastStep != nil {
		s.IsLastStep = *p.IsLastStep
	}
	if p.TargetThroughput != nil {
		s.TargetThroughput = *p.TargetThroughput
	}
	if p.BottleneckThresholdHours != nil {
		s.BottleneckThresholdHours = *p.BottleneckThresholdHours
	}
	if p.ParallelCapable != nil {
		s.ParallelCapable = *p.ParallelCapable
	}
	if p.ExpressLaneEligible != nil {
		s.ExpressLaneEligible = *p.ExpressLaneEligible
	}
	if p.ShowInSidebar != nil {
		s.ShowInSidebar = *p.ShowInSidebar
	}
}
