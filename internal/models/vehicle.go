package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Vehicle represents a vehicle moving through the reconditioning pipeline.
type Vehicle struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	VIN         string             `bson:"vin" json:"vin"`
	StockNumber string             `bson:"stock_number" json:"stock_number"`
	Make        string             `bson:"make" json:"make"`
	Model       string             `bson:"model" json:"model"`
	Year        int                `bson:"year" json:"year"`
	Status      string             `bson:"status" json:"status"` // "in_recon" or "released"
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}

// VehicleStepState records one stay of a vehicle in a step. The open state
// (LeftStepAt nil) is the vehicle's current position; closed states form the
// progression history and feed throughput counts.
type VehicleStepState struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	VehicleID     string             `bson:"vehicle_id" json:"vehicle_id"`
	StepID        string             `bson:"step_id" json:"step_id"`
	EnteredStepAt time.Time          `bson:"entered_step_at" json:"entered_step_at"`
	LeftStepAt    *time.Time         `bson:"left_step_at,omitempty" json:"left_step_at,omitempty"`
	FrozenDays    int                `bson:"frozen_days,omitempty" json:"frozen_days,omitempty"` // days_in_step at close
}

// DayBucket classifies how long a vehicle has sat in its current step.
type DayBucket string

const (
	BucketFresh    DayBucket = "fresh"    // <=1 day
	BucketNormal   DayBucket = "normal"   // 2-3 days
	BucketCritical DayBucket = "critical" // >=4 days
)

// DaysInStep converts an entry timestamp to whole days in step, rounding up.
// A vehicle that entered five minutes ago is on day 1.
func DaysInStep(enteredAt, now time.Time) int {
	elapsed := now.Sub(enteredAt)
	if elapsed <= 0 {
		return 0
	}
	return int(math.Ceil(elapsed.Hours() / 24))
}

// ClassifyBucket maps days-in-step to a day bucket. Boundaries are fixed
// constants shared by every step, not per-step configuration.
func ClassifyBucket(days float64) DayBucket {
	switch {
	case days <= 1:
		return BucketFresh
	case days >= 4:
		return BucketCritical
	default:
		return BucketNormal
	}
}
