package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysInStep(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{"just arrived", 0, 0},
		{"five minutes counts as day one", 5 * time.Minute, 1},
		{"half a day", 12 * time.Hour, 1},
		{"exactly a day", 24 * time.Hour, 1},
		{"a minute past a day", 24*time.Hour + time.Minute, 2},
		{"three days", 72 * time.Hour, 3},
		{"clock skew is clamped", -time.Hour, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysInStep(now.Add(-tt.elapsed), now))
		})
	}
}

func TestClassifyBucket(t *testing.T) {
	tests := []struct {
		days float64
		want DayBucket
	}{
		{0, BucketFresh},
		{0.5, BucketFresh},
		{1, BucketFresh},
		{1.5, BucketNormal},
		{2, BucketNormal},
		{3, BucketNormal},
		{3.9, BucketNormal},
		{4, BucketCritical},
		{10, BucketCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyBucket(tt.days), "days=%v", tt.days)
	}
}
