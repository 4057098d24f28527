package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetInitialDelay_AlignsToIntervalBoundary(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 22, 0, 0, time.UTC)
	delay := getInitialDelay(now, 15*time.Minute)
	// Top of hour + 30min (next 15-min boundary after :22) is 10:30.
	assert.Equal(t, 8*time.Minute, delay)
}

func TestGetInitialDelay_ExactlyOnBoundary(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC)
	delay := getInitialDelay(now, 15*time.Minute)
	assert.Equal(t, time.Duration(0), delay)
}
