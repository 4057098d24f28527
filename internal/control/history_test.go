package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/muexxl/batcontrol-go/internal/core"
	"github.com/muexxl/batcontrol-go/internal/inverter"
)

func TestHistoryStore_NilReceiverMethodsFail(t *testing.T) {
	var h *HistoryStore

	err := h.Record(context.Background(), time.Now(), core.DecisionOutput{}, core.BatteryState{}, inverter.OutageStatus{})
	assert.Error(t, err)

	_, err = h.Since(context.Background(), time.Now())
	assert.Error(t, err)

	assert.NoError(t, h.Close())
}

type recordingInnerPublisher struct {
	called bool
}

func (p *recordingInnerPublisher) Publish(ctx context.Context, output core.DecisionOutput, battery core.BatteryState, outage inverter.OutageStatus) {
	p.called = true
}

func TestRecordingPublisher_AlwaysForwardsToInnerEvenWithoutHistory(t *testing.T) {
	inner := &recordingInnerPublisher{}
	var historyErr error

	rp := NewRecordingPublisher(inner, nil, func(err error) { historyErr = err })
	rp.Publish(context.Background(), core.DecisionOutput{}, core.BatteryState{}, inverter.OutageStatus{})

	assert.True(t, inner.called, "inner publisher must still receive the tick even if history recording fails")
	assert.Error(t, historyErr, "a nil history store should report a recording error via onError")
}
