package control

import (
	"encoding/json"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muexxl/batcontrol-go/internal/core"
)

func TestMQTTControlSurface_HandleSetMode_AppliesOverride(t *testing.T) {
	surface := newTestSurface()
	bridge := NewMQTTControlSurface(surface, NewStatusStore(), log.Default())

	payload, _ := json.Marshal(setModePayload{Mode: int(core.ModeAllowDischarge)})
	bridge.handleSetMode(nil, fakeMQTTMessage{payload: payload})

	override, ok := surface.TakeOverride()
	require.True(t, ok)
	assert.Equal(t, core.ModeAllowDischarge, override.Mode)
}

func TestMQTTControlSurface_HandleSetMode_IgnoresMalformedPayload(t *testing.T) {
	surface := newTestSurface()
	bridge := NewMQTTControlSurface(surface, NewStatusStore(), log.Default())

	bridge.handleSetMode(nil, fakeMQTTMessage{payload: []byte("not json")})

	_, ok := surface.TakeOverride()
	assert.False(t, ok)
}

func TestMQTTControlSurface_HandleSetDischargeBlocked(t *testing.T) {
	surface := newTestSurface()
	bridge := NewMQTTControlSurface(surface, NewStatusStore(), log.Default())

	bridge.handleSetDischargeBlocked(nil, fakeMQTTMessage{payload: []byte("true")})
	assert.True(t, surface.Parameters.Get().DischargeBlocked)
}

func TestMQTTControlSurface_HandleSetLimitPVChargeRate(t *testing.T) {
	surface := newTestSurface()
	bridge := NewMQTTControlSurface(surface, NewStatusStore(), log.Default())

	bridge.handleSetLimitPVChargeRate(nil, fakeMQTTMessage{payload: []byte("2500")})
	assert.Equal(t, 2500, surface.Parameters.Get().LimitPVChargeRateW)
}

// fakeMQTTMessage implements just enough of mqtt.Message for handler tests;
// the handlers under test only ever call Payload().
type fakeMQTTMessage struct {
	payload []byte
}

func (m fakeMQTTMessage) Duplicate() bool   { return false }
func (m fakeMQTTMessage) Qos() byte         { return 0 }
func (m fakeMQTTMessage) Retained() bool    { return false }
func (m fakeMQTTMessage) Topic() string     { return "" }
func (m fakeMQTTMessage) MessageID() uint16 { return 0 }
func (m fakeMQTTMessage) Payload() []byte   { return m.payload }
func (m fakeMQTTMessage) Ack()              {}
