package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-homesim/internal/device"
)

func TestDecodeActuatorStatus(t *testing.T) {
	body := []byte(`{"id":"lamp_1","type":"actuator","subtype":"lamp","state":"on","brightness":80,
		"grpc_host":"localhost","grpc_port":50051,"temperature":null,"related_device":null}`)

	m, err := Decode(body, "command.lamp.lamp_1")
	require.NoError(t, err)

	assert.Equal(t, "lamp_1", m.ID)
	assert.Equal(t, "lamp", m.Subtype)
	assert.Equal(t, device.KindActuator, m.Kind())
	assert.Equal(t, "on", m.State)
	require.NotNil(t, m.Brightness)
	assert.InDelta(t, 80.0, *m.Brightness, 0.001)
	assert.Nil(t, m.Temperature)
	assert.Equal(t, "localhost", m.GRPCHost)
	assert.Equal(t, 50051, m.GRPCPort)
}

func TestDecodeLegacySensorFields(t *testing.T) {
	body := []byte(`{"device_id":"temp_sensor_01","device_name":"Room","device_type":"temperature",
		"timestamp":"2025-03-01 10:00:00","temperature":26.0,"related_device":"ac_1"}`)

	m, err := Decode(body, "sensor.temperature")
	require.NoError(t, err)

	assert.Equal(t, "temp_sensor_01", m.ID)
	assert.Equal(t, "Room", m.Name)
	assert.Equal(t, "temperature", m.Subtype)
	assert.Equal(t, "ac_1", m.RelatedDevice)
	assert.False(t, m.ObservedAt().IsZero())
}

func TestDecodeSubtypeSources(t *testing.T) {
	tests := []struct {
		name string
		body string
		key  string
		want string
	}{
		{"explicit subtype", `{"id":"x","subtype":"door"}`, "command.door.x", "door"},
		{"ac alias", `{"id":"ac_1","type":"ac","state":"on"}`, "command.air_conditioner.ac_1", "air_conditioner"},
		{"door alias", `{"id":"d","type":"door"}`, "anything", "door"},
		{"from sensor key", `{"id":"s","type":"sensor"}`, "sensor.luminosity", "luminosity"},
		{"from status key", `{"id":"sp"}`, "command.sprinkler.sp", "sprinkler"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.body), tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Subtype)
		})
	}
}

func TestDecodePresenceBecomesState(t *testing.T) {
	m, err := Decode([]byte(`{"id":"p","presence":true}`), "sensor.presence")
	require.NoError(t, err)
	assert.Equal(t, device.StateOn, m.State)

	m, err = Decode([]byte(`{"id":"p","presence":false}`), "sensor.presence")
	require.NoError(t, err)
	assert.Equal(t, device.StateOff, m.State)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
		key  string
	}{
		{"not json", `{not json`, "sensor.temperature"},
		{"missing id", `{"temperature":20}`, "sensor.temperature"},
		{"unknown subtype", `{"id":"x","subtype":"toaster"}`, "sensor.temperature"},
		{"no subtype anywhere", `{"id":"x"}`, "shutdown.x"},
		{"kind mismatch", `{"id":"x","type":"sensor","subtype":"lamp"}`, "command.lamp.x"},
		{"wrong field type", `{"id":"x","temperature":"hot"}`, "sensor.temperature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body), tt.key)
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestObservedAt(t *testing.T) {
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	m := Message{Timestamp: FormatTimestamp(ts)}
	assert.True(t, ts.Equal(m.ObservedAt()))

	assert.True(t, Message{}.ObservedAt().IsZero())
	assert.True(t, Message{Timestamp: "yesterday"}.ObservedAt().IsZero())
}
