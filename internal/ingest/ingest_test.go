package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-homesim/internal/automation"
	"github.com/nerrad567/gray-logic-homesim/internal/device"
	"github.com/nerrad567/gray-logic-homesim/internal/dispatch"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/broker"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-homesim/internal/rpc"
	"github.com/nerrad567/gray-logic-homesim/internal/telemetry"
)

// MockHistory is a testify mock of History.
type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) WriteDeviceMetric(deviceID, subtype, field string, value float64, ts time.Time) {
	m.Called(deviceID, subtype, field, value, ts)
}

func handle(t *testing.T, i *Ingestor, body, key string) error {
	t.Helper()
	return i.Handle(context.Background(), []byte(body), telemetry.SensorExchange, key, "queue.test")
}

// =============================================================================
// Handle Tests
// =============================================================================

func TestHandleSensorReading(t *testing.T) {
	reg := device.NewRegistry()
	i := New(reg)

	err := handle(t, i, `{"device_id":"temp_sensor_01","device_type":"temperature","temperature":26.0,"related_device":"ac_1"}`, "sensor.temperature")
	require.NoError(t, err)

	rec, ok := reg.Get("temp_sensor_01")
	require.True(t, ok)
	assert.Equal(t, device.KindSensor, rec.Kind)
	assert.InDelta(t, 26.0, *rec.Temperature, 0.001)
	assert.Equal(t, "ac_1", rec.RelatedDeviceID)
	assert.Nil(t, rec.Endpoint)
}

func TestHandleActuatorStatus(t *testing.T) {
	reg := device.NewRegistry()
	i := New(reg)

	err := handle(t, i, `{"id":"lamp_1","type":"actuator","subtype":"lamp","state":"ON","brightness":70,
		"luminosity":70,"grpc_host":"10.0.0.5","grpc_port":50051}`, "command.lamp.lamp_1")
	require.NoError(t, err)

	rec, _ := reg.Get("lamp_1")
	assert.Equal(t, device.StateOn, rec.State)
	assert.InDelta(t, 70.0, *rec.Brightness, 0.001)
	assert.Nil(t, rec.Luminosity, "luminosity is not a lamp field")
	require.True(t, rec.HasEndpoint())
	assert.Equal(t, "10.0.0.5:50051", rec.Endpoint.Address())
}

func TestHandleAppliesDefaultEndpoint(t *testing.T) {
	reg := device.NewRegistry()
	i := New(reg, WithDefaultEndpoint("localhost", map[string]int{"air_conditioner": 50052}))

	require.NoError(t, handle(t, i, `{"id":"ac_1","type":"ac","state":"off","temperature":22}`, "command.air_conditioner.ac_1"))
	rec, _ := reg.Get("ac_1")
	require.True(t, rec.HasEndpoint())
	assert.Equal(t, "localhost:50052", rec.Endpoint.Address())

	// A door has no default port, so it stays without an endpoint.
	require.NoError(t, handle(t, i, `{"id":"door_1","type":"door","state":"closed"}`, "command.door.door_1"))
	door, _ := reg.Get("door_1")
	assert.False(t, door.HasEndpoint())
}

func TestHandleKeepsRegisteredEndpoint(t *testing.T) {
	reg := device.NewRegistry()
	i := New(reg, WithDefaultEndpoint("localhost", map[string]int{"lamp": 50051}))

	require.NoError(t, handle(t, i, `{"id":"lamp_1","subtype":"lamp","grpc_host":"h","grpc_port":6000}`, "command.lamp.lamp_1"))
	require.NoError(t, handle(t, i, `{"id":"lamp_1","subtype":"lamp","state":"off"}`, "command.lamp.lamp_1"))

	rec, _ := reg.Get("lamp_1")
	assert.Equal(t, "h:6000", rec.Endpoint.Address())
}

func TestHandlePortWithoutHostUsesDefaultHost(t *testing.T) {
	reg := device.NewRegistry()
	i := New(reg, WithDefaultEndpoint("coordinator.local", nil))

	require.NoError(t, handle(t, i, `{"id":"sp_1","subtype":"sprinkler","grpc_port":50054}`, "command.sprinkler.sp_1"))
	rec, _ := reg.Get("sp_1")
	assert.Equal(t, "coordinator.local:50054", rec.Endpoint.Address())
}

func TestHandlePermanentFailuresAreMalformed(t *testing.T) {
	reg := device.NewRegistry()
	i := New(reg)
	require.NoError(t, handle(t, i, `{"id":"dev","subtype":"lamp"}`, "command.lamp.dev"))

	tests := []struct {
		name string
		body string
		key  string
	}{
		{"bad json", `nope`, "sensor.temperature"},
		{"class change", `{"id":"dev","subtype":"door"}`, "command.door.dev"},
		{"bad state", `{"id":"dev","subtype":"lamp","state":"ajar"}`, "command.lamp.dev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handle(t, i, tt.body, tt.key)
			assert.ErrorIs(t, err, telemetry.ErrMalformedMessage)
		})
	}

	rec, _ := reg.Get("dev")
	assert.Equal(t, device.SubtypeLamp, rec.Subtype)
	assert.Empty(t, rec.State)
}

func TestHandleWritesHistory(t *testing.T) {
	reg := device.NewRegistry()
	h := new(MockHistory)
	i := New(reg, WithHistory(h))

	h.On("WriteDeviceMetric", "ac_1", "air_conditioner", "temperature", 22.0, mock.AnythingOfType("time.Time")).Once()
	h.On("WriteDeviceMetric", "ac_1", "air_conditioner", "active", 1.0, mock.AnythingOfType("time.Time")).Once()

	require.NoError(t, handle(t, i, `{"id":"ac_1","type":"ac","state":"on","temperature":22}`, "command.air_conditioner.ac_1"))

	h.AssertExpectations(t)
}

func TestHandleSkipsHistoryOnFailure(t *testing.T) {
	reg := device.NewRegistry()
	h := new(MockHistory)
	i := New(reg, WithHistory(h))

	require.Error(t, handle(t, i, `{"id":"x","subtype":"door","state":"on"}`, "command.door.x"))
	h.AssertNotCalled(t, "WriteDeviceMetric", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// =============================================================================
// Convergence Tests
// =============================================================================

// Publishing N messages for one device in order converges the registry on
// the last one, whatever concurrent readers are doing.
func TestInOrderConvergence(t *testing.T) {
	b := broker.NewMemoryBroker()
	cfg := config.BrokerConfig{
		Host:     "memory",
		QoS:      1,
		Retry:    config.RetryConfig{MaxAttempts: 1},
		Recovery: config.RecoveryConfig{MaxAttempts: 1},
	}

	cfg.ClientID = "sensor"
	pubSess, err := broker.Connect(context.Background(), cfg, broker.WithDialer(b.Dialer()))
	require.NoError(t, err)
	defer pubSess.Close()

	cfg.ClientID = "coordinator"
	subSess, err := broker.Connect(context.Background(), cfg, broker.WithDialer(b.Dialer()))
	require.NoError(t, err)
	defer subSess.Close()

	reg := device.NewRegistry()
	ing := New(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer, err := telemetry.NewConsumer(subSess, telemetry.SensorExchange, telemetry.CoordinatorQueues(), ing.Handle)
	require.NoError(t, err)
	require.NoError(t, consumer.Start(ctx))

	pub := telemetry.NewPublisher(pubSess, telemetry.SensorExchange, nil)
	require.NoError(t, pub.Declare(true))

	// Concurrent readers standing in for control-loop ticks.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = reg.All()
				}
			}
		}()
	}

	const n = 200
	for k := 1; k <= n; k++ {
		v := float64(k)
		msg := telemetry.Message{ID: "temp_sensor_01", Subtype: "temperature", Temperature: &v}
		require.NoError(t, pub.Publish(ctx, "sensor.temperature", msg), fmt.Sprintf("publish %d", k))
	}

	require.Eventually(t, func() bool {
		rec, ok := reg.Get("temp_sensor_01")
		return ok && *rec.Temperature == n
	}, 2*time.Second, 5*time.Millisecond)

	close(stop)
	wg.Wait()

	assert.Eventually(t, func() bool { return b.Acks() == n }, time.Second, 5*time.Millisecond)
	rec, _ := reg.Get("temp_sensor_01")
	assert.InDelta(t, float64(n), *rec.Temperature, 0.001)
}

// acceptingActuator accepts every command and counts them.
type acceptingActuator struct {
	calls atomic.Int64
}

func (a *acceptingActuator) ControlLightBulb(context.Context, *rpc.LightBulbRequest) (*rpc.Response, error) {
	a.calls.Add(1)
	return rpc.OK(), nil
}

func (a *acceptingActuator) ControlAC(context.Context, *rpc.ACRequest) (*rpc.Response, error) {
	a.calls.Add(1)
	return rpc.OK(), nil
}

func (a *acceptingActuator) ControlSprinkler(context.Context, *rpc.SprinklerRequest) (*rpc.Response, error) {
	a.calls.Add(1)
	return rpc.OK(), nil
}

func (a *acceptingActuator) ControlDoor(context.Context, *rpc.DoorRequest) (*rpc.Response, error) {
	a.calls.Add(1)
	return rpc.OK(), nil
}

func (a *acceptingActuator) Close() error { return nil }

// Actuator status and sensor readings interleaved with control loop ticks
// whose dispatches write optimistic state into the same registry. Each
// device still settles on its last message.
func TestInOrderConvergenceWithControlLoop(t *testing.T) {
	b := broker.NewMemoryBroker()
	cfg := config.BrokerConfig{
		Host:     "memory",
		QoS:      1,
		Retry:    config.RetryConfig{MaxAttempts: 1},
		Recovery: config.RecoveryConfig{MaxAttempts: 1},
	}

	cfg.ClientID = "devices"
	pubSess, err := broker.Connect(context.Background(), cfg, broker.WithDialer(b.Dialer()))
	require.NoError(t, err)
	defer pubSess.Close()

	cfg.ClientID = "coordinator"
	subSess, err := broker.Connect(context.Background(), cfg, broker.WithDialer(b.Dialer()))
	require.NoError(t, err)
	defer subSess.Close()

	reg := device.NewRegistry()
	ing := New(reg)
	act := &acceptingActuator{}
	d := dispatch.New(reg, dispatch.ConnectorFunc(func(string) (dispatch.Actuator, error) { return act, nil }))
	loop := automation.NewLoop(reg, d, config.AutomationConfig{
		Enabled:      true,
		TickInterval: time.Millisecond,
		Climate:      config.ClimateConfig{High: 25, Low: 20, Target: 22},
		Lighting:     config.LightingConfig{Low: 300, High: 700},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer, err := telemetry.NewConsumer(subSess, telemetry.SensorExchange, telemetry.CoordinatorQueues(), ing.Handle)
	require.NoError(t, err)
	require.NoError(t, consumer.Start(ctx))

	pub := telemetry.NewPublisher(pubSess, telemetry.SensorExchange, nil)
	require.NoError(t, pub.Declare(true))

	keys := telemetry.Keys{}
	acKey := keys.ActuatorStatus(device.SubtypeAirConditioner, "ac_1")
	lampKey := keys.ActuatorStatus(device.SubtypeLamp, "lamp_1")
	published := 0
	publish := func(key string, msg telemetry.Message) {
		t.Helper()
		require.NoError(t, pub.Publish(ctx, key, msg), fmt.Sprintf("publish %s #%d", key, published))
		published++
	}
	acStatus := func(state string, temp float64) telemetry.Message {
		return telemetry.Message{ID: "ac_1", Subtype: "air_conditioner", State: state, Temperature: &temp, GRPCPort: 50052}
	}
	lampStatus := func(state string, brightness float64) telemetry.Message {
		return telemetry.Message{ID: "lamp_1", Subtype: "lamp", State: state, Brightness: &brightness, GRPCPort: 50051}
	}

	hot, mid := 30.0, 500.0
	publish(acKey, acStatus(device.StateOff, 18))
	publish(lampKey, lampStatus(device.StateOff, 0))
	publish("sensor.temperature", telemetry.Message{ID: "temp_1", Subtype: "temperature", Temperature: &hot, RelatedDevice: "ac_1"})
	publish("sensor.luminosity", telemetry.Message{ID: "lux_1", Subtype: "luminosity", Luminosity: &mid, RelatedDevice: "lamp_1"})

	// Several control loops tick concurrently for the whole stream.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					loop.Tick(ctx)
				}
			}
		}()
	}
	require.Eventually(t, func() bool { return act.calls.Load() > 0 }, 2*time.Second, time.Millisecond,
		"control loop never dispatched")

	const n = 200
	for k := 1; k <= n; k++ {
		temp := 25 + float64(k)/100
		publish("sensor.temperature", telemetry.Message{ID: "temp_1", Subtype: "temperature", Temperature: &temp})

		// The AC reports alternately off and on; the loop keeps turning it
		// back on at the target while it is too warm.
		acState := device.StateOff
		if k%2 == 0 {
			acState = device.StateOn
		}
		publish(acKey, acStatus(acState, 18+float64(k%5)))

		lampState := device.StateOn
		if k%2 == 1 {
			lampState = device.StateOff
		}
		publish(lampKey, lampStatus(lampState, float64(k)/2))
	}
	publish(acKey, acStatus(device.StateOn, 22))

	require.Eventually(t, func() bool { return b.Acks() == published }, 2*time.Second, 5*time.Millisecond)
	close(stop)
	wg.Wait()

	temp, _ := reg.Get("temp_1")
	require.NotNil(t, temp.Temperature)
	assert.InDelta(t, 25+float64(n)/100, *temp.Temperature, 0.001)

	ac, _ := reg.Get("ac_1")
	assert.Equal(t, device.StateOn, ac.State)
	require.NotNil(t, ac.Temperature)
	assert.InDelta(t, 22.0, *ac.Temperature, 0.001)

	lamp, _ := reg.Get("lamp_1")
	assert.Equal(t, device.StateOn, lamp.State)
	require.NotNil(t, lamp.Brightness)
	assert.InDelta(t, float64(n)/2, *lamp.Brightness, 0.001)
}
