package automation

import (
	"fmt"

	"github.com/nerrad567/gray-logic-homesim/internal/device"
	"github.com/nerrad567/gray-logic-homesim/internal/dispatch"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/config"
)

// Decision is the command a rule wants sent to an actuator.
type Decision struct {
	Action string
	Params dispatch.Params
	Reason string
}

// Rule compares a sensor with its paired actuator. It returns false when
// the actuator already matches the desired state or the reading is inside
// the hold band.
type Rule func(sensor, actuator device.Record) (Decision, bool)

// pairing binds a sensor subtype to the actuator subtype it drives.
type pairing struct {
	actuator device.Subtype
	rule     Rule
}

func pairings(cfg config.AutomationConfig) map[device.Subtype]pairing {
	return map[device.Subtype]pairing{
		device.SubtypeTemperature: {device.SubtypeAirConditioner, ClimateRule(cfg.Climate)},
		device.SubtypeLuminosity:  {device.SubtypeLamp, LightingRule(cfg.Lighting)},
		device.SubtypePresence:    {device.SubtypeDoor, AccessRule()},
	}
}

// ClimateRule turns the air conditioner on at the target setpoint above
// High and off below Low. Between the two nothing changes.
func ClimateRule(cfg config.ClimateConfig) Rule {
	return func(sensor, ac device.Record) (Decision, bool) {
		if sensor.Temperature == nil {
			return Decision{}, false
		}
		reading := *sensor.Temperature

		switch {
		case reading > cfg.High:
			onTarget := ac.Temperature != nil && *ac.Temperature == cfg.Target
			if ac.State == device.StateOn && onTarget {
				return Decision{}, false
			}
			return Decision{
				Action: device.StateOn,
				Params: dispatch.Params{dispatch.ParamTemperature: cfg.Target},
				Reason: fmt.Sprintf("temperature %.1f above %.1f", reading, cfg.High),
			}, true
		case reading < cfg.Low:
			if ac.State == device.StateOff {
				return Decision{}, false
			}
			return Decision{
				Action: device.StateOff,
				Reason: fmt.Sprintf("temperature %.1f below %.1f", reading, cfg.Low),
			}, true
		}
		return Decision{}, false
	}
}

// LightingRule switches the lamp on below Low and off above High.
func LightingRule(cfg config.LightingConfig) Rule {
	return func(sensor, lamp device.Record) (Decision, bool) {
		if sensor.Luminosity == nil {
			return Decision{}, false
		}
		reading := *sensor.Luminosity

		var want, reason string
		switch {
		case reading < cfg.Low:
			want, reason = device.StateOn, fmt.Sprintf("luminosity %.0f below %.0f", reading, cfg.Low)
		case reading > cfg.High:
			want, reason = device.StateOff, fmt.Sprintf("luminosity %.0f above %.0f", reading, cfg.High)
		default:
			return Decision{}, false
		}
		if lamp.State == want {
			return Decision{}, false
		}
		return Decision{Action: want, Reason: reason}, true
	}
}

// AccessRule opens the door while presence is detected and closes it
// otherwise.
func AccessRule() Rule {
	return func(sensor, door device.Record) (Decision, bool) {
		var want string
		switch sensor.State {
		case device.StateOn:
			want = device.StateOpen
		case device.StateOff:
			want = device.StateClosed
		default:
			return Decision{}, false
		}
		if door.State == want {
			return Decision{}, false
		}
		return Decision{Action: want, Reason: "presence " + sensor.State}, true
	}
}
