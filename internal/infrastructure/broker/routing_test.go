package broker

import (
	"errors"
	"testing"
)

// =============================================================================
// Validation Tests
// =============================================================================

func TestValidateExchange(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"sensors_exchange", false},
		{"shutdown_exchange", false},
		{"", true},
		{"a/b", true},
		{"ex#", true},
		{"ex+", true},
		{"ex*", true},
	}
	for _, tt := range tests {
		err := ValidateExchange(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateExchange(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidExchange) {
			t.Errorf("ValidateExchange(%q) error = %v, want ErrInvalidExchange", tt.name, err)
		}
	}
}

func TestValidateRoutingKey(t *testing.T) {
	tests := []struct {
		key     string
		pattern bool
		wantErr bool
	}{
		{"sensor.temperature", false, false},
		{"command.lamp.lamp-1", false, false},
		{"shutdown.sensor-1", false, false},
		{"sensor.*", true, false},
		{"command.#", true, false},
		{"#", true, false},
		{"command.*.lamp-1", true, false},
		{"", false, true},
		{"sensor..temperature", false, true},
		{"sensor.", false, true},
		{"sensor.*", false, true},
		{"command.#", false, true},
		{"#.lamp", true, true},
		{"a.#.b", true, true},
		{"sensor.temp*", true, true},
		{"sensor/temperature", false, true},
		{"sensor.+", true, true},
	}
	for _, tt := range tests {
		err := ValidateRoutingKey(tt.key, tt.pattern)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateRoutingKey(%q, %v) error = %v, wantErr %v", tt.key, tt.pattern, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidRoutingKey) {
			t.Errorf("ValidateRoutingKey(%q) error = %v, want ErrInvalidRoutingKey", tt.key, err)
		}
	}
}

// =============================================================================
// Topic Mapping Tests
// =============================================================================

func TestTopic(t *testing.T) {
	got := Topic("sensors_exchange", "sensor.temperature")
	if want := "sensors_exchange/sensor/temperature"; got != want {
		t.Errorf("Topic() = %q, want %q", got, want)
	}
}

func TestTopicFilter(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"sensor.temperature", "sensors_exchange/sensor/temperature"},
		{"command.lamp.*", "sensors_exchange/command/lamp/+"},
		{"command.#", "sensors_exchange/command/#"},
		{"*.*", "sensors_exchange/+/+"},
	}
	for _, tt := range tests {
		if got := TopicFilter("sensors_exchange", tt.pattern); got != tt.want {
			t.Errorf("TopicFilter(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}

func TestSplitTopic(t *testing.T) {
	ex, key := SplitTopic("sensors_exchange/command/lamp/lamp-1")
	if ex != "sensors_exchange" || key != "command.lamp.lamp-1" {
		t.Errorf("SplitTopic() = (%q, %q)", ex, key)
	}

	ex, key = SplitTopic("bare")
	if ex != "bare" || key != "" {
		t.Errorf("SplitTopic(bare) = (%q, %q)", ex, key)
	}
}

func TestTopicRoundTrip(t *testing.T) {
	keys := []string{"sensor.presence", "command.air_conditioner.ac-1", "shutdown.temp-3"}
	for _, k := range keys {
		ex, got := SplitTopic(Topic("ex", k))
		if ex != "ex" || got != k {
			t.Errorf("round trip %q = (%q, %q)", k, ex, got)
		}
	}
}

// =============================================================================
// Matching Tests
// =============================================================================

func TestMatchRoutingKey(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"sensor.temperature", "sensor.temperature", true},
		{"sensor.temperature", "sensor.luminosity", false},
		{"sensor.*", "sensor.presence", true},
		{"sensor.*", "sensor", false},
		{"sensor.*", "sensor.presence.extra", false},
		{"command.lamp.*", "command.lamp.lamp-1", true},
		{"command.lamp.*", "command.door.door-1", false},
		{"command.#", "command", true},
		{"command.#", "command.door.door-1", true},
		{"#", "anything.at.all", true},
		{"*.temperature", "sensor.temperature", true},
	}
	for _, tt := range tests {
		if got := MatchRoutingKey(tt.pattern, tt.key); got != tt.want {
			t.Errorf("MatchRoutingKey(%q, %q) = %v, want %v", tt.pattern, tt.key, got, tt.want)
		}
	}
}

// The transport filter must select exactly the topics whose routing key
// the pattern selects.
func TestMatchFilterAgreesWithRoutingKey(t *testing.T) {
	patterns := []string{"sensor.*", "command.lamp.*", "command.#", "sensor.temperature", "#"}
	keys := []string{"sensor.temperature", "sensor.presence", "command.lamp.l1", "command.door.d1", "command", "shutdown.s1"}

	for _, p := range patterns {
		for _, k := range keys {
			want := MatchRoutingKey(p, k)
			got := matchFilter(TopicFilter("ex", p), Topic("ex", k))
			if got != want {
				t.Errorf("pattern %q key %q: filter match %v, key match %v", p, k, got, want)
			}
		}
	}
}
