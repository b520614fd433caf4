package device

import "testing"

func TestSubtypeKind(t *testing.T) {
	for _, s := range SensorSubtypes() {
		if s.Kind() != KindSensor {
			t.Errorf("%s.Kind() = %q, want sensor", s, s.Kind())
		}
	}
	for _, s := range ActuatorSubtypes() {
		if s.Kind() != KindActuator {
			t.Errorf("%s.Kind() = %q, want actuator", s, s.Kind())
		}
	}
	if Subtype("toaster").Valid() {
		t.Error("unknown subtype reported valid")
	}
}

func TestSubtypeValidState(t *testing.T) {
	tests := []struct {
		subtype Subtype
		state   string
		want    bool
	}{
		{SubtypeDoor, StateOpen, true},
		{SubtypeDoor, StateClosed, true},
		{SubtypeDoor, StateOn, false},
		{SubtypeLamp, StateOn, true},
		{SubtypeLamp, StateOpen, false},
		{SubtypePresence, StateOff, true},
		{"", StateOn, false},
	}
	for _, tt := range tests {
		if got := tt.subtype.ValidState(tt.state); got != tt.want {
			t.Errorf("%s.ValidState(%q) = %v, want %v", tt.subtype, tt.state, got, tt.want)
		}
	}
}

func TestEndpointAddress(t *testing.T) {
	if got := (Endpoint{Host: "localhost", Port: 50052}).Address(); got != "localhost:50052" {
		t.Errorf("Address() = %q", got)
	}
	if got := (Endpoint{Host: "::1", Port: 1}).Address(); got != "[::1]:1" {
		t.Errorf("Address() = %q", got)
	}
}

func TestRecordHasEndpoint(t *testing.T) {
	if (Record{}).HasEndpoint() {
		t.Error("empty record has endpoint")
	}
	if (Record{Endpoint: &Endpoint{Host: "h"}}).HasEndpoint() {
		t.Error("portless endpoint reported usable")
	}
	if !(Record{Endpoint: &Endpoint{Host: "h", Port: 1}}).HasEndpoint() {
		t.Error("endpoint with port not reported usable")
	}
}
