package main

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestParseFlags(t *testing.T) {
	f, err := parseFlags([]string{"--id", "lum_1", "--subtype", "luminosity", "--related", "lamp_1", "--interval", "2s"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if f.id != "lum_1" || f.subtype != "luminosity" || f.related != "lamp_1" {
		t.Errorf("flags = %+v", f)
	}
	if f.interval != 2*time.Second {
		t.Errorf("interval = %v, want 2s", f.interval)
	}
}

func TestParseFlags_Defaults(t *testing.T) {
	f, err := parseFlags([]string{"--id", "temp_1"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if f.subtype != "temperature" {
		t.Errorf("subtype = %q, want temperature", f.subtype)
	}
	if f.interval != 10*time.Second {
		t.Errorf("interval = %v, want 10s", f.interval)
	}
}

func TestParseFlags_RejectsActuatorSubtype(t *testing.T) {
	_, err := parseFlags([]string{"--id", "x", "--subtype", "lamp"})
	if err == nil || !strings.Contains(err.Error(), "not a sensor subtype") {
		t.Errorf("parseFlags() error = %v, want sensor subtype error", err)
	}
}

func TestRun_RequiresID(t *testing.T) {
	err := run(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "--id") {
		t.Errorf("run() error = %v, want --id error", err)
	}
}

func TestRun_Help(t *testing.T) {
	if err := run(context.Background(), []string{"-h"}); err != nil {
		t.Errorf("run(-h) error = %v", err)
	}
}
