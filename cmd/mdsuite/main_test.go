package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"data_range=200", "species=[Na, Cl]", "method=green_kubo", "tau_values=0.5", "empty="})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want := map[string]any{
		"data_range": 200,
		"species":    []any{"Na", "Cl"},
		"method":     "green_kubo",
		"tau_values": 0.5,
		"empty":      nil,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("params (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"data_range", "=3", "x=[1,"} {
		if _, err := parseParams([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestParseRenames(t *testing.T) {
	got, err := parseRenames([]string{"Positions=x,y,z", "Velocities=vx,vy,vz"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want := map[string][]string{
		"Positions":  {"x", "y", "z"},
		"Velocities": {"vx", "vy", "vz"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("renames (-want +got):\n%s", diff)
	}

	if got, err := parseRenames(nil); err != nil || got != nil {
		t.Errorf("expected nil mapping, got %v %v", got, err)
	}
	if _, err := parseRenames([]string{"Positions"}); err == nil {
		t.Error("expected error for missing columns")
	}
}
