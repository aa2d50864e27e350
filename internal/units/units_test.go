package units

import (
	"errors"
	"math"
	"testing"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name   string
		length float64
		time   float64
	}{
		{"real", 1e-10, 1e-15},
		{"metal", 1e-10, 1e-12},
		{"si", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Lookup(tt.name)
			if err != nil {
				t.Fatalf("lookup failed: %v", err)
			}
			if s.Length != tt.length || s.Time != tt.time {
				t.Errorf("expected length %g time %g, got %g %g", tt.length, tt.time, s.Length, s.Time)
			}
			if !s.Valid() {
				t.Error("expected valid system")
			}
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("furlongs")
	if !errors.Is(err, ErrUnknownUnits) {
		t.Errorf("expected ErrUnknownUnits, got %v", err)
	}
}

func TestRealEnergyIsKcalPerMol(t *testing.T) {
	s, _ := Lookup("real")
	perMol := s.Energy * Avogadro
	if math.Abs(perMol-4184) > 1e-9 {
		t.Errorf("expected 4184 J/mol, got %f", perMol)
	}
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != 4 || names[0] != "lj" {
		t.Errorf("unexpected names: %v", names)
	}
}
