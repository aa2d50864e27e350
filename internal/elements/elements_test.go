package elements

import "testing"

func TestMass(t *testing.T) {
	tests := []struct {
		symbol string
		mass   float64
		ok     bool
	}{
		{"Na", 22.990, true},
		{"CL", 35.45, true},
		{"o", 15.999, true},
		{"1", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		m, ok := Mass(tt.symbol)
		if ok != tt.ok || m != tt.mass {
			t.Errorf("symbol %q: expected (%f, %v), got (%f, %v)", tt.symbol, tt.mass, tt.ok, m, ok)
		}
	}
}

func TestIsElement(t *testing.T) {
	for _, s := range []string{"H", "na", " Xe "} {
		if !IsElement(s) {
			t.Errorf("expected %q to be an element", s)
		}
	}
	for _, s := range []string{"", "Na+", "type1"} {
		if IsElement(s) {
			t.Errorf("expected %q not to be an element", s)
		}
	}
}
