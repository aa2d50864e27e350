// Package units holds the unit systems trajectories are written in and the
// physical constants used to convert analysis results to SI.
package units

import (
	"errors"
	"fmt"
	"sort"
)

// CODATA 2018 / SI exact values.
const (
	Avogadro           = 6.02214076e23
	ElementaryCharge   = 1.602176634e-19
	Boltzmann          = 1.380649e-23
	Planck             = 6.62607015e-34
	ReducedPlanck      = 1.054571817e-34
	SpeedOfLight       = 299792458.0
	StandardPressure   = 100000.0
	StandardAtmosphere = 101325.0
	StandardGravity    = 9.80665
	GoldenRatio        = 1.618033988749895
	CaesiumHyperfine   = 9192631770.0
	LuminousEfficacy   = 683.0
)

var ErrUnknownUnits = errors.New("units: unknown unit system")

// System holds the factors that take a quantity in simulation units to SI.
type System struct {
	Name        string  `yaml:"name" json:"name"`
	Length      float64 `yaml:"length" json:"length"`
	Time        float64 `yaml:"time" json:"time"`
	Energy      float64 `yaml:"energy" json:"energy"`
	Mass        float64 `yaml:"mass" json:"mass"`
	Pressure    float64 `yaml:"pressure" json:"pressure"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	Charge      float64 `yaml:"charge" json:"charge"`
}

var systems = map[string]System{
	"real": {
		Name:        "real",
		Length:      1e-10,
		Time:        1e-15,
		Energy:      4184.0 / Avogadro,
		Mass:        1e-3 / Avogadro,
		Pressure:    StandardAtmosphere,
		Temperature: 1,
		Charge:      ElementaryCharge,
	},
	"metal": {
		Name:        "metal",
		Length:      1e-10,
		Time:        1e-12,
		Energy:      ElementaryCharge,
		Mass:        1e-3 / Avogadro,
		Pressure:    StandardPressure,
		Temperature: 1,
		Charge:      ElementaryCharge,
	},
	"si": {
		Name: "si", Length: 1, Time: 1, Energy: 1, Mass: 1, Pressure: 1, Temperature: 1, Charge: 1,
	},
	"lj": {
		Name: "lj", Length: 1, Time: 1, Energy: 1, Mass: 1, Pressure: 1, Temperature: 1, Charge: 1,
	},
}

// Lookup returns a named unit system.
func Lookup(name string) (System, error) {
	s, ok := systems[name]
	if !ok {
		return System{}, fmt.Errorf("%w: %q", ErrUnknownUnits, name)
	}
	return s, nil
}

func Names() []string {
	names := make([]string, 0, len(systems))
	for name := range systems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Valid reports whether every conversion factor a calculator relies on is set.
func (s System) Valid() bool {
	return s.Length > 0 && s.Time > 0 && s.Energy > 0 && s.Mass > 0 && s.Temperature > 0
}
