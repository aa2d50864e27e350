package config

import "sort"

// Presets are named bundles of calculators.
var Presets = map[string][]CalculatorConfig{
	"diffusion": {
		{Name: "einstein_diffusion_coefficients"},
		{Name: "green_kubo_diffusion_coefficients"},
	},
	"structure": {
		{Name: "radial_distribution_function"},
		{Name: "kirkwood_buff_integrals"},
	},
	"conductivity": {
		{Name: "nernst_einstein_ionic_conductivity"},
		{Name: "einstein_helfand_ionic_conductivity"},
		{Name: "green_kubo_ionic_conductivity"},
	},
	"full": {
		{Name: "einstein_diffusion_coefficients"},
		{Name: "green_kubo_diffusion_coefficients"},
		{Name: "einstein_distinct_diffusion_coefficients"},
		{Name: "radial_distribution_function"},
		{Name: "kirkwood_buff_integrals"},
		{Name: "nernst_einstein_ionic_conductivity"},
		{Name: "einstein_helfand_ionic_conductivity"},
		{Name: "green_kubo_ionic_conductivity"},
	},
}

// GetPreset returns a copy of the preset's calculators, or nil.
func GetPreset(name string) []CalculatorConfig {
	preset, ok := Presets[name]
	if !ok {
		return nil
	}
	return append([]CalculatorConfig(nil), preset...)
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
