package traj

// Property names shared by readers, transformations and calculators.
const (
	Positions                 = "Positions"
	ScaledPositions           = "Scaled_Positions"
	UnwrappedPositions        = "Unwrapped_Positions"
	ScaledUnwrappedPositions  = "Scaled_Unwrapped_Positions"
	Velocities                = "Velocities"
	Forces                    = "Forces"
	BoxImages                 = "Box_Images"
	DipoleOrientation         = "Dipole_Orientation_Magnitude"
	AngularVelocitySpherical  = "Angular_Velocity_Spherical"
	AngularVelocityNonSpheric = "Angular_Velocity_Non_Spherical"
	Torque                    = "Torque"
	KineticEnergy             = "KE"
	PotentialEnergy           = "PE"
	Stress                    = "Stress"
)

var lammpsColumns = map[string][]string{
	Positions:                 {"x", "y", "z"},
	ScaledPositions:           {"xs", "ys", "zs"},
	UnwrappedPositions:        {"xu", "yu", "zu"},
	ScaledUnwrappedPositions:  {"xsu", "ysu", "zsu"},
	Velocities:                {"vx", "vy", "vz"},
	Forces:                    {"fx", "fy", "fz"},
	BoxImages:                 {"ix", "iy", "iz"},
	DipoleOrientation:         {"mux", "muy", "muz"},
	AngularVelocitySpherical:  {"omegax", "omegay", "omegaz"},
	AngularVelocityNonSpheric: {"angmomx", "angmomy", "angmomz"},
	Torque:                    {"tqx", "tqy", "tqz"},
	KineticEnergy:             {"c_KE"},
	PotentialEnergy:           {"c_PE"},
	Stress:                    {"c_Stress[1]", "c_Stress[2]", "c_Stress[3]"},
}

var extxyzProperties = map[string]string{
	"pos":        Positions,
	"force":      Forces,
	"forces":     Forces,
	"vel":        Velocities,
	"velo":       Velocities,
	"velocities": Velocities,
}

// groupColumns resolves every property whose columns are all present.
func groupColumns(columns []string, table, rename map[string][]string) map[string][]int {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}

	merged := make(map[string][]string, len(table)+len(rename))
	for k, v := range table {
		merged[k] = v
	}
	for k, v := range rename {
		merged[k] = v
	}

	groups := make(map[string][]int)
	for prop, names := range merged {
		cols := make([]int, 0, len(names))
		for _, name := range names {
			i, ok := index[name]
			if !ok {
				break
			}
			cols = append(cols, i)
		}
		if len(cols) == len(names) && len(cols) > 0 {
			groups[prop] = cols
		}
	}
	return groups
}

func speciesIndices(labels []string) map[string][]int {
	species := make(map[string][]int)
	for i, l := range labels {
		species[l] = append(species[l], i)
	}
	return species
}
