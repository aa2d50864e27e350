package transform

import (
	"context"

	"github.com/san-kum/mdsuite/internal/database"
	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/traj"
	"go.uber.org/zap"
)

// IonicCurrentTransform sums charge-weighted velocities over all atoms:
// J(t) = Σ_s q_s Σ_i v_i(t).
type IonicCurrentTransform struct{}

func (t *IonicCurrentTransform) Name() string     { return "ionic_current" }
func (t *IonicCurrentTransform) Output() string   { return IonicCurrent }
func (t *IonicCurrentTransform) Inputs() []string { return []string{traj.Velocities} }

func (t *IonicCurrentTransform) Run(ctx context.Context, exp *project.Experiment) error {
	warnUncharged(exp)
	return systemWide(ctx, exp, t.Inputs(), t.Output(), 3, chargeWeighted)
}

// DipoleMomentTransform sums charge-weighted unwrapped positions:
// M(t) = Σ_s q_s Σ_i r_i(t).
type DipoleMomentTransform struct{}

func (t *DipoleMomentTransform) Name() string     { return "translational_dipole_moment" }
func (t *DipoleMomentTransform) Output() string   { return TranslationalDipoleMoment }
func (t *DipoleMomentTransform) Inputs() []string { return []string{traj.UnwrappedPositions} }

func (t *DipoleMomentTransform) Run(ctx context.Context, exp *project.Experiment) error {
	warnUncharged(exp)
	return systemWide(ctx, exp, t.Inputs(), t.Output(), 3, chargeWeighted)
}

func chargeWeighted(s *project.Species, in []*database.Tensor, acc *database.Tensor) {
	x := in[0]
	for a := 0; a < x.Atoms; a++ {
		for c := 0; c < x.Configs; c++ {
			for d := 0; d < 3; d++ {
				acc.Data[acc.Index(0, c, d)] += s.Charge * x.At(a, c, d)
			}
		}
	}
}

// HeatCurrentTransform computes the integrated heat current
// Σ_i r_i(t)·(KE_i(t) + PE_i(t)).
type HeatCurrentTransform struct{}

func (t *HeatCurrentTransform) Name() string   { return "integrated_heat_current" }
func (t *HeatCurrentTransform) Output() string { return IntegratedHeatCurrent }
func (t *HeatCurrentTransform) Inputs() []string {
	return []string{traj.UnwrappedPositions, traj.KineticEnergy, traj.PotentialEnergy}
}

func (t *HeatCurrentTransform) Run(ctx context.Context, exp *project.Experiment) error {
	return systemWide(ctx, exp, t.Inputs(), t.Output(), 3, func(_ *project.Species, in []*database.Tensor, acc *database.Tensor) {
		pos, ke, pe := in[0], in[1], in[2]
		for a := 0; a < pos.Atoms; a++ {
			for c := 0; c < pos.Configs; c++ {
				e := ke.At(a, c, 0) + pe.At(a, c, 0)
				for d := 0; d < 3; d++ {
					acc.Data[acc.Index(0, c, d)] += pos.At(a, c, d) * e
				}
			}
		}
	})
}

func warnUncharged(exp *project.Experiment) {
	for _, name := range exp.SpeciesNames() {
		if exp.Species[name].Charge == 0 {
			exp.Logger().Warn("species has no charge, it does not contribute", zap.String("species", name))
		}
	}
}
