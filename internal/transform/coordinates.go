package transform

import (
	"context"
	"math"

	"github.com/san-kum/mdsuite/internal/database"
	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/traj"
)

// UnwrapCoordinates removes periodic boundary jumps from wrapped positions:
// a displacement of at least half a box between consecutive configurations
// is counted as a crossing.
type UnwrapCoordinates struct {
	// Center shifts positions by -box/2 before unwrapping.
	Center bool
}

func (u *UnwrapCoordinates) Name() string     { return "unwrap_coordinates" }
func (u *UnwrapCoordinates) Output() string   { return traj.UnwrappedPositions }
func (u *UnwrapCoordinates) Inputs() []string { return []string{traj.Positions} }

func (u *UnwrapCoordinates) Run(ctx context.Context, exp *project.Experiment) error {
	box := exp.Box
	return perSpecies(ctx, exp, u.Inputs(), u.Output(), 3, func(s *project.Species) kernel {
		// last raw position and accumulated image shift per atom, carried
		// from one batch to the next
		last := make([]float64, s.Count()*3)
		shift := make([]float64, s.Count()*3)
		started := false

		return func(in []*database.Tensor) (*database.Tensor, error) {
			pos := in[0]
			out := database.NewTensor(pos.Atoms, pos.Configs, 3)
			for a := 0; a < pos.Atoms; a++ {
				for d := 0; d < 3; d++ {
					k := a*3 + d
					for c := 0; c < pos.Configs; c++ {
						x := pos.At(a, c, d)
						if u.Center {
							x -= box[d] / 2
						}
						if (c > 0 || started) && box[d] > 0 {
							delta := x - last[k]
							if math.Abs(delta) >= box[d]/2 {
								shift[k] -= math.Copysign(box[d], delta)
							}
						}
						last[k] = x
						out.Set(a, c, d, x+shift[k])
					}
				}
			}
			started = started || pos.Configs > 0
			return out, nil
		}
	})
}

// UnwrapViaIndices unwraps positions with the image flags written by the
// simulation engine.
type UnwrapViaIndices struct{}

func (u *UnwrapViaIndices) Name() string     { return "unwrap_via_indices" }
func (u *UnwrapViaIndices) Output() string   { return traj.UnwrappedPositions }
func (u *UnwrapViaIndices) Inputs() []string { return []string{traj.Positions, traj.BoxImages} }

func (u *UnwrapViaIndices) Run(ctx context.Context, exp *project.Experiment) error {
	box := exp.Box
	return perSpecies(ctx, exp, u.Inputs(), u.Output(), 3, func(*project.Species) kernel {
		return func(in []*database.Tensor) (*database.Tensor, error) {
			pos, images := in[0], in[1]
			out := database.NewTensor(pos.Atoms, pos.Configs, 3)
			for i := range out.Data {
				out.Data[i] = pos.Data[i] + images.Data[i]*box[i%3]
			}
			return out, nil
		}
	})
}

// ScaleCoordinates converts box-fraction coordinates into absolute ones.
type ScaleCoordinates struct {
	Unwrapped bool
}

func (s *ScaleCoordinates) Name() string {
	if s.Unwrapped {
		return "scale_unwrapped_coordinates"
	}
	return "scale_coordinates"
}

func (s *ScaleCoordinates) Output() string {
	if s.Unwrapped {
		return traj.UnwrappedPositions
	}
	return traj.Positions
}

func (s *ScaleCoordinates) Inputs() []string {
	if s.Unwrapped {
		return []string{traj.ScaledUnwrappedPositions}
	}
	return []string{traj.ScaledPositions}
}

func (s *ScaleCoordinates) Run(ctx context.Context, exp *project.Experiment) error {
	box := exp.Box
	return perSpecies(ctx, exp, s.Inputs(), s.Output(), 3, func(*project.Species) kernel {
		return func(in []*database.Tensor) (*database.Tensor, error) {
			out := database.NewTensor(in[0].Atoms, in[0].Configs, 3)
			for i, v := range in[0].Data {
				out.Data[i] = v * box[i%3]
			}
			return out, nil
		}
	})
}

// WrapCoordinates folds unwrapped positions back into [0, box).
type WrapCoordinates struct {
	// Center marks unwrapped positions measured from the box centre, as
	// written by UnwrapCoordinates with Center.
	Center bool
}

func (w *WrapCoordinates) Name() string     { return "wrap_coordinates" }
func (w *WrapCoordinates) Output() string   { return traj.Positions }
func (w *WrapCoordinates) Inputs() []string { return []string{traj.UnwrappedPositions} }

func (w *WrapCoordinates) Run(ctx context.Context, exp *project.Experiment) error {
	box := exp.Box
	return perSpecies(ctx, exp, w.Inputs(), w.Output(), 3, func(*project.Species) kernel {
		return func(in []*database.Tensor) (*database.Tensor, error) {
			out := database.NewTensor(in[0].Atoms, in[0].Configs, 3)
			for i, x := range in[0].Data {
				out.Data[i] = wrap(x, box[i%3], w.Center)
			}
			return out, nil
		}
	})
}

func wrap(x, box float64, center bool) float64 {
	if box <= 0 {
		return x
	}
	if center {
		x += box / 2
	}
	return x - math.Floor(x/box)*box
}
