package transform

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/mdsuite/internal/database"
	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/traj"
	"go.uber.org/zap"
)

// Derived system-wide properties.
const (
	IonicCurrent              = "Ionic_Current"
	TranslationalDipoleMoment = "Translational_Dipole_Moment"
	IntegratedHeatCurrent     = "Integrated_Heat_Current"
)

var (
	ErrNoTransformation = errors.New("transform: no transformation produces property")
	ErrUnknown          = errors.New("transform: unknown transformation")
	ErrMissingInput     = errors.New("transform: missing input property")
)

type Transformation interface {
	Name() string
	Output() string
	Inputs() []string
	Run(ctx context.Context, exp *project.Experiment) error
}

type Registry struct {
	factories map[string]func() Transformation
}

func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]func() Transformation)}

	r.factories["unwrap_coordinates"] = func() Transformation { return &UnwrapCoordinates{} }
	r.factories["unwrap_via_indices"] = func() Transformation { return &UnwrapViaIndices{} }
	r.factories["scale_coordinates"] = func() Transformation { return &ScaleCoordinates{} }
	r.factories["scale_unwrapped_coordinates"] = func() Transformation { return &ScaleCoordinates{Unwrapped: true} }
	r.factories["wrap_coordinates"] = func() Transformation { return &WrapCoordinates{} }
	r.factories["ionic_current"] = func() Transformation { return &IonicCurrentTransform{} }
	r.factories["translational_dipole_moment"] = func() Transformation { return &DipoleMomentTransform{} }
	r.factories["integrated_heat_current"] = func() Transformation { return &HeatCurrentTransform{} }

	return r
}

func (r *Registry) Get(name string) (Transformation, error) {
	fn, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return fn(), nil
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve picks the transformation producing property from what the
// experiment already stores.
func (r *Registry) Resolve(exp *project.Experiment, property string) (Transformation, error) {
	var name string
	switch property {
	case traj.UnwrappedPositions:
		switch {
		case exp.HasProperty(traj.BoxImages) && exp.HasProperty(traj.Positions):
			name = "unwrap_via_indices"
		case exp.HasProperty(traj.ScaledUnwrappedPositions):
			name = "scale_unwrapped_coordinates"
		default:
			name = "unwrap_coordinates"
		}
	case traj.Positions:
		if exp.HasProperty(traj.ScaledPositions) {
			name = "scale_coordinates"
		} else {
			name = "wrap_coordinates"
		}
	case IonicCurrent:
		name = "ionic_current"
	case TranslationalDipoleMoment:
		name = "translational_dipole_moment"
	case IntegratedHeatCurrent:
		name = "integrated_heat_current"
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoTransformation, property)
	}
	return r.Get(name)
}

// Ensure makes property available in exp, running transformations for it
// and, recursively, for their missing inputs. Derived properties shorter
// than the experiment, e.g. after more data was added, are recomputed.
func (r *Registry) Ensure(ctx context.Context, exp *project.Experiment, property string) error {
	return r.ensure(ctx, exp, property, make(map[string]bool))
}

func (r *Registry) ensure(ctx context.Context, exp *project.Experiment, property string, visiting map[string]bool) error {
	if exp.HasProperty(property) && !stale(exp, property) {
		return nil
	}
	if visiting[property] {
		return fmt.Errorf("%w: %s needs itself", ErrNoTransformation, property)
	}
	visiting[property] = true
	defer delete(visiting, property)

	t, err := r.Resolve(exp, property)
	if err != nil {
		return err
	}
	for _, in := range t.Inputs() {
		if err := r.ensure(ctx, exp, in, visiting); err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
	}
	exp.Logger().Info("running transformation", zap.String("transformation", t.Name()), zap.String("output", property))
	return t.Run(ctx, exp)
}

// Apply runs the named transformation after ensuring its inputs.
func (r *Registry) Apply(ctx context.Context, exp *project.Experiment, name string) error {
	t, err := r.Get(name)
	if err != nil {
		return err
	}
	for _, in := range t.Inputs() {
		if err := r.Ensure(ctx, exp, in); err != nil {
			return err
		}
	}
	return t.Run(ctx, exp)
}

func stale(exp *project.Experiment, property string) bool {
	db, err := exp.Database()
	if err != nil {
		return false
	}
	path := database.Join(property, property)
	if !db.Exists(path) {
		names := exp.SpeciesNames()
		if len(names) == 0 {
			return false
		}
		path = database.Join(names[0], property)
	}
	info, err := db.Info(path)
	if err != nil {
		return true
	}
	return info.Configurations < exp.NumberOfConfigurations
}

func checkInputs(exp *project.Experiment, inputs []string) error {
	for _, in := range inputs {
		if !exp.HasProperty(in) {
			return fmt.Errorf("%w: %s in %s", ErrMissingInput, in, exp.Name)
		}
	}
	return nil
}

// kernel maps one batch of input tensors, in the order of the inputs, to
// the output tensor of the same atoms and configurations.
type kernel func(in []*database.Tensor) (*database.Tensor, error)

// perSpecies runs a kernel built for every species over the whole
// trajectory in batches and records the output property.
func perSpecies(ctx context.Context, exp *project.Experiment, inputs []string, output string, dim int, build func(*project.Species) kernel) error {
	if err := checkInputs(exp, inputs); err != nil {
		return err
	}
	db, err := exp.Database()
	if err != nil {
		return err
	}
	n := exp.NumberOfConfigurations

	for _, name := range exp.SpeciesNames() {
		s := exp.Species[name]
		out := database.Join(name, output)
		if err := db.AddDataset(out, s.Count(), dim); err != nil {
			return err
		}
		batch := exp.BatchSize(s.Count()*dim*8*(len(inputs)+1), n)
		k := build(s)

		for start := 0; start < n; start += batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			stop := min(start+batch, n)
			in := make([]*database.Tensor, len(inputs))
			for i, prop := range inputs {
				if in[i], err = db.Load(database.Join(name, prop), start, stop, nil); err != nil {
					return err
				}
			}
			result, err := k(in)
			if err != nil {
				return err
			}
			if _, err := db.Write(out, start, result.Frames()); err != nil {
				return err
			}
		}
	}
	return exp.AddProperty(ctx, output)
}

// accumulate adds the contribution of one species batch to acc, a tensor
// of a single pseudo-atom.
type accumulate func(s *project.Species, in []*database.Tensor, acc *database.Tensor)

// systemWide reduces every species into one dataset of a single
// pseudo-atom.
func systemWide(ctx context.Context, exp *project.Experiment, inputs []string, output string, dim int, fn accumulate) error {
	if err := checkInputs(exp, inputs); err != nil {
		return err
	}
	db, err := exp.Database()
	if err != nil {
		return err
	}
	out := database.Join(output, output)
	if err := db.AddDataset(out, 1, dim); err != nil {
		return err
	}
	n := exp.NumberOfConfigurations
	batch := exp.BatchSize(exp.NumberOfAtoms*dim*8*len(inputs), n)

	for start := 0; start < n; start += batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		stop := min(start+batch, n)
		acc := database.NewTensor(1, stop-start, dim)
		for _, name := range exp.SpeciesNames() {
			in := make([]*database.Tensor, len(inputs))
			for i, prop := range inputs {
				if in[i], err = db.Load(database.Join(name, prop), start, stop, nil); err != nil {
					return err
				}
			}
			fn(exp.Species[name], in, acc)
		}
		if _, err := db.Write(out, start, acc.Frames()); err != nil {
			return err
		}
	}
	return exp.AddProperty(ctx, output)
}
