package calculators

import (
	"fmt"
	"sort"
)

// Factory builds a calculator from user parameters.
type Factory func(params map[string]any) (Calculator, error)

type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.factories[EinsteinDiffusionName] = NewEinsteinDiffusion
	r.factories[GreenKuboDiffusionName] = NewGreenKuboDiffusion
	r.factories[DistinctDiffusionName] = NewDistinctDiffusion
	r.factories[RDFName] = NewRDF
	r.factories[KirkwoodBuffName] = NewKirkwoodBuff
	r.factories[NernstEinsteinName] = NewNernstEinstein
	r.factories[EinsteinHelfandName] = NewEinsteinHelfand
	r.factories[GreenKuboConductivityName] = NewGreenKuboConductivity
	r.factories[MolecularGraphName] = NewMolecularGraph

	return r
}

func (r *Registry) Get(name string, params map[string]any) (Calculator, error) {
	fn, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return fn(params)
}

// Factory returns a factory bound to name, for building one calculator per
// experiment.
func (r *Registry) Factory(name string, params map[string]any) (func() (Calculator, error), error) {
	if _, ok := r.factories[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return func() (Calculator, error) { return r.Get(name, params) }, nil
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
