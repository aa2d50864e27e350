package database

// Tensor holds a block of a dataset in atom-major order:
// Data[(a*Configs+c)*Dim+d].
type Tensor struct {
	Atoms   int
	Configs int
	Dim     int
	Data    []float64
}

func NewTensor(atoms, configs, dim int) *Tensor {
	return &Tensor{
		Atoms:   atoms,
		Configs: configs,
		Dim:     dim,
		Data:    make([]float64, atoms*configs*dim),
	}
}

func (t *Tensor) Index(a, c, d int) int {
	return (a*t.Configs+c)*t.Dim + d
}

func (t *Tensor) At(a, c, d int) float64 {
	return t.Data[t.Index(a, c, d)]
}

func (t *Tensor) Set(a, c, d int, v float64) {
	t.Data[t.Index(a, c, d)] = v
}

// Series returns the trajectory of one atom, Configs*Dim values.
func (t *Tensor) Series(a int) []float64 {
	off := a * t.Configs * t.Dim
	return t.Data[off : off+t.Configs*t.Dim]
}

// Frame copies configuration c into dst as Atoms*Dim values.
func (t *Tensor) Frame(c int, dst []float64) []float64 {
	dst = dst[:0]
	for a := 0; a < t.Atoms; a++ {
		off := t.Index(a, c, 0)
		dst = append(dst, t.Data[off:off+t.Dim]...)
	}
	return dst
}

// Frames splits the tensor into per-configuration vectors suitable for
// Database.Write.
func (t *Tensor) Frames() [][]float64 {
	frames := make([][]float64, t.Configs)
	for c := range frames {
		frames[c] = t.Frame(c, make([]float64, 0, t.Atoms*t.Dim))
	}
	return frames
}
