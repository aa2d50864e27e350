package traj

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

const (
	FormatAuto   = "auto"
	FormatLAMMPS = "lammps_traj"
	FormatEXTXYZ = "extxyz"
)

var (
	ErrUnknownFormat = errors.New("traj: unknown file format")
	ErrMalformed     = errors.New("traj: malformed trajectory")
	ErrEmpty         = errors.New("traj: no configurations found")
)

// ParseError locates a malformed line in a trajectory file.
type ParseError struct {
	Path    string
	Line    int
	Wrapped error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Wrapped)
}

func (e *ParseError) Unwrap() error {
	return e.Wrapped
}

type Options struct {
	// Rename maps a property name to the file columns holding it, replacing
	// or extending the built-in column table.
	Rename map[string][]string
	// Sort orders the atoms of every configuration by their id column.
	Sort bool
}

type Metadata struct {
	NumAtoms          int
	NumConfigurations int
	Box               [3]float64
	SampleRate        int
	Columns           []string
	Species           map[string][]int
	Properties        map[string][]int
}

// Dimension is 2 when one of the box sides is zero.
func (m *Metadata) Dimension() int {
	for _, l := range m.Box {
		if l == 0 {
			return 2
		}
	}
	return 3
}

func (m *Metadata) SpeciesNames() []string {
	names := make([]string, 0, len(m.Species))
	for name := range m.Species {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Metadata) PropertyNames() []string {
	names := make([]string, 0, len(m.Properties))
	for name := range m.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Frame struct {
	Step int
	Box  [3]float64
	// Labels holds the species label of every row.
	Labels []string
	// Values holds one row per atom and one entry per column; non-numeric
	// columns are NaN.
	Values [][]float64
}

// Gather appends the given columns of the given rows to dst, row by row.
func (f *Frame) Gather(rows, cols []int, dst []float64) []float64 {
	for _, r := range rows {
		row := f.Values[r]
		for _, c := range cols {
			dst = append(dst, row[c])
		}
	}
	return dst
}

type Reader interface {
	Metadata() *Metadata
	// Next returns the next configuration or io.EOF.
	Next(ctx context.Context) (*Frame, error)
	Close() error
}

// Open opens a trajectory file in the given format. FormatAuto picks the
// format from the file extension.
func Open(path, format string, opts Options) (Reader, error) {
	if format == "" || format == FormatAuto {
		format = DetectFormat(path)
	}
	switch format {
	case FormatLAMMPS:
		return OpenLAMMPS(path, opts)
	case FormatEXTXYZ:
		return OpenEXTXYZ(path, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func DetectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xyz", ".extxyz":
		return FormatEXTXYZ
	case ".lammpstrj", ".lammpstraj", ".dump":
		return FormatLAMMPS
	default:
		return ""
	}
}
