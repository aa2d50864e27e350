// Package testutil writes small trajectory fixtures for tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dump describes a LAMMPS text dump. Values is indexed
// [configuration][atom][column] and follows Columns.
type Dump struct {
	Box      [3]float64
	Columns  []string
	Elements []string
	Steps    []int
	Values   [][][]float64
}

func (d Dump) String() string {
	var sb strings.Builder
	for c, frame := range d.Values {
		step := c
		if c < len(d.Steps) {
			step = d.Steps[c]
		}
		fmt.Fprintf(&sb, "ITEM: TIMESTEP\n%d\n", step)
		fmt.Fprintf(&sb, "ITEM: NUMBER OF ATOMS\n%d\n", len(frame))
		sb.WriteString("ITEM: BOX BOUNDS pp pp pp\n")
		for _, l := range d.Box {
			fmt.Fprintf(&sb, "0.0 %g\n", l)
		}
		fmt.Fprintf(&sb, "ITEM: ATOMS id element %s\n", strings.Join(d.Columns, " "))
		for a, row := range frame {
			fmt.Fprintf(&sb, "%d %s", a+1, d.Elements[a])
			for _, v := range row {
				fmt.Fprintf(&sb, " %.10g", v)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// TB is the part of testing.TB the writers need. GinkgoT() satisfies it.
type TB interface {
	Helper()
	TempDir() string
	Fatalf(format string, args ...any)
}

// WriteLAMMPS writes the dump into a temporary directory and returns its path.
func WriteLAMMPS(t TB, name string, d Dump) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(d.String()), 0644); err != nil {
		t.Fatalf("write dump failed: %v", err)
	}
	return path
}

// Linear builds a dump in which every atom moves with a constant velocity:
// positions start at start[a] and advance by vel[a] per configuration.
// Columns are x y z vx vy vz, positions are left unwrapped.
func Linear(elements []string, box [3]float64, start, vel [][3]float64, configs, stride int) Dump {
	d := Dump{
		Box:      box,
		Columns:  []string{"x", "y", "z", "vx", "vy", "vz"},
		Elements: elements,
	}
	for c := 0; c < configs; c++ {
		d.Steps = append(d.Steps, c*stride)
		frame := make([][]float64, len(elements))
		for a := range elements {
			frame[a] = []float64{
				start[a][0] + float64(c)*vel[a][0],
				start[a][1] + float64(c)*vel[a][1],
				start[a][2] + float64(c)*vel[a][2],
				vel[a][0], vel[a][1], vel[a][2],
			}
		}
		d.Values = append(d.Values, frame)
	}
	return d
}
