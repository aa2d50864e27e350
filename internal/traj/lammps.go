package traj

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

const lammpsHeaderLines = 9

type lammpsReader struct {
	path   string
	opts   Options
	file   *os.File
	sc     *bufio.Scanner
	line   int
	meta   *Metadata
	labels int
	id     int
	// text marks the label columns, the only ones allowed to be non-numeric
	text []bool
}

// OpenLAMMPS opens a LAMMPS text dump. The first configurations are parsed
// up front to build the metadata; the atom ordering of the first
// configuration defines the species indices.
func OpenLAMMPS(path string, opts Options) (Reader, error) {
	r := &lammpsReader{path: path, opts: opts, labels: -1, id: -1}
	if err := r.rewind(); err != nil {
		return nil, err
	}
	if err := r.inspect(); err != nil {
		r.Close()
		return nil, err
	}
	if err := r.rewind(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *lammpsReader) Metadata() *Metadata {
	return r.meta
}

func (r *lammpsReader) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := r.readFrame()
	if err != nil {
		return nil, err
	}
	if len(f.Values) != r.meta.NumAtoms {
		return nil, r.errorf("configuration at step %d has %d atoms, expected %d", f.Step, len(f.Values), r.meta.NumAtoms)
	}
	return f, nil
}

func (r *lammpsReader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *lammpsReader) rewind() error {
	if r.file != nil {
		r.file.Close()
	}
	f, err := os.Open(r.path)
	if err != nil {
		return err
	}
	r.file = f
	r.sc = bufio.NewScanner(f)
	r.sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	r.line = 0
	return nil
}

func (r *lammpsReader) inspect() error {
	first, err := r.readFrame()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: %w", r.path, ErrEmpty)
	}
	if err != nil {
		return err
	}

	meta := &Metadata{
		NumAtoms:   len(first.Values),
		Box:        first.Box,
		SampleRate: 1,
		Species:    speciesIndices(first.Labels),
	}
	meta.Columns = r.meta.Columns
	meta.Properties = groupColumns(meta.Columns, lammpsColumns, r.opts.Rename)

	lines := r.line
	second, err := r.readFrame()
	switch {
	case err == nil:
		meta.SampleRate = second.Step - first.Step
		lines = r.line
	case !errors.Is(err, io.EOF):
		return err
	}

	for r.sc.Scan() {
		if strings.TrimSpace(r.sc.Text()) != "" {
			lines++
		}
	}
	if err := r.sc.Err(); err != nil {
		return err
	}
	meta.NumConfigurations = lines / (meta.NumAtoms + lammpsHeaderLines)

	r.meta = meta
	return nil
}

func (r *lammpsReader) scan() (string, bool) {
	if !r.sc.Scan() {
		return "", false
	}
	r.line++
	return r.sc.Text(), true
}

func (r *lammpsReader) readFrame() (*Frame, error) {
	var head [lammpsHeaderLines]string
	for i := 0; i < lammpsHeaderLines; i++ {
		line, ok := r.scan()
		if !ok {
			if err := r.sc.Err(); err != nil {
				return nil, err
			}
			if i == 0 {
				return nil, io.EOF
			}
			return nil, r.errorf("truncated header")
		}
		if i == 0 && strings.TrimSpace(line) == "" {
			i--
			continue
		}
		head[i] = line
	}

	f := &Frame{}
	step, err := strconv.Atoi(strings.TrimSpace(head[1]))
	if err != nil {
		return nil, r.errorf("bad timestep %q", head[1])
	}
	f.Step = step

	fields := strings.Fields(head[3])
	if len(fields) == 0 {
		return nil, r.errorf("missing atom count")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return nil, r.errorf("bad atom count %q", head[3])
	}

	for i := 0; i < 3; i++ {
		b := strings.Fields(head[5+i])
		if len(b) < 2 {
			return nil, r.errorf("bad box bounds %q", head[5+i])
		}
		lo, err1 := strconv.ParseFloat(b[0], 64)
		hi, err2 := strconv.ParseFloat(b[1], 64)
		if err1 != nil || err2 != nil {
			return nil, r.errorf("bad box bounds %q", head[5+i])
		}
		f.Box[i] = hi - lo
	}

	if r.meta == nil {
		if err := r.readColumns(head[8]); err != nil {
			return nil, err
		}
	}
	ncols := len(r.meta.Columns)

	f.Values = make([][]float64, n)
	f.Labels = make([]string, n)
	for a := 0; a < n; a++ {
		line, ok := r.scan()
		if !ok {
			return nil, r.errorf("expected %d atoms, file ended after %d", n, a)
		}
		fields := strings.Fields(line)
		if len(fields) < ncols {
			return nil, r.errorf("expected %d columns, got %d", ncols, len(fields))
		}
		row := make([]float64, ncols)
		for c := 0; c < ncols; c++ {
			v, err := strconv.ParseFloat(fields[c], 64)
			if err != nil {
				if !r.text[c] {
					return nil, r.errorf("bad %s value %q", r.meta.Columns[c], fields[c])
				}
				v = math.NaN()
			}
			row[c] = v
		}
		f.Values[a] = row
		if r.labels >= 0 {
			f.Labels[a] = fields[r.labels]
		}
	}

	if r.opts.Sort && r.id >= 0 {
		sortByID(f, r.id)
	}
	return f, nil
}

func (r *lammpsReader) readColumns(header string) error {
	fields := strings.Fields(header)
	if len(fields) < 3 || fields[0] != "ITEM:" || fields[1] != "ATOMS" {
		return r.errorf("expected ITEM: ATOMS header, got %q", header)
	}
	columns := fields[2:]
	r.text = make([]bool, len(columns))
	for i, c := range columns {
		switch c {
		case "element":
			r.labels = i
			r.text[i] = true
		case "type":
			r.text[i] = true
			if r.labels < 0 {
				r.labels = i
			}
		case "id":
			r.id = i
		}
	}
	if r.labels < 0 {
		return r.errorf("no element or type column")
	}
	r.meta = &Metadata{Columns: columns}
	return nil
}

func (r *lammpsReader) errorf(format string, args ...any) error {
	return &ParseError{Path: r.path, Line: r.line, Wrapped: fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))}
}

func sortByID(f *Frame, col int) {
	order := make([]int, len(f.Values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return f.Values[order[i]][col] < f.Values[order[j]][col]
	})

	values := make([][]float64, len(order))
	labels := make([]string, len(order))
	for i, o := range order {
		values[i] = f.Values[o]
		labels[i] = f.Labels[o]
	}
	f.Values = values
	f.Labels = labels
}
