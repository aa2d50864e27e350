package traj

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

type extxyzReader struct {
	path  string
	opts  Options
	file  *os.File
	sc    *bufio.Scanner
	line  int
	index int
	meta  *Metadata
	// label is the column holding the species, -1 when absent.
	label int
	// text marks columns declared as strings or logicals.
	text []bool
}

// OpenEXTXYZ opens an extended XYZ file. The Properties key of the first
// comment line defines the columns; pos, force(s) and vel(o) are mapped to
// the standard property names.
func OpenEXTXYZ(path string, opts Options) (Reader, error) {
	r := &extxyzReader{path: path, opts: opts, label: -1}
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

func (r *extxyzReader) Metadata() *Metadata {
	return r.meta
}

func (r *extxyzReader) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.readFrame()
}

func (r *extxyzReader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *extxyzReader) rewind() error {
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
	r.index = 0
	return nil
}

func (r *extxyzReader) inspect() error {
	first, err := r.readFrame()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: %w", r.path, ErrEmpty)
	}
	if err != nil {
		return err
	}
	r.meta.NumAtoms = len(first.Values)
	r.meta.Box = first.Box
	r.meta.SampleRate = 1
	r.meta.Species = speciesIndices(first.Labels)

	lines := r.line
	second, err := r.readFrame()
	switch {
	case err == nil:
		r.meta.SampleRate = second.Step - first.Step
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
	r.meta.NumConfigurations = lines / (r.meta.NumAtoms + 2)
	return nil
}

func (r *extxyzReader) scan() (string, bool) {
	if !r.sc.Scan() {
		return "", false
	}
	r.line++
	return r.sc.Text(), true
}

func (r *extxyzReader) readFrame() (*Frame, error) {
	var countLine string
	for {
		line, ok := r.scan()
		if !ok {
			if err := r.sc.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		if strings.TrimSpace(line) != "" {
			countLine = line
			break
		}
	}
	n, err := strconv.Atoi(strings.TrimSpace(countLine))
	if err != nil || n <= 0 {
		return nil, r.errorf("bad atom count %q", countLine)
	}

	comment, ok := r.scan()
	if !ok {
		return nil, r.errorf("missing comment line")
	}
	info := parseComment(comment)

	f := &Frame{Step: r.index}
	r.index++
	for _, key := range []string{"step", "Step", "Time", "time", "timestep"} {
		if v, ok := info[key]; ok {
			if s, err := strconv.ParseFloat(v, 64); err == nil {
				f.Step = int(s)
				break
			}
		}
	}
	if lattice, ok := info["Lattice"]; ok {
		cell := strings.Fields(lattice)
		if len(cell) != 9 {
			return nil, r.errorf("lattice needs 9 values, got %d", len(cell))
		}
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(cell[4*i], 64)
			if err != nil {
				return nil, r.errorf("bad lattice %q", lattice)
			}
			f.Box[i] = v
		}
	}

	if r.meta == nil {
		spec, ok := info["Properties"]
		if !ok {
			spec = "species:S:1:pos:R:3"
		}
		if err := r.readProperties(spec); err != nil {
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
		if r.label >= 0 {
			f.Labels[a] = fields[r.label]
		} else {
			f.Labels[a] = "X"
		}
	}
	return f, nil
}

// readProperties expands a name:type:count property list into columns.
func (r *extxyzReader) readProperties(spec string) error {
	parts := strings.Split(spec, ":")
	if len(parts)%3 != 0 {
		return r.errorf("bad Properties %q", spec)
	}

	var columns []string
	table := make(map[string][]string)
	for i := 0; i < len(parts); i += 3 {
		name, kind := parts[i], parts[i+1]
		count, err := strconv.Atoi(parts[i+2])
		if err != nil || count <= 0 {
			return r.errorf("bad Properties %q", spec)
		}
		if (name == "species" || name == "element") && kind == "S" {
			r.label = len(columns)
		}
		names := make([]string, count)
		for j := range names {
			names[j] = name
			if count > 1 {
				names[j] = fmt.Sprintf("%s[%d]", name, j)
			}
		}
		columns = append(columns, names...)

		if kind != "R" && kind != "I" {
			for range names {
				r.text = append(r.text, true)
			}
			continue
		}
		for range names {
			r.text = append(r.text, false)
		}
		prop, ok := extxyzProperties[name]
		if !ok {
			prop = name
		}
		table[prop] = names
	}

	r.meta = &Metadata{Columns: columns}
	r.meta.Properties = groupColumns(columns, table, r.opts.Rename)
	return nil
}

func (r *extxyzReader) errorf(format string, args ...any) error {
	return &ParseError{Path: r.path, Line: r.line, Wrapped: fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))}
}

// parseComment splits key=value pairs; values may be double quoted.
func parseComment(line string) map[string]string {
	out := make(map[string]string)
	i := 0
	for i < len(line) {
		for i < len(line) && line[i] == ' ' {
			i++
		}
		start := i
		for i < len(line) && line[i] != '=' && line[i] != ' ' {
			i++
		}
		key := line[start:i]
		if i >= len(line) || line[i] != '=' {
			if key != "" {
				out[key] = "T"
			}
			continue
		}
		i++
		var val string
		if i < len(line) && line[i] == '"' {
			i++
			start = i
			for i < len(line) && line[i] != '"' {
				i++
			}
			val = line[start:i]
			i++
		} else {
			start = i
			for i < len(line) && line[i] != ' ' {
				i++
			}
			val = line[start:i]
		}
		out[key] = val
	}
	return out
}
