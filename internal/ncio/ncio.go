/*
Copyright © 2026 the Kaleido authors.
This file is part of Kaleido.

Kaleido is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Kaleido is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Kaleido.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package ncio provides the dataset reader and writer engines used by the
// kaleido processing engines. Two engines are available: "cdf" reads and
// writes classic NetCDF files, and "netcdf" reads NetCDF4/HDF5 (and
// classic) files. Engine selection is explicit or by file magic.
package ncio

import (
	"fmt"
	"math"
	"os"
	"sort"
)

// The dataset engine names.
const (
	// EngineCDF reads and writes classic NetCDF (CDF-1) files.
	EngineCDF = "cdf"

	// EngineNetCDF reads NetCDF4/HDF5 and classic files. It does not
	// support writing.
	EngineNetCDF = "netcdf"
)

// A Source is an open dataset handle. Chunk reads must be safe for
// concurrent use; the dataset itself is read-only.
type Source interface {
	// Path returns the file path of the dataset.
	Path() string

	// Variables returns all variable names, coordinate variables
	// included, in the order they appear in the file.
	Variables() []string

	// Dimensions returns the dimension names of a variable.
	Dimensions(v string) []string

	// Lengths returns the dimension lengths of a variable.
	Lengths(v string) []int

	// Attributes returns the string-valued attributes of a variable.
	Attributes(v string) map[string]string

	// Packing returns how a variable's physical values are encoded in
	// the file, or nil for plain unpacked doubles.
	Packing(v string) *Packing

	// ReadChunk reads the row-major elements of the box spanned by the
	// inclusive start and exclusive end corners, decoded to physical
	// float64 values. Fill values and values outside the valid range
	// read as NaN.
	ReadChunk(v string, start, end []int) ([]float64, error)

	// Close releases the dataset handle.
	Close() error
}

// A Packing describes the CF packed-data encoding of a variable:
// physical = packed*Scale + Offset, with Fill and the valid range
// marking missing cells in packed units.
type Packing struct {
	// Type is the external data type: "byte", "short", "int", "float"
	// or "double".
	Type string

	// Scale and Offset are the CF scale_factor and add_offset. A
	// missing scale_factor is 1 and a missing add_offset is 0.
	Scale  float64
	Offset float64

	// Fill is the _FillValue in packed units. HasFill reports whether
	// a fill value applies.
	Fill    float64
	HasFill bool

	// ValidMin and ValidMax bound the valid range in packed units.
	ValidMin float64
	HasMin   bool
	ValidMax float64
	HasMax   bool
}

// Decode converts one packed value to physical units. Fill values and
// values outside the valid range decode to NaN.
func (p *Packing) Decode(x float64) float64 {
	if p == nil {
		return x
	}
	if p.HasFill && x == p.Fill {
		return math.NaN()
	}
	if p.HasMin && x < p.ValidMin {
		return math.NaN()
	}
	if p.HasMax && x > p.ValidMax {
		return math.NaN()
	}
	return x*p.Scale + p.Offset
}

// Encode converts one physical value back to packed units, rounding to
// the nearest representable count for integral types. NaN encodes to
// the fill value.
func (p *Packing) Encode(y float64) float64 {
	if p == nil {
		return y
	}
	if math.IsNaN(y) {
		if p.HasFill {
			return p.Fill
		}
		return math.NaN()
	}
	x := (y - p.Offset) / p.Scale
	if p.integral() {
		x = math.Round(x)
	}
	return x
}

func (p *Packing) integral() bool {
	switch p.Type {
	case "byte", "short", "int":
		return true
	}
	return false
}

// packingFor assembles the packing of a variable from its external type
// and its raw numeric attributes. attr returns the values of a numeric
// attribute, or nil if the attribute is absent or not numeric. The
// result is nil for plain unpacked doubles; integral types without an
// explicit fill value get the NetCDF default fill.
func packingFor(typ string, attr func(name string) []float64) *Packing {
	p := &Packing{Type: typ, Scale: 1}
	var packed bool
	if v := attr("scale_factor"); len(v) > 0 {
		p.Scale, packed = v[0], true
	}
	if v := attr("add_offset"); len(v) > 0 {
		p.Offset, packed = v[0], true
	}
	if v := attr("_FillValue"); len(v) > 0 {
		p.Fill, p.HasFill, packed = v[0], true, true
	}
	if v := attr("valid_range"); len(v) == 2 {
		p.ValidMin, p.HasMin = v[0], true
		p.ValidMax, p.HasMax = v[1], true
		packed = true
	}
	if v := attr("valid_min"); len(v) > 0 {
		p.ValidMin, p.HasMin, packed = v[0], true, true
	}
	if v := attr("valid_max"); len(v) > 0 {
		p.ValidMax, p.HasMax, packed = v[0], true, true
	}
	if typ == "double" && !packed {
		return nil
	}
	if p.integral() && !p.HasFill {
		p.Fill, p.HasFill = defaultFill(typ), true
	}
	return p
}

// defaultFill returns the NetCDF default fill value of an integral
// external type, in packed units.
func defaultFill(typ string) float64 {
	switch typ {
	case "byte":
		return 255
	case "short":
		return -32767
	case "int":
		return -2147483647
	}
	return math.NaN()
}

// A Dim is one named dimension of a dataset schema.
type Dim struct {
	Name string
	Len  int
}

// A Var is one variable of a dataset schema. A non-nil Packing makes
// the variable store CF packed data: physical values passed to
// WriteChunk are encoded to the packed external type on write.
type Var struct {
	Name    string
	Dims    []string
	Attrs   map[string]string
	Packing *Packing
}

// A Schema describes the layout of a target dataset.
type Schema struct {
	Dims  []Dim
	Vars  []Var
	Attrs map[string]string // global attributes
}

// AddVar appends a variable definition to the schema.
func (s *Schema) AddVar(name string, dims []string, attrs map[string]string) {
	s.Vars = append(s.Vars, Var{Name: name, Dims: dims, Attrs: attrs})
}

// HasVar reports whether the schema defines a variable.
func (s *Schema) HasVar(name string) bool {
	for _, v := range s.Vars {
		if v.Name == name {
			return true
		}
	}
	return false
}

// A Target is a writable dataset handle. Exactly one of Close or Abort
// must be called; Abort removes the incomplete file so that no partial
// output is left in a committed state.
type Target interface {
	// Path returns the file path of the dataset.
	Path() string

	// WriteChunk writes the row-major elements of the box spanned by
	// the inclusive start and exclusive end corners.
	WriteChunk(v string, start, end []int, data []float64) error

	// Close commits and releases the dataset.
	Close() error

	// Abort releases the dataset and removes the file.
	Abort() error
}

// OpenSource opens a dataset with the given engine. An empty engine name
// selects the engine by file magic: classic NetCDF files open with the
// cdf engine, anything else with the netcdf engine.
func OpenSource(path, engine string) (Source, error) {
	if engine == "" {
		var err error
		engine, err = sniffEngine(path)
		if err != nil {
			return nil, err
		}
	}
	switch engine {
	case EngineCDF:
		return openCDF(path)
	case EngineNetCDF:
		return openNative(path)
	}
	return nil, fmt.Errorf("ncio: unknown reader engine: %q", engine)
}

// CreateTarget creates a dataset with the given engine and schema. Only
// the cdf engine supports writing.
func CreateTarget(path, engine string, schema *Schema) (Target, error) {
	switch engine {
	case EngineCDF, "":
		return createCDF(path, schema)
	case EngineNetCDF:
		return nil, fmt.Errorf("ncio: the netcdf engine does not support writing; use the cdf engine")
	}
	return nil, fmt.Errorf("ncio: unknown writer engine: %q", engine)
}

// sniffEngine chooses a reader engine from the file magic.
func sniffEngine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("ncio: opening %s: %v", path, err)
	}
	defer f.Close()
	magic := make([]byte, 3)
	if _, err := f.Read(magic); err != nil {
		return "", fmt.Errorf("ncio: reading %s: %v", path, err)
	}
	if string(magic) == "CDF" {
		return EngineCDF, nil
	}
	return EngineNetCDF, nil
}

// SourceSchema derives a target schema from an open source, carrying over
// dimensions, variables, and string attributes.
func SourceSchema(src Source) (*Schema, error) {
	schema := &Schema{Attrs: map[string]string{}}
	seen := map[string]bool{}
	for _, v := range src.Variables() {
		dims := src.Dimensions(v)
		lengths := src.Lengths(v)
		if len(dims) != len(lengths) {
			return nil, fmt.Errorf("ncio: variable %s: %d dimensions but %d lengths", v, len(dims), len(lengths))
		}
		for i, d := range dims {
			if !seen[d] {
				seen[d] = true
				schema.Dims = append(schema.Dims, Dim{Name: d, Len: lengths[i]})
			}
		}
		schema.Vars = append(schema.Vars, Var{
			Name:    v,
			Dims:    dims,
			Attrs:   src.Attributes(v),
			Packing: src.Packing(v),
		})
	}
	return schema, nil
}

// rowSpans calls f once for every contiguous row-major span of the box
// spanned by the inclusive start and exclusive end corners. idx is the
// full index vector of the span's first element and n its length; off is
// the span's offset within the box's row-major element order.
func rowSpans(start, end []int, f func(off int, idx []int, n int) error) error {
	if len(start) == 0 {
		return nil
	}
	last := len(start) - 1
	n := end[last] - start[last]
	idx := make([]int, len(start))
	copy(idx, start)
	off := 0
	for {
		if err := f(off, idx, n); err != nil {
			return err
		}
		off += n
		i := last - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < end[i] {
				break
			}
			idx[i] = start[i]
		}
		if i < 0 {
			return nil
		}
	}
}

// sortedKeys returns the keys of m in sorted order, for deterministic
// attribute layout.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// boxLen returns the number of elements in the box [start, end).
func boxLen(start, end []int) int {
	n := 1
	for i := range start {
		n *= end[i] - start[i]
	}
	return n
}
