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

package ncio

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ctessum/cdf"
)

// cdfSource reads classic NetCDF files. Chunk reads are safe for
// concurrent use because every read creates its own strider over the
// underlying ReaderAt.
type cdfSource struct {
	path    string
	ff      *os.File
	f       *cdf.File
	numrecs int
}

func openCDF(path string) (*cdfSource, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ncio: opening %s: %v", path, err)
	}
	f, err := cdf.Open(ff)
	if err != nil {
		ff.Close()
		return nil, fmt.Errorf("ncio: reading NetCDF header of %s: %v", path, err)
	}
	fi, err := ff.Stat()
	if err != nil {
		ff.Close()
		return nil, fmt.Errorf("ncio: reading %s: %v", path, err)
	}
	// The header reports the record dimension as length zero; the
	// actual record count follows from the file size.
	return &cdfSource{path: path, ff: ff, f: f, numrecs: int(f.Header.NumRecs(fi.Size()))}, nil
}

func (s *cdfSource) Path() string { return s.path }

func (s *cdfSource) Variables() []string { return s.f.Header.Variables() }

func (s *cdfSource) Dimensions(v string) []string { return s.f.Header.Dimensions(v) }

func (s *cdfSource) Lengths(v string) []int {
	ll := s.f.Header.Lengths(v)
	if ll == nil {
		return nil
	}
	lengths := append([]int{}, ll...)
	if len(lengths) > 0 && s.f.Header.IsRecordVariable(v) {
		lengths[0] = s.numrecs
	}
	return lengths
}

func (s *cdfSource) Attributes(v string) map[string]string {
	attrs := map[string]string{}
	for _, a := range s.f.Header.Attributes(v) {
		if val, ok := s.f.Header.GetAttribute(v, a).(string); ok {
			attrs[a] = val
		}
	}
	return attrs
}

func (s *cdfSource) Packing(v string) *Packing {
	typ := cdlType(s.f.Header.ZeroValue(v, 1))
	if typ == "" {
		return nil
	}
	return packingFor(typ, func(name string) []float64 {
		return attrFloats(s.f.Header.GetAttribute(v, name))
	})
}

func (s *cdfSource) ReadChunk(v string, start, end []int) ([]float64, error) {
	if s.f.Header.Dimensions(v) == nil {
		return nil, fmt.Errorf("ncio: no such variable in %s: %s", s.path, v)
	}
	p := s.Packing(v)
	if len(start) == 0 {
		// Scalar variable.
		r := s.f.Reader(v, nil, nil)
		buf := r.Zero(1)
		if nn, err := r.Read(buf); err != nil && !(err == io.EOF && nn == 1) {
			return nil, fmt.Errorf("ncio: %s: reading %s: %v", s.path, v, err)
		}
		data := make([]float64, 1)
		if err := toFloat64(buf, data); err != nil {
			return nil, fmt.Errorf("ncio: %s: reading %s: %v", s.path, v, err)
		}
		data[0] = p.Decode(data[0])
		return data, nil
	}
	data := make([]float64, boxLen(start, end))
	err := rowSpans(start, end, func(off int, idx []int, n int) error {
		// The strider reads the linear span between its two corners,
		// so each contiguous row is read separately.
		corner := make([]int, len(idx))
		copy(corner, idx)
		corner[len(corner)-1] += n - 1
		r := s.f.Reader(v, idx, corner)
		buf := r.Zero(n)
		if nn, err := r.Read(buf); err != nil && !(err == io.EOF && nn == n) {
			return fmt.Errorf("reading %s at %v: %v", v, idx, err)
		}
		return toFloat64(buf, data[off:off+n])
	})
	if err != nil {
		return nil, fmt.Errorf("ncio: %s: %v", s.path, err)
	}
	if p != nil {
		for i, x := range data {
			data[i] = p.Decode(x)
		}
	}
	return data, nil
}

func (s *cdfSource) Close() error { return s.ff.Close() }

// toFloat64 converts a typed NetCDF buffer into dst.
func toFloat64(buf interface{}, dst []float64) error {
	switch b := buf.(type) {
	case []float64:
		copy(dst, b)
	case []float32:
		for i, v := range b {
			dst[i] = float64(v)
		}
	case []int32:
		for i, v := range b {
			dst[i] = float64(v)
		}
	case []int16:
		for i, v := range b {
			dst[i] = float64(v)
		}
	case []uint8:
		for i, v := range b {
			dst[i] = float64(v)
		}
	default:
		return fmt.Errorf("unsupported variable type %T", buf)
	}
	return nil
}

// cdlType names the external type of a typed NetCDF buffer, or returns
// "" for non-numeric variables.
func cdlType(buf interface{}) string {
	switch buf.(type) {
	case []uint8:
		return "byte"
	case []int16:
		return "short"
	case []int32:
		return "int"
	case []float32:
		return "float"
	case []float64:
		return "double"
	}
	return ""
}

// attrFloats converts a numeric NetCDF attribute value to float64s, or
// returns nil for absent or non-numeric attributes.
func attrFloats(val interface{}) []float64 {
	switch v := val.(type) {
	case []float64:
		return append([]float64{}, v...)
	case []float32, []int32, []int16, []uint8:
		out := make([]float64, reflectLen(v))
		if err := toFloat64(v, out); err != nil {
			return nil
		}
		return out
	}
	return nil
}

// reflectLen returns the length of a typed attribute slice.
func reflectLen(v interface{}) int {
	switch b := v.(type) {
	case []float32:
		return len(b)
	case []int32:
		return len(b)
	case []int16:
		return len(b)
	case []uint8:
		return len(b)
	}
	return 0
}

// packSlice encodes physical values into the typed buffer of a packed
// variable. A nil packing writes the values as doubles unchanged.
func packSlice(p *Packing, data []float64) interface{} {
	if p == nil {
		return data
	}
	packed := make([]float64, len(data))
	for i, y := range data {
		packed[i] = p.Encode(y)
	}
	return typedSlice(p.Type, packed)
}

// typedSlice converts float64 values into the typed buffer of an
// external NetCDF type, clamping integral values to the type's range.
func typedSlice(typ string, data []float64) interface{} {
	switch typ {
	case "byte":
		out := make([]uint8, len(data))
		for i, v := range data {
			out[i] = uint8(clampInt(v, 0, math.MaxUint8))
		}
		return out
	case "short":
		out := make([]int16, len(data))
		for i, v := range data {
			out[i] = int16(clampInt(v, math.MinInt16, math.MaxInt16))
		}
		return out
	case "int":
		out := make([]int32, len(data))
		for i, v := range data {
			out[i] = int32(clampInt(v, math.MinInt32, math.MaxInt32))
		}
		return out
	case "float":
		out := make([]float32, len(data))
		for i, v := range data {
			out[i] = float32(v)
		}
		return out
	}
	out := make([]float64, len(data))
	copy(out, data)
	return out
}

// clampInt rounds v to the nearest integer within [lo, hi]. NaN maps
// to zero.
func clampInt(v, lo, hi float64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v)
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return int64(v)
}

// cdfTarget writes classic NetCDF files.
type cdfTarget struct {
	path string
	ff   *os.File
	f    *cdf.File
	pack map[string]*Packing
}

func createCDF(path string, schema *Schema) (*cdfTarget, error) {
	dims := make([]string, len(schema.Dims))
	lengths := make([]int, len(schema.Dims))
	for i, d := range schema.Dims {
		dims[i] = d.Name
		lengths[i] = d.Len
	}
	h := cdf.NewHeader(dims, lengths)
	pack := map[string]*Packing{}
	for _, v := range schema.Vars {
		typ := "double"
		if v.Packing != nil {
			typ = v.Packing.Type
			pack[v.Name] = v.Packing
		}
		h.AddVariable(v.Name, v.Dims, typedSlice(typ, []float64{0}))
		for _, a := range sortedKeys(v.Attrs) {
			h.AddAttribute(v.Name, a, v.Attrs[a])
		}
		addPackingAttrs(h, v.Name, v.Packing)
	}
	for _, a := range sortedKeys(schema.Attrs) {
		h.AddAttribute("", a, schema.Attrs[a])
	}
	h.Define()
	for _, err := range h.Check() {
		return nil, fmt.Errorf("ncio: creating NetCDF schema for %s: %v", path, err)
	}
	ff, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("ncio: creating %s: %v", path, err)
	}
	f, err := cdf.Create(ff, h)
	if err != nil {
		ff.Close()
		os.Remove(path)
		return nil, fmt.Errorf("ncio: creating %s: %v", path, err)
	}
	return &cdfTarget{path: path, ff: ff, f: f, pack: pack}, nil
}

// addPackingAttrs records the packing of a variable in its attributes,
// typed the way the external data are typed.
func addPackingAttrs(h *cdf.Header, v string, p *Packing) {
	if p == nil {
		return
	}
	if p.Scale != 1 {
		h.AddAttribute(v, "scale_factor", []float64{p.Scale})
	}
	if p.Offset != 0 {
		h.AddAttribute(v, "add_offset", []float64{p.Offset})
	}
	if p.HasFill {
		h.AddAttribute(v, "_FillValue", typedSlice(p.Type, []float64{p.Fill}))
	}
	if p.HasMin {
		h.AddAttribute(v, "valid_min", typedSlice(p.Type, []float64{p.ValidMin}))
	}
	if p.HasMax {
		h.AddAttribute(v, "valid_max", typedSlice(p.Type, []float64{p.ValidMax}))
	}
}

func (t *cdfTarget) Path() string { return t.path }

func (t *cdfTarget) WriteChunk(v string, start, end []int, data []float64) error {
	if want, have := boxLen(start, end), len(data); want != have {
		return fmt.Errorf("ncio: writing %s: chunk holds %d elements, box holds %d", v, have, want)
	}
	p := t.pack[v]
	if len(start) == 0 {
		// Scalar variable.
		w := t.f.Writer(v, nil, nil)
		buf := packSlice(p, data[:1])
		if nn, err := w.Write(buf); err != nil && !(err == io.EOF && nn == 1) {
			return fmt.Errorf("ncio: %s: writing %s: %v", t.path, v, err)
		}
		return nil
	}
	err := rowSpans(start, end, func(off int, idx []int, n int) error {
		corner := make([]int, len(idx))
		copy(corner, idx)
		corner[len(corner)-1] += n - 1
		w := t.f.Writer(v, idx, corner)
		if nn, err := w.Write(packSlice(p, data[off:off+n])); err != nil && !(err == io.EOF && nn == n) {
			return fmt.Errorf("writing %s at %v: %v", v, idx, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ncio: %s: %v", t.path, err)
	}
	return nil
}

func (t *cdfTarget) Close() error {
	if err := t.ff.Close(); err != nil {
		return fmt.Errorf("ncio: closing %s: %v", t.path, err)
	}
	return nil
}

func (t *cdfTarget) Abort() error {
	t.ff.Close()
	if err := os.Remove(t.path); err != nil {
		return fmt.Errorf("ncio: removing incomplete %s: %v", t.path, err)
	}
	return nil
}
