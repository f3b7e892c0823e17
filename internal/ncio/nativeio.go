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
	"reflect"
	"sync"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// nativeSource reads NetCDF4/HDF5 (and classic) files through the native
// Go NetCDF implementation. The underlying handle is not safe for
// concurrent use, so variables are materialized once under a lock and
// chunks are sliced from the cached copy.
type nativeSource struct {
	path string
	g    api.Group

	mx     sync.Mutex
	cached map[string]*nativeVar
}

// nativeVar is one materialized variable, decoded to physical units.
type nativeVar struct {
	dims    []string
	lengths []int
	data    []float64
	pack    *Packing
}

func openNative(path string) (*nativeSource, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ncio: opening %s: %v", path, err)
	}
	return &nativeSource{path: path, g: g, cached: map[string]*nativeVar{}}, nil
}

func (s *nativeSource) Path() string { return s.path }

func (s *nativeSource) Variables() []string { return s.g.ListVariables() }

func (s *nativeSource) Dimensions(v string) []string {
	nv, err := s.variable(v)
	if err != nil {
		return nil
	}
	return nv.dims
}

func (s *nativeSource) Lengths(v string) []int {
	nv, err := s.variable(v)
	if err != nil {
		return nil
	}
	return nv.lengths
}

func (s *nativeSource) Attributes(v string) map[string]string {
	s.mx.Lock()
	defer s.mx.Unlock()
	attrs := map[string]string{}
	vg, err := s.g.GetVarGetter(v)
	if err != nil {
		return attrs
	}
	am := vg.Attributes()
	for _, k := range am.Keys() {
		if val, has := am.Get(k); has {
			if str, ok := val.(string); ok {
				attrs[k] = str
			}
		}
	}
	return attrs
}

func (s *nativeSource) Packing(v string) *Packing {
	nv, err := s.variable(v)
	if err != nil {
		return nil
	}
	return nv.pack
}

func (s *nativeSource) ReadChunk(v string, start, end []int) ([]float64, error) {
	nv, err := s.variable(v)
	if err != nil {
		return nil, err
	}
	if len(start) != len(nv.lengths) {
		return nil, fmt.Errorf("ncio: reading %s from %s: %d corner axes for %d dimensions", v, s.path, len(start), len(nv.lengths))
	}
	if len(start) == 0 {
		// Scalar variable.
		return []float64{nv.data[0]}, nil
	}
	data := make([]float64, boxLen(start, end))
	strides := make([]int, len(nv.lengths))
	stride := 1
	for i := len(nv.lengths) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= nv.lengths[i]
	}
	err = rowSpans(start, end, func(off int, idx []int, n int) error {
		p := 0
		for i, j := range idx {
			p += j * strides[i]
		}
		copy(data[off:off+n], nv.data[p:p+n])
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ncio: reading %s from %s: %v", v, s.path, err)
	}
	return data, nil
}

func (s *nativeSource) Close() error {
	s.g.Close()
	return nil
}

// variable materializes a variable on first access.
func (s *nativeSource) variable(v string) (*nativeVar, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if nv, ok := s.cached[v]; ok {
		return nv, nil
	}
	vg, err := s.g.GetVarGetter(v)
	if err != nil {
		return nil, fmt.Errorf("ncio: no such variable in %s: %s", s.path, v)
	}
	values, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("ncio: reading %s from %s: %v", v, s.path, err)
	}
	nv := &nativeVar{dims: vg.Dimensions()}
	nv.lengths, nv.data, err = flatten(values)
	if err != nil {
		return nil, fmt.Errorf("ncio: reading %s from %s: %v", v, s.path, err)
	}
	if typ := normalizeCDL(vg.Type()); typ != "" {
		am := vg.Attributes()
		nv.pack = packingFor(typ, func(name string) []float64 {
			val, has := am.Get(name)
			if !has {
				return nil
			}
			return nativeAttrFloats(val)
		})
		for i, x := range nv.data {
			nv.data[i] = nv.pack.Decode(x)
		}
	}
	s.cached[v] = nv
	return nv, nil
}

// normalizeCDL maps the native reader's CDL type names onto the
// external types the packing codec understands. Non-numeric types map
// to "".
func normalizeCDL(typ string) string {
	switch typ {
	case "byte", "ubyte":
		return "byte"
	case "short", "ushort":
		return "short"
	case "int", "uint", "int64", "uint64":
		return "int"
	case "float":
		return "float"
	case "double":
		return "double"
	}
	return ""
}

// nativeAttrFloats converts a scalar or slice numeric attribute value to
// float64s, or returns nil for non-numeric attributes.
func nativeAttrFloats(val interface{}) []float64 {
	rv := reflect.ValueOf(val)
	if rv.Kind() == reflect.Slice {
		out := make([]float64, rv.Len())
		for i := range out {
			f, err := toScalar(rv.Index(i))
			if err != nil {
				return nil
			}
			out[i] = f
		}
		return out
	}
	f, err := toScalar(rv)
	if err != nil {
		return nil
	}
	return []float64{f}
}

// flatten converts the nested numeric slices returned by the native
// reader into a flat row-major float64 slice plus dimension lengths.
func flatten(values interface{}) ([]int, []float64, error) {
	var lengths []int
	rv := reflect.ValueOf(values)
	for rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Slice {
		lengths = append(lengths, rv.Len())
		if rv.Len() == 0 {
			return nil, nil, fmt.Errorf("empty dimension")
		}
		rv = rv.Index(0)
	}
	if rv.Kind() != reflect.Slice {
		// Scalar variable.
		f, err := toScalar(rv)
		if err != nil {
			return nil, nil, err
		}
		return []int{}, []float64{f}, nil
	}
	lengths = append(lengths, rv.Len())

	n := 1
	for _, l := range lengths {
		n *= l
	}
	data := make([]float64, 0, n)
	var walk func(v reflect.Value, depth int) error
	walk = func(v reflect.Value, depth int) error {
		if depth == len(lengths)-1 {
			if v.Len() != lengths[depth] {
				return fmt.Errorf("ragged dimension")
			}
			for i := 0; i < v.Len(); i++ {
				f, err := toScalar(v.Index(i))
				if err != nil {
					return err
				}
				data = append(data, f)
			}
			return nil
		}
		if v.Len() != lengths[depth] {
			return fmt.Errorf("ragged dimension")
		}
		for i := 0; i < v.Len(); i++ {
			if err := walk(v.Index(i), depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(reflect.ValueOf(values), 0); err != nil {
		return nil, nil, err
	}
	return lengths, data, nil
}

// toScalar converts one numeric element to float64.
func toScalar(v reflect.Value) (float64, error) {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), nil
	}
	return 0, fmt.Errorf("unsupported element type %s", v.Type())
}
