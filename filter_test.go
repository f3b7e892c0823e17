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

package kaleido

import (
	"math"
	"testing"

	"github.com/ctessum/sparse"
)

func TestGaussianKernel(t *testing.T) {
	kernel := gaussianKernel(DefaultFilterFWHM * fwhmToSigma)
	var sum float64
	for _, k := range kernel {
		sum += k
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("kernel sum: have %g, want 1", sum)
	}
	for i := range kernel {
		if kernel[i] != kernel[len(kernel)-1-i] {
			t.Errorf("kernel is not symmetric at %d", i)
		}
	}
	if len(gaussianKernel(0)) != 1 {
		t.Error("zero sigma should yield the identity kernel")
	}
}

func TestGaussianFilterConstant(t *testing.T) {
	// A constant field is invariant under normalized convolution, also
	// at the zero-padded latitudinal boundaries.
	data := sparse.ZerosDense(8, 8)
	for i := range data.Elements {
		data.Elements[i] = 5
	}
	out := GaussianFilter(data, []string{"lat", "lon"}, DefaultFilterFWHM)
	for i, v := range out.Elements {
		if math.Abs(v-5) > 1e-9 {
			t.Fatalf("element %d: have %g, want 5", i, v)
		}
	}
}

func TestGaussianFilterNaN(t *testing.T) {
	data := sparse.ZerosDense(8, 8)
	for i := range data.Elements {
		data.Elements[i] = 2
	}
	data.Set(math.NaN(), 3, 4)
	out := GaussianFilter(data, []string{"lat", "lon"}, DefaultFilterFWHM)
	if !math.IsNaN(out.Get(3, 4)) {
		t.Error("missing cells must stay missing")
	}
	if v := out.Get(3, 5); math.IsNaN(v) || math.Abs(v-2) > 1e-9 {
		t.Errorf("neighbor of a missing cell: have %g, want 2", v)
	}
}

func TestGaussianFilterSmoothing(t *testing.T) {
	data := sparse.ZerosDense(16, 16)
	stream := NewStream(StreamID{Selector: 1, Variable: "v", Source: "s"}, []int{0})
	stream.Draws(data.Elements)
	out := GaussianFilter(data, []string{"lat", "lon"}, DefaultFilterFWHM)
	if variance(out.Elements) >= variance(data.Elements) {
		t.Error("filtering should reduce the cell-to-cell variance")
	}
}

func TestGaussianFilterWrap(t *testing.T) {
	// A point source at lon index 0 spreads symmetrically across the
	// antimeridian when the longitudinal axis wraps.
	data := sparse.ZerosDense(1, 16)
	data.Set(1, 0, 0)
	out := GaussianFilter(data, []string{"lat", "lon"}, DefaultFilterFWHM)
	if have, want := out.Get(0, 15), out.Get(0, 1); math.Abs(have-want) > 1e-12 {
		t.Errorf("have %g at the wrapped neighbor, want %g", have, want)
	}
	if out.Get(0, 15) == 0 {
		t.Error("the filter should wrap across the longitudinal boundary")
	}

	// Non-lateral axes are not filtered.
	data = sparse.ZerosDense(4, 4)
	data.Set(1, 1, 1)
	out = GaussianFilter(data, []string{"time", "depth"}, DefaultFilterFWHM)
	for i := range data.Elements {
		if out.Elements[i] != data.Elements[i] {
			t.Fatal("non-lateral dimensions must pass through unfiltered")
		}
	}
}

func variance(x []float64) float64 {
	var sum, sumsq float64
	for _, v := range x {
		sum += v
		sumsq += v * v
	}
	n := float64(len(x))
	mean := sum / n
	return sumsq/n - mean*mean
}
