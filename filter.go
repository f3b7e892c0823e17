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

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// DefaultFilterFWHM is the default full width at half maximum [pixels] of
// the Gaussian kernel used to low-pass filter uncertainty fields.
const DefaultFilterFWHM = 4.0

// fwhmToSigma converts a full width at half maximum to a standard
// deviation: fwhm = 2 sqrt(2 ln 2) sigma.
const fwhmToSigma = 1.0 / 2.35482

// GaussianFilter applies a lateral Gaussian low-pass filter to data,
// suppressing the cell-to-cell statistical fluctuations caused by finite
// Monte Carlo sampling while preserving large-scale structure.
//
// The filter acts along latitudinal and longitudinal axes only, with the
// longitudinal axis wrapped and all other boundaries zero-padded. NaN is
// not propagated: missing cells keep NaN, and valid cells are filtered
// with renormalized weights.
func GaussianFilter(data *sparse.DenseArray, dims []string, fwhm float64) *sparse.DenseArray {
	kernel := gaussianKernel(fwhm * fwhmToSigma)
	if len(kernel) == 1 {
		return data.Copy()
	}

	// Normalized convolution: filter the values and the weights, then
	// divide, so NaN cells neither spread nor bias their neighbors.
	v := sparse.ZerosDense(data.Shape...)
	w := sparse.ZerosDense(data.Shape...)
	for i, x := range data.Elements {
		if math.IsNaN(x) {
			continue
		}
		v.Elements[i] = x
		w.Elements[i] = 1
	}
	for axis, dim := range dims {
		if !isLateral(dim) {
			continue
		}
		wrap := len(dim) >= 3 && dim[:3] == "lon"
		convolveAxis(v, axis, kernel, wrap)
		convolveAxis(w, axis, kernel, wrap)
	}

	out := sparse.ZerosDense(data.Shape...)
	for i, x := range data.Elements {
		if math.IsNaN(x) || w.Elements[i] == 0 {
			out.Elements[i] = math.NaN()
			continue
		}
		out.Elements[i] = v.Elements[i] / w.Elements[i]
	}
	return out
}

// gaussianKernel returns a normalized Gaussian kernel with the given
// standard deviation [pixels], truncated at three standard deviations.
func gaussianKernel(sigma float64) []float64 {
	if sigma <= 0 {
		return []float64{1}
	}
	radius := int(3*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-x * x / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// convolveAxis convolves the array along one axis, in place. The axis is
// wrapped if wrap is set and zero-padded otherwise.
func convolveAxis(a *sparse.DenseArray, axis int, kernel []float64, wrap bool) {
	n := a.Shape[axis]
	radius := (len(kernel) - 1) / 2

	// Element stride along the axis and the number of lines to process.
	stride := 1
	for i := axis + 1; i < len(a.Shape); i++ {
		stride *= a.Shape[i]
	}
	lines := len(a.Elements) / (n * stride)

	line := make([]float64, n)
	for l := 0; l < lines; l++ {
		for s := 0; s < stride; s++ {
			base := l*n*stride + s
			for i := 0; i < n; i++ {
				line[i] = a.Elements[base+i*stride]
			}
			for i := 0; i < n; i++ {
				var sum float64
				for k, kv := range kernel {
					j := i + k - radius
					if wrap {
						j = ((j % n) + n) % n
					} else if j < 0 || j >= n {
						continue
					}
					sum += kv * line[j]
				}
				a.Elements[base+i*stride] = sum
			}
		}
	}
}
