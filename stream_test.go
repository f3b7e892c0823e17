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
	"errors"
	"math"
	"reflect"
	"testing"
)

func draws(id StreamID, block []int, n int) []float64 {
	z := make([]float64, n)
	NewStream(id, block).Draws(z)
	return z
}

func TestStreamDeterminism(t *testing.T) {
	id := StreamID{Selector: 17, Variable: "sea_surface_temperature", Source: "20100705-n19"}
	a := draws(id, []int{1, 2}, 100)
	b := draws(id, []int{1, 2}, 100)
	if !reflect.DeepEqual(a, b) {
		t.Error("identical stream identities must yield identical draws")
	}
}

func TestStreamIndependence(t *testing.T) {
	id := StreamID{Selector: 17, Variable: "sea_surface_temperature", Source: "20100705-n19"}
	base := draws(id, []int{0, 0}, 100)

	if reflect.DeepEqual(base, draws(id, []int{0, 1}, 100)) {
		t.Error("chunks of one variable must not share a sub-stream")
	}
	other := id
	other.Variable = "analysed_sst"
	if reflect.DeepEqual(base, draws(other, []int{0, 0}, 100)) {
		t.Error("variables must not share a stream")
	}
	other = id
	other.Source = "20100706-n19"
	if reflect.DeepEqual(base, draws(other, []int{0, 0}, 100)) {
		t.Error("source products must not share a stream")
	}
	other = id
	other.Selector = 18
	if reflect.DeepEqual(base, draws(other, []int{0, 0}, 100)) {
		t.Error("ensemble members must not share a stream")
	}
}

func TestStreamPairMirror(t *testing.T) {
	id := StreamID{Selector: 3, Variable: "chlor_a", Source: "esa-cci-oc"}
	base, mirror := NewStreamPair(id, []int{0, 1})
	for i := 0; i < 100; i++ {
		zb, zm := base.Draw(), mirror.Draw()
		if zm != -zb {
			t.Fatalf("draw %d: mirror %g is not the negation of base %g", i, zm, zb)
		}
	}
}

func TestAntitheticSelectors(t *testing.T) {
	// Selectors 2k-1 and 2k share the base selector k; the antithetic
	// member of the pair negates every draw of the plain member k.
	plain := draws(StreamID{Selector: 1, Variable: "v", Source: "s"}, []int{0}, 50)
	odd := draws(StreamID{Selector: 1, Antithetic: true, Variable: "v", Source: "s"}, []int{0}, 50)
	even := draws(StreamID{Selector: 2, Antithetic: true, Variable: "v", Source: "s"}, []int{0}, 50)
	if !reflect.DeepEqual(odd, even) {
		t.Error("antithetic selectors 1 and 2 must share the base stream")
	}
	for i := range plain {
		if odd[i] != -plain[i] {
			t.Fatalf("draw %d: antithetic %g is not the negation of plain %g", i, odd[i], plain[i])
		}
	}
}

func TestStreamMoments(t *testing.T) {
	const n = 200000
	z := draws(StreamID{Selector: 5, Variable: "v", Source: "s"}, []int{0}, n)
	var sum, sumsq float64
	for _, v := range z {
		sum += v
		sumsq += v * v
	}
	mean := sum / n
	variance := sumsq/n - mean*mean
	if math.Abs(mean) > 0.02 {
		t.Errorf("mean: have %g, want 0 ± 0.02", mean)
	}
	if math.Abs(variance-1) > 0.02 {
		t.Errorf("variance: have %g, want 1 ± 0.02", variance)
	}
}

func TestStreamIDValidate(t *testing.T) {
	if err := (StreamID{Selector: 0}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := (StreamID{Selector: -1}).Validate()
	if err == nil {
		t.Fatal("expected an error for a negative selector")
	}
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Errorf("have %T, want *ConfigError", err)
	}
}
