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
	"strings"
	"testing"
)

func TestResolveSourceType(t *testing.T) {
	s, err := ResolveSourceType("avhrr-sst")
	if err != nil {
		t.Fatal(err)
	}
	schema, ok := s.Schema("sea_surface_temperature")
	if !ok {
		t.Fatal("sea_surface_temperature should be configured for perturbation")
	}
	if schema.Distribution != DistNormal {
		t.Errorf("have %v, want %v", schema.Distribution, DistNormal)
	}
	if schema.UncertaintyVar != "sses_standard_deviation" {
		t.Errorf("have %q, want sses_standard_deviation", schema.UncertaintyVar)
	}
	if schema.Floor != freezingPointSeawater {
		t.Errorf("have %g, want %g", schema.Floor, freezingPointSeawater)
	}
	if _, ok := s.Schema("sses_standard_deviation"); ok {
		t.Error("the uncertainty variable itself must pass through unperturbed")
	}
}

func TestResolveUnknownSourceType(t *testing.T) {
	_, err := ResolveSourceType("no-such-type")
	if err == nil {
		t.Fatal("expected an error for an unknown source type")
	}
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Errorf("have %T, want *ConfigError", err)
	}
}

func TestSourceTypeTags(t *testing.T) {
	tags := SourceTypeTags()
	for _, want := range []string{"avhrr-sst", "cci-oc", "cci-sst"} {
		var found bool
		for _, tag := range tags {
			if tag == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing built-in source type %q in %v", want, tags)
		}
	}
}

func TestConstrain(t *testing.T) {
	v := VarSchema{Floor: 271.35, Ceiling: math.NaN()}
	tests := []struct {
		nominal, perturbed, want float64
	}{
		{280, 282, 282},
		{280, 271.0, 271.35},         // clipped to the floor
		{280, math.NaN(), 280},       // non-finite perturbation falls back
		{280, math.Inf(1), 280},      // non-finite perturbation falls back
		{math.NaN(), 282, math.NaN()}, // missing data stays missing
	}
	for _, test := range tests {
		have := v.Constrain(test.nominal, test.perturbed)
		if have != test.want && !(math.IsNaN(have) && math.IsNaN(test.want)) {
			t.Errorf("Constrain(%g, %g): have %g, want %g", test.nominal, test.perturbed, have, test.want)
		}
	}

	v = VarSchema{Floor: math.NaN(), Ceiling: 1}
	if have := v.Constrain(0.5, 3); have != 1 {
		t.Errorf("have %g, want 1", have)
	}
	if have := v.Constrain(0.5, -10); have != -10 {
		t.Errorf("a disabled floor must not clip: have %g, want -10", have)
	}
}

func TestParseDistribution(t *testing.T) {
	tests := []struct {
		name string
		want Distribution
	}{
		{"normal", DistNormal},
		{"lognormal", DistLognormal},
		{"chlorophyll", DistChlorophyll},
	}
	for _, test := range tests {
		have, err := ParseDistribution(test.name)
		if err != nil {
			t.Fatal(err)
		}
		if have != test.want {
			t.Errorf("%s: have %v, want %v", test.name, have, test.want)
		}
		if have.String() != test.name {
			t.Errorf("have %q, want %q", have.String(), test.name)
		}
	}
	if _, err := ParseDistribution("uniform"); err == nil {
		t.Error("expected an error for an unknown distribution")
	}
}

func TestLoadSourceTypes(t *testing.T) {
	const doc = `
[[sourcetype]]
tag = "test-sst-custom"

  [[sourcetype.variable]]
  name = "sst"
  distribution = "normal"
  uncertainty_variable = "sst_unc"
  coverage = 2.0
  floor = 271.35

  [[sourcetype.variable]]
  name = "wind_speed"
  distribution = "lognormal"
  uncertainty = 0.5
  relative = true
`
	if err := LoadSourceTypes(strings.NewReader(doc)); err != nil {
		t.Fatal(err)
	}
	s, err := ResolveSourceType("test-sst-custom")
	if err != nil {
		t.Fatal(err)
	}
	sst, ok := s.Schema("sst")
	if !ok {
		t.Fatal("sst should be configured")
	}
	if sst.Coverage != 2.0 || sst.Floor != 271.35 || !math.IsNaN(sst.Ceiling) {
		t.Errorf("unexpected schema: %+v", sst)
	}
	wind, ok := s.Schema("wind_speed")
	if !ok {
		t.Fatal("wind_speed should be configured")
	}
	if wind.Distribution != DistLognormal || !wind.Relative || !math.IsNaN(wind.Floor) {
		t.Errorf("unexpected schema: %+v", wind)
	}

	// Registering the same tag twice is an error.
	err = LoadSourceTypes(strings.NewReader("[[sourcetype]]\ntag = \"test-sst-custom\"\n"))
	if err == nil {
		t.Fatal("expected an error for a duplicate tag")
	}
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Errorf("have %T, want *ConfigError", err)
	}
}
