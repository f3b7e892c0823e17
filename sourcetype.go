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
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/BurntSushi/toml"
)

// freezingPointSeawater is the freezing point of seawater [K] at a
// salinity of 35 psu, used as the physical floor for perturbed
// sea-surface temperatures.
const freezingPointSeawater = 271.35

// A Distribution is the type of measurement error distribution of a
// variable.
type Distribution int

// The supported measurement error distributions.
const (
	// DistNormal adds normally distributed errors to the measured value.
	DistNormal Distribution = iota

	// DistLognormal multiplies the measured value with log-normally
	// distributed errors, preserving its sign.
	DistLognormal

	// DistChlorophyll is the log-normal error model for ESA CCI ocean
	// colour chlorophyll, where the uncertainty is the RMSD of the
	// decimal logarithm of the concentration.
	DistChlorophyll
)

func (d Distribution) String() string {
	switch d {
	case DistNormal:
		return "normal"
	case DistLognormal:
		return "lognormal"
	case DistChlorophyll:
		return "chlorophyll"
	}
	return fmt.Sprintf("unknown(%d)", int(d))
}

// ParseDistribution converts a distribution name to a Distribution.
func ParseDistribution(s string) (Distribution, error) {
	switch s {
	case "normal":
		return DistNormal, nil
	case "lognormal":
		return DistLognormal, nil
	case "chlorophyll":
		return DistChlorophyll, nil
	}
	return 0, configErrorf("kaleido: unknown error distribution: %q", s)
}

// A VarSchema configures the perturbation of one variable of a source
// type.
type VarSchema struct {
	// Name is the variable name within the source dataset.
	Name string

	// Distribution is the measurement error distribution.
	Distribution Distribution

	// Uncertainty is a constant standard uncertainty used when no
	// uncertainty variable is configured.
	Uncertainty float64

	// UncertaintyVar names a companion variable holding the per-cell
	// standard uncertainty.
	UncertaintyVar string

	// RMSDVar and BiasVar name companion variables from which the
	// uncertainty is computed as sqrt(rmsd² - bias²). They take
	// precedence over UncertaintyVar.
	RMSDVar string
	BiasVar string

	// Coverage is the coverage factor k of the reported uncertainty.
	// The uncertainty is divided by it before scaling. Zero means 1.
	Coverage float64

	// Relative indicates that the uncertainty is given relative to the
	// measured value.
	Relative bool

	// Floor and Ceiling are the physical bounds the perturbed value is
	// clipped to. NaN disables a bound. Clipping near a bound truncates
	// the realized error distribution, which reduces its variance there.
	Floor   float64
	Ceiling float64
}

// Constrain applies the physical bounds of the variable to a raw
// perturbed value. It is pure and elementwise: safe to invoke per chunk,
// in parallel, in any order. Non-finite perturbed values fall back to the
// nominal value.
func (v VarSchema) Constrain(nominal, perturbed float64) float64 {
	if math.IsNaN(nominal) || math.IsInf(nominal, 0) {
		return nominal
	}
	if math.IsNaN(perturbed) || math.IsInf(perturbed, 0) {
		return nominal
	}
	if !math.IsNaN(v.Floor) && perturbed < v.Floor {
		perturbed = v.Floor
	}
	if !math.IsNaN(v.Ceiling) && perturbed > v.Ceiling {
		perturbed = v.Ceiling
	}
	return perturbed
}

// coverage returns the effective coverage factor.
func (v VarSchema) coverage() float64 {
	if v.Coverage == 0 {
		return 1
	}
	return v.Coverage
}

// A SourceType describes how the variables of one product family are
// perturbed. Source types form a closed registry: a tag is resolved into
// a concrete SourceType once, at configuration-validation time.
type SourceType struct {
	// Tag identifies the source type, e.g. "avhrr-sst".
	Tag string

	// Vars configures the perturbed variables. Variables of the source
	// dataset that are not listed here pass through unchanged.
	Vars []VarSchema

	byName map[string]int
}

// Schema returns the perturbation schema for a variable, if the variable
// is configured for perturbation.
func (s *SourceType) Schema(variable string) (VarSchema, bool) {
	i, ok := s.byName[variable]
	if !ok {
		return VarSchema{}, false
	}
	return s.Vars[i], true
}

// index (re)builds the variable lookup table.
func (s *SourceType) index() {
	s.byName = make(map[string]int, len(s.Vars))
	for i, v := range s.Vars {
		s.byName[v.Name] = i
	}
}

var sourceTypes = map[string]*SourceType{}

func init() {
	for _, s := range []*SourceType{
		{
			Tag: "avhrr-sst",
			Vars: []VarSchema{
				{
					Name:           "sea_surface_temperature",
					Distribution:   DistNormal,
					UncertaintyVar: "sses_standard_deviation",
					Floor:          freezingPointSeawater,
					Ceiling:        math.NaN(),
				},
			},
		},
		{
			Tag: "cci-sst",
			Vars: []VarSchema{
				{
					Name:           "analysed_sst",
					Distribution:   DistNormal,
					UncertaintyVar: "analysed_sst_uncertainty",
					Floor:          freezingPointSeawater,
					Ceiling:        math.NaN(),
				},
			},
		},
		{
			Tag: "cci-oc",
			Vars: []VarSchema{
				{
					Name:           "chlor_a",
					Distribution:   DistChlorophyll,
					UncertaintyVar: "chlor_a_log10_rmsd",
					Floor:          math.NaN(),
					Ceiling:        math.NaN(),
				},
			},
		},
	} {
		if err := RegisterSourceType(s); err != nil {
			panic(err)
		}
	}
}

// RegisterSourceType adds a source type to the registry. Registering an
// already-registered tag is an error.
func RegisterSourceType(s *SourceType) error {
	if s.Tag == "" {
		return configErrorf("kaleido: source type tag must not be empty")
	}
	if _, ok := sourceTypes[s.Tag]; ok {
		return configErrorf("kaleido: source type already registered: %q", s.Tag)
	}
	s.index()
	sourceTypes[s.Tag] = s
	return nil
}

// ResolveSourceType resolves a source-type tag into its schema. An
// unknown tag is a configuration error.
func ResolveSourceType(tag string) (*SourceType, error) {
	s, ok := sourceTypes[tag]
	if !ok {
		return nil, configErrorf("kaleido: unknown source type: %q (known: %v)", tag, SourceTypeTags())
	}
	return s, nil
}

// SourceTypeTags returns the registered source-type tags in sorted order.
func SourceTypeTags() []string {
	tags := make([]string, 0, len(sourceTypes))
	for tag := range sourceTypes {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// sourceTypeFile is the TOML layout of a custom source-type schema file.
type sourceTypeFile struct {
	SourceType []struct {
		Tag      string `toml:"tag"`
		Variable []struct {
			Name           string  `toml:"name"`
			Distribution   string  `toml:"distribution"`
			Uncertainty    float64 `toml:"uncertainty"`
			UncertaintyVar string  `toml:"uncertainty_variable"`
			RMSDVar        string  `toml:"rmsd_variable"`
			BiasVar        string  `toml:"bias_variable"`
			Coverage       float64 `toml:"coverage"`
			Relative       bool    `toml:"relative"`
			Floor          *float64 `toml:"floor"`
			Ceiling        *float64 `toml:"ceiling"`
		} `toml:"variable"`
	} `toml:"sourcetype"`
}

// LoadSourceTypes reads custom source-type schemas from a TOML stream and
// adds them to the registry.
func LoadSourceTypes(r io.Reader) error {
	var file sourceTypeFile
	if _, err := toml.NewDecoder(r).Decode(&file); err != nil {
		return configErrorf("kaleido: reading source type schema: %v", err)
	}
	for _, st := range file.SourceType {
		s := &SourceType{Tag: st.Tag}
		for _, v := range st.Variable {
			dist, err := ParseDistribution(v.Distribution)
			if err != nil {
				return err
			}
			vs := VarSchema{
				Name:           v.Name,
				Distribution:   dist,
				Uncertainty:    v.Uncertainty,
				UncertaintyVar: v.UncertaintyVar,
				RMSDVar:        v.RMSDVar,
				BiasVar:        v.BiasVar,
				Coverage:       v.Coverage,
				Relative:       v.Relative,
				Floor:          math.NaN(),
				Ceiling:        math.NaN(),
			}
			if v.Floor != nil {
				vs.Floor = *v.Floor
			}
			if v.Ceiling != nil {
				vs.Ceiling = *v.Ceiling
			}
			s.Vars = append(s.Vars, vs)
		}
		if err := RegisterSourceType(s); err != nil {
			return err
		}
	}
	return nil
}
