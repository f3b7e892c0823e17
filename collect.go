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
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/GaryBoone/GoStats/stats"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/kaleido/internal/ncio"
)

// UncSuffix and FilteredSuffix name the uncertainty variables added to
// collect target datasets.
const (
	UncSuffix      = "_unc"
	FilteredSuffix = "_unc_filtered"
)

// CollectConfig configures one collect invocation.
type CollectConfig struct {
	// SourceGlob matches the ensemble member files. Matches are ordered
	// lexicographically; the first match is the nominal member, the
	// remainder are the randomized variants.
	SourceGlob string

	// TargetFile receives the nominal values, the standard uncertainty,
	// and the filtered standard uncertainty.
	TargetFile string

	// SourceType selects the variables to be reduced.
	SourceType string

	// ReaderEngine and WriterEngine select the dataset codecs.
	ReaderEngine string
	WriterEngine string

	// Mode is the operating mode, "multithreading" or "synchronous".
	Mode string

	// Workers bounds the worker pool in multithreading mode.
	Workers int

	// ChunkLat and ChunkLon set the block edge lengths, as for Scatter.
	ChunkLat int
	ChunkLon int

	// FilterFWHM is the full width at half maximum [pixels] of the
	// low-pass filter kernel. Zero selects DefaultFilterFWHM.
	FilterFWHM float64

	// Events receives progress events. It may be nil.
	Events EventSink
}

// Collect reduces an ensemble of randomized variants into the nominal
// value, the standard uncertainty, and a low-pass filtered standard
// uncertainty per variable, and writes them to the target dataset.
func Collect(ctx context.Context, cfg CollectConfig) (err error) {
	status := &runStatus{}
	defer func() {
		if err != nil {
			status.fail()
			sendEvent(cfg.Events, Event{Engine: "collect", Kind: EventRunFailed, Message: err.Error()})
		}
	}()

	status.advance(StateValidatingInput)
	sourceType, err := ResolveSourceType(cfg.SourceType)
	if err != nil {
		return err
	}
	sched, err := NewScheduler(cfg.Mode, cfg.Workers)
	if err != nil {
		return err
	}
	files, err := filepath.Glob(cfg.SourceGlob)
	if err != nil {
		return configErrorf("kaleido: malformed source glob %q: %v", cfg.SourceGlob, err)
	}
	if len(files) < 2 {
		return configErrorf("kaleido: source glob %q matches %d files; need the nominal member and at least one randomized member", cfg.SourceGlob, len(files))
	}
	sort.Strings(files) // the first member is the nominal dataset

	members := make([]ncio.Source, 0, len(files))
	defer func() {
		for _, m := range members {
			m.Close()
		}
	}()
	for _, f := range files {
		m, err := ncio.OpenSource(f, cfg.ReaderEngine)
		if err != nil {
			return err
		}
		members = append(members, m)
	}
	nominal := members[0]
	if err := validateEnsemble(nominal, members[1:], sourceType); err != nil {
		return err
	}
	n := len(members) - 1
	if n == 1 {
		sendEvent(cfg.Events, Event{Engine: "collect", Kind: EventWarning,
			Message: "ensemble holds a single randomized member; standard uncertainties are undefined (NaN)"})
	}

	status.advance(StateBuildingGraph)
	graph := NewGraph()
	staged := make(map[string]*sparse.DenseArray)
	uncDims := make(map[string][]string)
	checks := make(map[string]*consistencyCheck)
	for _, v := range nominal.Variables() {
		chunking, err := variableChunking(nominal, v, cfg.ChunkLat, cfg.ChunkLon)
		if err != nil {
			return err
		}
		out := sparse.ZerosDense(chunking.Shape...)
		staged[v] = out
		buildCopyGraph(graph, nominal, v, chunking, out)
		if _, ok := sourceType.Schema(v); !ok {
			continue
		}
		sendEvent(cfg.Events, Event{Engine: "collect", Kind: EventVariableStarted, Variable: v + UncSuffix})
		unc := sparse.ZerosDense(chunking.Shape...)
		staged[v+UncSuffix] = unc
		uncDims[v] = chunking.Dims
		check := &consistencyCheck{}
		checks[v] = check
		buildReductionGraph(graph, members, v, chunking, unc, check)
		sendEvent(cfg.Events, Event{Engine: "collect", Kind: EventVariableFinished, Variable: v + UncSuffix})
	}

	status.advance(StateExecuting)
	if err := sched.Run(ctx, graph); err != nil {
		return err
	}
	for v, check := range checks {
		if msg := check.report(); msg != "" {
			sendEvent(cfg.Events, Event{Engine: "collect", Kind: EventWarning, Variable: v, Message: msg})
		}
	}
	// The low-pass filter crosses chunk boundaries, so it runs as a
	// whole-array stage after the chunk-local reduction.
	fwhm := cfg.FilterFWHM
	if fwhm == 0 {
		fwhm = DefaultFilterFWHM
	}
	for v, dims := range uncDims {
		staged[v+FilteredSuffix] = GaussianFilter(staged[v+UncSuffix], dims, fwhm)
	}

	status.advance(StateWriting)
	schema, err := ncio.SourceSchema(nominal)
	if err != nil {
		return err
	}
	if schema.Attrs == nil {
		schema.Attrs = map[string]string{}
	}
	schema.Attrs["monte_carlo_software"] = Name
	schema.Attrs["monte_carlo_software_version"] = Version
	schema.Attrs["monte_carlo_ensemble_size"] = strconv.Itoa(n)
	for v, dims := range uncDims {
		attrs := uncertaintyAttrs(nominal.Attributes(v), false)
		schema.AddVar(v+UncSuffix, dims, attrs)
		attrs = uncertaintyAttrs(nominal.Attributes(v), true)
		schema.AddVar(v+FilteredSuffix, dims, attrs)
	}
	if err := writeStaged(cfg.TargetFile, cfg.WriterEngine, schema, staged); err != nil {
		return err
	}
	status.advance(StateClosed)
	return nil
}

// validateEnsemble checks that every randomized member shares the
// nominal member's dimensions, coordinates, and reduced variables. Any
// mismatch is a configuration error reported before computation starts.
func validateEnsemble(nominal ncio.Source, variants []ncio.Source, sourceType *SourceType) error {
	vars := nominal.Variables()
	dimVars := map[string]bool{}
	for _, v := range vars {
		dims := nominal.Dimensions(v)
		if len(dims) == 1 && dims[0] == v {
			dimVars[v] = true // coordinate variable
		}
	}
	for _, m := range variants {
		have := map[string]bool{}
		for _, v := range m.Variables() {
			have[v] = true
		}
		for _, v := range vars {
			_, reduced := sourceType.Schema(v)
			if !reduced && !dimVars[v] {
				continue
			}
			if !have[v] {
				return configErrorf("kaleido: ensemble member %s: missing variable %s", m.Path(), v)
			}
			wantDims, haveDims := nominal.Dimensions(v), m.Dimensions(v)
			if !equalStrings(wantDims, haveDims) {
				return configErrorf("kaleido: ensemble member %s: variable %s has dimensions %v, nominal has %v",
					m.Path(), v, haveDims, wantDims)
			}
			wantLens, haveLens := nominal.Lengths(v), m.Lengths(v)
			if !equalInts(wantLens, haveLens) {
				return configErrorf("kaleido: ensemble member %s: variable %s has shape %v, nominal has %v",
					m.Path(), v, haveLens, wantLens)
			}
			if dimVars[v] {
				if err := equalCoordinates(nominal, m, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// equalCoordinates compares a coordinate variable of two members
// elementwise.
func equalCoordinates(nominal, m ncio.Source, v string) error {
	n := nominal.Lengths(v)[0]
	want, err := nominal.ReadChunk(v, []int{0}, []int{n})
	if err != nil {
		return err
	}
	have, err := m.ReadChunk(v, []int{0}, []int{n})
	if err != nil {
		return err
	}
	for i := range want {
		if want[i] != have[i] {
			return configErrorf("kaleido: ensemble member %s: coordinate %s differs from nominal at index %d: %g != %g",
				m.Path(), v, i, have[i], want[i])
		}
	}
	return nil
}

// A consistencyCheck accumulates the worst deviation of the ensemble
// mean from the nominal value, in units of the standard error of the
// mean. The ensemble mean of unbiased perturbations is expected to be
// statistically centered on the nominal value.
type consistencyCheck struct {
	mx    sync.Mutex
	worst float64
}

func (c *consistencyCheck) update(dev float64) {
	c.mx.Lock()
	if dev > c.worst {
		c.worst = dev
	}
	c.mx.Unlock()
}

func (c *consistencyCheck) report() string {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.worst > 6 {
		return fmt.Sprintf("ensemble mean deviates from the nominal value by up to %.1f standard errors", c.worst)
	}
	return ""
}

// buildReductionGraph adds the chunk tasks that reduce one variable of
// the ensemble. Each output chunk depends only on the corresponding
// input chunk of every member, so the reduction parallelizes exactly
// like the scatter graph. The uncertainty is the unbiased sample
// standard deviation (N-1 divisor) over the randomized members; a single
// randomized member yields NaN rather than a silent zero.
func buildReductionGraph(graph *Graph, members []ncio.Source, v string, chunking Chunking, unc *sparse.DenseArray, check *consistencyCheck) {
	for _, block := range chunking.Blocks() {
		block := block
		graph.Add(&Task{
			Variable: v + UncSuffix,
			Block:    block,
			Run: func(ctx context.Context) error {
				variants := make([][]float64, 0, len(members)-1)
				for _, m := range members[1:] {
					x, err := m.ReadChunk(v, block.Start, block.End)
					if err != nil {
						return err
					}
					variants = append(variants, x)
				}
				x0, err := members[0].ReadChunk(v, block.Start, block.End)
				if err != nil {
					return err
				}
				out := make([]float64, len(x0))
				var worst float64
				for i := range x0 {
					var d stats.Stats
					for _, x := range variants {
						if !math.IsNaN(x[i]) {
							d.Update(x[i])
						}
					}
					if d.Count() < 2 {
						out[i] = math.NaN()
						continue
					}
					out[i] = d.SampleStandardDeviation()
					if out[i] > 0 && !math.IsNaN(x0[i]) {
						sem := out[i] / math.Sqrt(float64(d.Count()))
						if dev := math.Abs(d.Mean()-x0[i]) / sem; dev > worst {
							worst = dev
						}
					}
				}
				check.update(worst)
				storeBlock(unc, block, out)
				return nil
			},
		})
	}
}

// uncertaintyAttrs derives the attributes of an uncertainty variable
// from its source variable.
func uncertaintyAttrs(src map[string]string, filtered bool) map[string]string {
	attrs := map[string]string{}
	for k, v := range src {
		attrs[k] = v
	}
	if sn, ok := attrs["standard_name"]; ok {
		attrs["standard_name"] = sn + " standard_error"
	}
	if ln, ok := attrs["long_name"]; ok {
		attrs["long_name"] = "standard uncertainty of " + ln
	}
	if filtered {
		attrs["comment"] = "filtered variant of standard uncertainty"
	}
	return attrs
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
