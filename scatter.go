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
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/kaleido/internal/ncio"
)

// DefaultChunkSize is the default block edge length along latitudinal and
// longitudinal dimensions.
const DefaultChunkSize = 512

// ScatterConfig configures one scatter invocation. Each invocation is a
// pure function of its configuration and its input dataset; no ambient
// process state is consulted.
type ScatterConfig struct {
	// SourceFile is the dataset to be perturbed.
	SourceFile string

	// TargetFile receives the randomized variant.
	TargetFile string

	// SourceType selects the perturbation schema.
	SourceType string

	// Selector identifies the ensemble member's random stream. Zero
	// produces the unperturbed nominal member.
	Selector int

	// Antithetic generates the variance-reducing mirror member.
	Antithetic bool

	// ReaderEngine and WriterEngine select the dataset codecs. Empty
	// values select the reader by file magic and the cdf writer.
	ReaderEngine string
	WriterEngine string

	// Mode is the operating mode, "multithreading" or "synchronous".
	Mode string

	// Workers bounds the worker pool in multithreading mode. A value
	// less than one selects the number of logical processors.
	Workers int

	// ChunkLat and ChunkLon set the block edge length along the
	// latitudinal and longitudinal dimensions: -1 selects the full
	// dimension, 0 the default layout, positive values are explicit.
	ChunkLat int
	ChunkLon int

	// Events receives progress events. It may be nil.
	Events EventSink
}

// Scatter generates one statistically constrained randomized variant of
// the source dataset and writes it to the target dataset. Any error
// terminates the whole run; no partially perturbed target is left behind.
func Scatter(ctx context.Context, cfg ScatterConfig) (err error) {
	status := &runStatus{}
	defer func() {
		if err != nil {
			status.fail()
			sendEvent(cfg.Events, Event{Engine: "scatter", Kind: EventRunFailed, Message: err.Error()})
		}
	}()

	status.advance(StateValidatingInput)
	if cfg.Selector < 0 {
		return configErrorf("kaleido: selector must not be negative: %d", cfg.Selector)
	}
	sourceType, err := ResolveSourceType(cfg.SourceType)
	if err != nil {
		return err
	}
	sched, err := NewScheduler(cfg.Mode, cfg.Workers)
	if err != nil {
		return err
	}
	src, err := ncio.OpenSource(cfg.SourceFile, cfg.ReaderEngine)
	if err != nil {
		return err
	}
	defer src.Close()

	status.advance(StateBuildingGraph)
	graph := NewGraph()
	staged := make(map[string]*sparse.DenseArray)
	stem := fileStem(cfg.SourceFile)
	for _, v := range src.Variables() {
		schema, perturbed := sourceType.Schema(v)
		if cfg.Selector == 0 {
			perturbed = false // the nominal member is unperturbed
		}
		chunking, err := variableChunking(src, v, cfg.ChunkLat, cfg.ChunkLon)
		if err != nil {
			return err
		}
		sendEvent(cfg.Events, Event{Engine: "scatter", Kind: EventVariableStarted, Variable: v})
		out := sparse.ZerosDense(chunking.Shape...)
		staged[v] = out
		if perturbed {
			id := StreamID{
				Selector:   cfg.Selector,
				Antithetic: cfg.Antithetic,
				Variable:   v,
				Source:     stem,
			}
			if err := id.Validate(); err != nil {
				return err
			}
			buildPerturbationGraph(graph, src, v, schema, id, chunking, out)
		} else {
			buildCopyGraph(graph, src, v, chunking, out)
		}
		sendEvent(cfg.Events, Event{Engine: "scatter", Kind: EventVariableFinished, Variable: v})
	}

	status.advance(StateExecuting)
	if err := sched.Run(ctx, graph); err != nil {
		return err
	}

	status.advance(StateWriting)
	schema, err := ncio.SourceSchema(src)
	if err != nil {
		return err
	}
	if schema.Attrs == nil {
		schema.Attrs = map[string]string{}
	}
	schema.Attrs["monte_carlo_software"] = Name
	schema.Attrs["monte_carlo_software_version"] = Version
	schema.Attrs["monte_carlo_selector"] = strconv.Itoa(cfg.Selector)
	if cfg.Antithetic {
		schema.Attrs["monte_carlo_antithetic"] = "true"
	}
	if err := writeStaged(cfg.TargetFile, cfg.WriterEngine, schema, staged); err != nil {
		return err
	}
	status.advance(StateClosed)
	return nil
}

// buildPerturbationGraph adds the chunk tasks that randomize one variable.
// Each task reads its source chunk, draws its own deterministic random
// sub-stream, scales the draws to the variable's error distribution,
// applies the physical constraint, and stages the result.
func buildPerturbationGraph(graph *Graph, src ncio.Source, v string, schema VarSchema, id StreamID, chunking Chunking, out *sparse.DenseArray) {
	for _, block := range chunking.Blocks() {
		block := block
		graph.Add(&Task{
			Variable: v,
			Block:    block,
			Run: func(ctx context.Context) error {
				x, err := src.ReadChunk(v, block.Start, block.End)
				if err != nil {
					return err
				}
				u, err := readUncertainty(src, schema, block, x)
				if err != nil {
					return err
				}
				stream := NewStream(id, block.ID)
				y := perturbChunk(schema, stream, x, u)
				storeBlock(out, block, y)
				return nil
			},
		})
	}
}

// buildCopyGraph adds the chunk tasks that pass one variable through
// unchanged.
func buildCopyGraph(graph *Graph, src ncio.Source, v string, chunking Chunking, out *sparse.DenseArray) {
	for _, block := range chunking.Blocks() {
		block := block
		graph.Add(&Task{
			Variable: v,
			Block:    block,
			Run: func(ctx context.Context) error {
				x, err := src.ReadChunk(v, block.Start, block.End)
				if err != nil {
					return err
				}
				storeBlock(out, block, x)
				return nil
			},
		})
	}
}

// readUncertainty assembles the per-cell standard uncertainty of a chunk
// from the schema: either computed from companion RMSD and bias
// variables, read from a companion uncertainty variable, or constant.
func readUncertainty(src ncio.Source, schema VarSchema, block Block, x []float64) ([]float64, error) {
	switch {
	case schema.RMSDVar != "":
		r, err := src.ReadChunk(schema.RMSDVar, block.Start, block.End)
		if err != nil {
			return nil, err
		}
		if schema.BiasVar != "" {
			b, err := src.ReadChunk(schema.BiasVar, block.Start, block.End)
			if err != nil {
				return nil, err
			}
			for i := range r {
				r[i] = math.Sqrt(r[i]*r[i] - b[i]*b[i])
			}
		}
		return r, nil
	case schema.UncertaintyVar != "":
		return src.ReadChunk(schema.UncertaintyVar, block.Start, block.End)
	default:
		u := make([]float64, len(x))
		for i := range u {
			u[i] = schema.Uncertainty
		}
		return u, nil
	}
}

// perturbChunk randomizes the measured values of one chunk. The raw
// draws are standard-normal; the uncertainty scaling and the constraint
// together determine the physically realized error distribution, which
// may be truncated near domain bounds.
func perturbChunk(schema VarSchema, stream *Stream, x, u []float64) []float64 {
	z := make([]float64, len(x))
	stream.Draws(z)
	y := make([]float64, len(x))
	k := schema.coverage()
	for i, xi := range x {
		ui := u[i] / k
		if schema.Relative {
			ui *= xi
		}
		var yi float64
		switch schema.Distribution {
		case DistNormal:
			yi = xi + ui*z[i]
		case DistLognormal:
			yi = lognormal(xi, ui, z[i])
		case DistChlorophyll:
			// ESA CCI OC PUG equation 2.10: the uncertainty is the
			// RMSD of the decimal logarithm of the concentration.
			ui = xi * math.Sqrt(math.Exp(math.Ln10*ui*math.Ln10*ui)-1)
			yi = lognormal(xi, ui, z[i])
		default:
			yi = xi
		}
		y[i] = schema.Constrain(xi, yi)
	}
	return y
}

// lognormal returns a log-normally perturbed value with mean x and
// standard deviation u, using the standard-normal draw z.
func lognormal(x, u, z float64) float64 {
	v := math.Log(1 + (u/x)*(u/x))
	m := math.Log(x) - 0.5*v
	return math.Exp(m + math.Sqrt(v)*z)
}

// variableChunking determines the chunking of one variable: lateral
// dimensions default to DefaultChunkSize, all others to the full
// dimension; chunk-size overrides realign the block edges explicitly.
func variableChunking(src ncio.Source, v string, chunkLat, chunkLon int) (Chunking, error) {
	dims := src.Dimensions(v)
	lengths := src.Lengths(v)
	sizes := make([]int, len(dims))
	overrides := make([]int, len(dims))
	for i, d := range dims {
		switch {
		case strings.HasPrefix(d, "lat"):
			sizes[i] = resolveChunkSize(0, lengths[i])
			overrides[i] = resolveChunkSize(chunkLat, lengths[i])
		case strings.HasPrefix(d, "lon"):
			sizes[i] = resolveChunkSize(0, lengths[i])
			overrides[i] = resolveChunkSize(chunkLon, lengths[i])
		default:
			sizes[i] = lengths[i]
			overrides[i] = lengths[i]
		}
	}
	chunking, err := NewChunking(dims, lengths, sizes)
	if err != nil {
		return Chunking{}, err
	}
	return Rechunk(chunking, overrides)
}

// resolveChunkSize interprets a chunk-size option: -1 selects the full
// dimension, 0 the default layout, positive values are explicit.
func resolveChunkSize(flag, dimLen int) int {
	switch {
	case flag > 0:
		return flag
	case flag == -1:
		return dimLen
	default:
		if dimLen < DefaultChunkSize {
			return dimLen
		}
		return DefaultChunkSize
	}
}

// writeStaged creates the target dataset and writes the staged arrays
// chunk by chunk. On any error the incomplete target is removed.
func writeStaged(path, engine string, schema *ncio.Schema, staged map[string]*sparse.DenseArray) error {
	target, err := ncio.CreateTarget(path, engine, schema)
	if err != nil {
		return err
	}
	for _, v := range schema.Vars {
		out, ok := staged[v.Name]
		if !ok {
			continue
		}
		chunking, err := NewChunking(v.Dims, out.Shape, nil)
		if err != nil {
			target.Abort()
			return err
		}
		for _, block := range chunking.Blocks() {
			if err := target.WriteChunk(v.Name, block.Start, block.End, loadBlock(out, block)); err != nil {
				target.Abort()
				return err
			}
		}
	}
	return target.Close()
}

// fileStem returns the base name of a file without its extension, used
// as part of the random stream identity.
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// blockStrides returns the row-major element strides of an array shape.
func blockStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

// storeBlock copies a chunk's values into its exclusive region of the
// staged array. No two tasks share a region, so no locking is needed.
func storeBlock(dst *sparse.DenseArray, b Block, vals []float64) {
	if len(b.Start) == 0 {
		// Scalar variable.
		copy(dst.Elements, vals)
		return
	}
	strides := blockStrides(dst.Shape)
	i := 0
	forEachRow(b, func(idx []int, n int) {
		p := 0
		for d, j := range idx {
			p += j * strides[d]
		}
		copy(dst.Elements[p:p+n], vals[i:i+n])
		i += n
	})
}

// loadBlock copies a chunk's values out of a staged array.
func loadBlock(src *sparse.DenseArray, b Block) []float64 {
	if len(b.Start) == 0 {
		// Scalar variable.
		return append([]float64{}, src.Elements...)
	}
	strides := blockStrides(src.Shape)
	vals := make([]float64, b.Len())
	i := 0
	forEachRow(b, func(idx []int, n int) {
		p := 0
		for d, j := range idx {
			p += j * strides[d]
		}
		copy(vals[i:i+n], src.Elements[p:p+n])
		i += n
	})
	return vals
}

// forEachRow visits every contiguous row-major span of a block.
func forEachRow(b Block, f func(idx []int, n int)) {
	if len(b.Start) == 0 {
		return
	}
	last := len(b.Start) - 1
	n := b.End[last] - b.Start[last]
	idx := make([]int, len(b.Start))
	copy(idx, b.Start)
	for {
		f(idx, n)
		i := last - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < b.End[i] {
				break
			}
			idx[i] = b.Start[i]
		}
		if i < 0 {
			return
		}
	}
}
