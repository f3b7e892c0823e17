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
	"strings"
)

// A Block is one contiguous chunk of an n-dimensional array: the unit of
// out-of-core and parallel processing.
type Block struct {
	ID    []int // coordinates of the block within the chunk grid
	Start []int // inclusive element offsets
	End   []int // exclusive element offsets
}

// Len returns the number of elements in the block.
func (b Block) Len() int {
	n := 1
	for i := range b.Start {
		n *= b.End[i] - b.Start[i]
	}
	return n
}

// Shape returns the edge lengths of the block.
func (b Block) Shape() []int {
	s := make([]int, len(b.Start))
	for i := range b.Start {
		s[i] = b.End[i] - b.Start[i]
	}
	return s
}

// A Chunking partitions each dimension of an array into contiguous blocks.
// Block boundaries are aligned: every chunk of every variable processed
// together uses the same partition.
type Chunking struct {
	Dims  []string // dimension names
	Shape []int    // array shape
	Sizes []int    // block edge length per dimension
}

// NewChunking creates a chunking scheme for an array with the given
// dimension names and shape. A size less than one selects the full
// dimension length.
func NewChunking(dims []string, shape, sizes []int) (Chunking, error) {
	if len(dims) != len(shape) {
		return Chunking{}, fmt.Errorf("kaleido: chunking: %d dimensions but shape has %d axes", len(dims), len(shape))
	}
	if sizes == nil {
		sizes = make([]int, len(shape))
	}
	if len(sizes) != len(shape) {
		return Chunking{}, fmt.Errorf("kaleido: chunking: %d chunk sizes for %d axes", len(sizes), len(shape))
	}
	for i, n := range shape {
		if n < 1 {
			return Chunking{}, configErrorf("kaleido: chunking: dimension %s holds no elements", dims[i])
		}
	}
	s := make([]int, len(sizes))
	for i, size := range sizes {
		if size < 1 || size > shape[i] {
			size = shape[i]
		}
		s[i] = size
	}
	return Chunking{Dims: dims, Shape: shape, Sizes: s}, nil
}

// Counts returns the number of blocks along each dimension.
func (c Chunking) Counts() []int {
	counts := make([]int, len(c.Shape))
	for i, n := range c.Shape {
		counts[i] = (n + c.Sizes[i] - 1) / c.Sizes[i]
	}
	return counts
}

// NumBlocks returns the total number of blocks.
func (c Chunking) NumBlocks() int {
	n := 1
	for _, count := range c.Counts() {
		n *= count
	}
	return n
}

// Block returns the block with the given chunk-grid coordinates.
func (c Chunking) Block(id []int) Block {
	start := make([]int, len(id))
	end := make([]int, len(id))
	for i, j := range id {
		start[i] = j * c.Sizes[i]
		end[i] = start[i] + c.Sizes[i]
		if end[i] > c.Shape[i] {
			end[i] = c.Shape[i]
		}
	}
	bid := make([]int, len(id))
	copy(bid, id)
	return Block{ID: bid, Start: start, End: end}
}

// Blocks returns all blocks in deterministic row-major order.
func (c Chunking) Blocks() []Block {
	counts := c.Counts()
	blocks := make([]Block, 0, c.NumBlocks())
	id := make([]int, len(counts))
	for {
		blocks = append(blocks, c.Block(id))
		i := len(id) - 1
		for ; i >= 0; i-- {
			id[i]++
			if id[i] < counts[i] {
				break
			}
			id[i] = 0
		}
		if i < 0 {
			return blocks
		}
	}
}

// Equal reports whether two chunking schemes partition the same array the
// same way.
func (c Chunking) Equal(o Chunking) bool {
	if len(c.Dims) != len(o.Dims) {
		return false
	}
	for i := range c.Dims {
		if c.Dims[i] != o.Dims[i] || c.Shape[i] != o.Shape[i] || c.Sizes[i] != o.Sizes[i] {
			return false
		}
	}
	return true
}

// Rechunk realigns the block edges of c to the given sizes. Realignment is
// explicit and deterministic: block boundaries are recomputed, data are
// never resampled. A size less than one keeps the existing size for that
// dimension.
func Rechunk(c Chunking, sizes []int) (Chunking, error) {
	if len(sizes) != len(c.Shape) {
		return Chunking{}, fmt.Errorf("kaleido: rechunk: %d chunk sizes for %d axes", len(sizes), len(c.Shape))
	}
	s := make([]int, len(sizes))
	for i, size := range sizes {
		if size < 1 {
			size = c.Sizes[i]
		}
		if size > c.Shape[i] {
			size = c.Shape[i]
		}
		s[i] = size
	}
	return Chunking{Dims: c.Dims, Shape: c.Shape, Sizes: s}, nil
}

// isLateral reports whether a dimension name denotes a latitudinal or
// longitudinal axis.
func isLateral(dim string) bool {
	return strings.HasPrefix(dim, "lat") || strings.HasPrefix(dim, "lon")
}
