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
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// A StreamID identifies the random stream of one variable of one ensemble
// member. The same StreamID yields bit-identical streams across process
// restarts, worker counts, and chunk execution order.
type StreamID struct {
	// Selector identifies the ensemble member. It must not be negative.
	Selector int

	// Antithetic selects the variance-reducing mirror stream. Selectors
	// 2k-1 and 2k derive their draws from the common base selector k;
	// the antithetic member negates every draw, so that a run with
	// --antithetic and selector s mirrors the plain run with selector
	// (s+1)/2.
	Antithetic bool

	// Variable is the name of the variable being perturbed.
	Variable string

	// Source is the stem of the source file name, which separates
	// streams of equally-named variables in different products.
	Source string
}

// Validate checks the stream identity before any graph is constructed.
func (id StreamID) Validate() error {
	if id.Selector < 0 {
		return configErrorf("kaleido: selector must not be negative: %d", id.Selector)
	}
	return nil
}

// baseSelector returns the selector the stream seed is derived from.
func (id StreamID) baseSelector() int {
	if id.Antithetic {
		return (id.Selector + 1) / 2
	}
	return id.Selector
}

// seed derives the chunk sub-stream seed from the stream identity and the
// chunk-grid coordinates. A name-based UUID ties the seed to the variable
// and source identity; the selector and block coordinates are folded in by
// hashing, so no two chunks of the same variable share a sub-stream.
func (id StreamID) seed(block []int) uint64 {
	u := uuid.NewSHA1(uuid.NameSpaceURL, []byte(id.Variable+"-"+id.Source))
	buf := make([]byte, 0, len(u)+8+8*len(block))
	buf = append(buf, u[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(id.baseSelector()))
	for _, i := range block {
		buf = binary.BigEndian.AppendUint64(buf, uint64(i))
	}
	return murmur3.Sum64(buf)
}

// A Stream is a deterministic, restartable source of standard-normal
// deviates for one chunk of one variable. Streams are cheap to create and
// are not safe for concurrent use; each chunk task creates its own.
type Stream struct {
	normal     distuv.Normal
	antithetic bool
}

// NewStream derives the random stream for one chunk. Identical inputs
// always yield identical draws.
func NewStream(id StreamID, block []int) *Stream {
	return &Stream{
		normal: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rand.NewSource(id.seed(block)),
		},
		antithetic: id.Antithetic,
	}
}

// NewStreamPair derives a stream and its antithetic mirror for one chunk.
// The mirror's draws are the negation of the base stream's draws, so the
// elementwise average of the paired draws is exactly zero.
func NewStreamPair(id StreamID, block []int) (*Stream, *Stream) {
	base := id
	base.Antithetic = false
	mirror := id
	mirror.Antithetic = true
	mirror.Selector = 2 * id.Selector // pairs with base selector id.Selector
	return NewStream(base, block), NewStream(mirror, block)
}

// Draw returns the next standard-normal deviate.
func (s *Stream) Draw() float64 {
	z := s.normal.Rand()
	if s.antithetic {
		z = -z
	}
	return z
}

// Draws fills dst with standard-normal deviates.
func (s *Stream) Draws(dst []float64) {
	for i := range dst {
		dst[i] = s.Draw()
	}
}
