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
	"reflect"
	"testing"
)

func TestChunkingBlocks(t *testing.T) {
	c, err := NewChunking([]string{"lat", "lon"}, []int{5, 4}, []int{2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{3, 2}; !reflect.DeepEqual(c.Counts(), want) {
		t.Errorf("counts: have %v, want %v", c.Counts(), want)
	}
	if c.NumBlocks() != 6 {
		t.Errorf("blocks: have %d, want 6", c.NumBlocks())
	}
	blocks := c.Blocks()
	want := []Block{
		{ID: []int{0, 0}, Start: []int{0, 0}, End: []int{2, 3}},
		{ID: []int{0, 1}, Start: []int{0, 3}, End: []int{2, 4}},
		{ID: []int{1, 0}, Start: []int{2, 0}, End: []int{4, 3}},
		{ID: []int{1, 1}, Start: []int{2, 3}, End: []int{4, 4}},
		{ID: []int{2, 0}, Start: []int{4, 0}, End: []int{5, 3}},
		{ID: []int{2, 1}, Start: []int{4, 3}, End: []int{5, 4}},
	}
	if !reflect.DeepEqual(blocks, want) {
		t.Errorf("have %v, want %v", blocks, want)
	}
	var n int
	for _, b := range blocks {
		n += b.Len()
	}
	if n != 20 {
		t.Errorf("blocks cover %d elements, want 20", n)
	}
}

func TestChunkingDefaults(t *testing.T) {
	// A nil size vector and sizes less than one select the full dimension.
	c, err := NewChunking([]string{"time", "lat"}, []int{3, 7}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{3, 7}; !reflect.DeepEqual(c.Sizes, want) {
		t.Errorf("have %v, want %v", c.Sizes, want)
	}
	if c.NumBlocks() != 1 {
		t.Errorf("have %d blocks, want 1", c.NumBlocks())
	}

	c, err = NewChunking([]string{"lat"}, []int{7}, []int{100})
	if err != nil {
		t.Fatal(err)
	}
	if c.Sizes[0] != 7 {
		t.Errorf("oversized chunk: have %d, want 7", c.Sizes[0])
	}
}

func TestChunkingMismatch(t *testing.T) {
	if _, err := NewChunking([]string{"lat", "lon"}, []int{5}, nil); err == nil {
		t.Error("expected an error for mismatched dimensions and shape")
	}
	if _, err := NewChunking([]string{"lat"}, []int{5}, []int{1, 2}); err == nil {
		t.Error("expected an error for mismatched sizes and shape")
	}
}

func TestChunkingEmptyDimension(t *testing.T) {
	// A dimension without elements cannot be partitioned; this happens
	// for an unlimited dimension holding no records.
	_, err := NewChunking([]string{"time", "lat"}, []int{0, 5}, nil)
	if err == nil {
		t.Fatal("expected an error for an empty dimension")
	}
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Errorf("have %T, want *ConfigError", err)
	}
}

func TestRechunk(t *testing.T) {
	c, err := NewChunking([]string{"lat", "lon"}, []int{10, 10}, []int{4, 4})
	if err != nil {
		t.Fatal(err)
	}
	r, err := Rechunk(c, []int{5, 0})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{5, 4}; !reflect.DeepEqual(r.Sizes, want) {
		t.Errorf("have %v, want %v", r.Sizes, want)
	}
	if r.Equal(c) {
		t.Error("rechunked scheme should differ from the original")
	}
	same, err := Rechunk(c, []int{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if !same.Equal(c) {
		t.Errorf("have %v, want %v", same, c)
	}
}

func TestBlockShape(t *testing.T) {
	b := Block{ID: []int{1, 2}, Start: []int{2, 6}, End: []int{4, 8}}
	if want := []int{2, 2}; !reflect.DeepEqual(b.Shape(), want) {
		t.Errorf("have %v, want %v", b.Shape(), want)
	}
	if b.Len() != 4 {
		t.Errorf("have %d, want 4", b.Len())
	}
}

func TestIsLateral(t *testing.T) {
	tests := []struct {
		dim  string
		want bool
	}{
		{"lat", true},
		{"latitude", true},
		{"lon", true},
		{"longitude", true},
		{"time", false},
		{"depth", false},
	}
	for _, test := range tests {
		if have := isLateral(test.dim); have != test.want {
			t.Errorf("%s: have %v, want %v", test.dim, have, test.want)
		}
	}
}
