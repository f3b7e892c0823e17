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
	"runtime"
	"sync"
)

// A Task computes one chunk of one variable. Its Run function fuses the
// node sequence read source chunk, draw stream chunk, apply constraint,
// stage target chunk; the only data dependencies are within the task, so
// sibling tasks may run in any order. Tasks write exclusively to their own
// staged output region and share no mutable state.
type Task struct {
	Variable string
	Block    Block
	Run      func(ctx context.Context) error
}

// A Graph is a lazily constructed set of chunk tasks. Construction is
// decoupled from execution: a graph may be executed by any Scheduler, or
// not at all, with no semantic difference.
type Graph struct {
	tasks []*Task
}

// NewGraph returns an empty graph.
func NewGraph() *Graph { return &Graph{} }

// Add appends a task to the graph.
func (g *Graph) Add(t *Task) { g.tasks = append(g.tasks, t) }

// Merge appends all tasks of o to g.
func (g *Graph) Merge(o *Graph) { g.tasks = append(g.tasks, o.tasks...) }

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int { return len(g.tasks) }

// Tasks returns the tasks in deterministic construction order.
func (g *Graph) Tasks() []*Task { return g.tasks }

// A Scheduler executes a task graph. Because every task derives its
// random sub-stream deterministically from its own identity, any scheduler
// produces bit-identical results for the same graph.
type Scheduler interface {
	Run(ctx context.Context, g *Graph) error
}

// The supported scheduling modes.
const (
	ModeSynchronous    = "synchronous"
	ModeMultithreading = "multithreading"
)

// NewScheduler returns the scheduler for the given operating mode.
// workers bounds the pool in multithreading mode; a value less than one
// selects the number of logical processors.
func NewScheduler(mode string, workers int) (Scheduler, error) {
	switch mode {
	case ModeSynchronous:
		return Synchronous{}, nil
	case ModeMultithreading, "":
		return Workers{N: workers}, nil
	}
	return nil, configErrorf("kaleido: unknown operating mode: %q", mode)
}

// Synchronous executes tasks one at a time, in graph order.
type Synchronous struct{}

// Run implements Scheduler. It stops at the first task error.
func (Synchronous) Run(ctx context.Context, g *Graph) error {
	for _, t := range g.tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.Run(ctx); err != nil {
			return fmt.Errorf("kaleido: variable %s chunk %v: %v", t.Variable, t.Block.ID, err)
		}
	}
	return nil
}

// Workers executes tasks on a bounded worker pool.
type Workers struct {
	// N is the number of workers. A value less than one selects the
	// number of logical processors.
	N int
}

// Run implements Scheduler. Workers pick tasks by striding through the
// graph. On the first task error no new tasks are started; in-flight
// tasks run to completion but the caller discards their results.
func (w Workers) Run(ctx context.Context, g *Graph) error {
	nprocs := w.N
	if nprocs < 1 {
		nprocs = runtime.GOMAXPROCS(0)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mx       sync.Mutex
		firstErr error
	)
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			for ii := pp; ii < len(g.tasks); ii += nprocs {
				if ctx.Err() != nil {
					return
				}
				t := g.tasks[ii]
				if err := t.Run(ctx); err != nil {
					mx.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("kaleido: variable %s chunk %v: %v", t.Variable, t.Block.ID, err)
					}
					mx.Unlock()
					cancel()
					return
				}
			}
		}(pp)
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
