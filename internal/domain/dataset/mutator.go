// Package dataset owns the bounded add/drop policy applied to the changing
// dataset on every producer cycle.
package dataset

import (
	"math/rand"
	"sort"
	"time"

	"github.com/ehr/patientsim/internal/domain/observation"
)

// Generator produces fresh observations for a cycle.
type Generator interface {
	GenerateN(n int) []observation.Observation
}

// Plan describes one mutation cycle before it is applied.
type Plan struct {
	// Drop holds the indices removed from the current dataset, ascending.
	Drop []int
	// FullClear is set when the dataset was too small to thin out and
	// every row is dropped.
	FullClear bool
	// Add is the number of fresh records appended.
	Add int
}

// PlanCycle decides which of currentSize rows to drop. When currentSize
// exceeds updatesPerCycle exactly updatesPerCycle distinct indices are
// chosen uniformly at random; otherwise every row is dropped.
func PlanCycle(rng *rand.Rand, currentSize, updatesPerCycle int) Plan {
	if updatesPerCycle < 0 {
		updatesPerCycle = 0
	}
	if currentSize < 0 {
		currentSize = 0
	}

	p := Plan{Add: updatesPerCycle}
	if currentSize > updatesPerCycle {
		p.Drop = rng.Perm(currentSize)[:updatesPerCycle]
		sort.Ints(p.Drop)
		return p
	}

	p.FullClear = true
	p.Drop = make([]int, currentSize)
	for i := range p.Drop {
		p.Drop[i] = i
	}
	return p
}

// Apply removes the planned rows from current, preserving the relative
// order of survivors, and appends fresh. current is not modified.
func (p Plan) Apply(current, fresh []observation.Observation) []observation.Observation {
	out := make([]observation.Observation, 0, max(len(current)-len(p.Drop), 0)+len(fresh))
	if !p.FullClear {
		drop := make(map[int]struct{}, len(p.Drop))
		for _, i := range p.Drop {
			drop[i] = struct{}{}
		}
		for i, row := range current {
			if _, ok := drop[i]; !ok {
				out = append(out, row)
			}
		}
	}
	return append(out, fresh...)
}

// Result summarizes an applied cycle.
type Result struct {
	Previous  int
	Dropped   int
	Added     int
	Total     int
	FullClear bool
}

// Mutator applies the drop-then-add policy. It is not safe for concurrent
// use.
type Mutator struct {
	gen             Generator
	rng             *rand.Rand
	updatesPerCycle int
}

// NewMutator returns a Mutator that replaces updatesPerCycle rows per
// cycle. If seed is 0 a time-based seed is chosen.
func NewMutator(gen Generator, updatesPerCycle int, seed int64) *Mutator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Mutator{
		gen:             gen,
		rng:             rand.New(rand.NewSource(seed)),
		updatesPerCycle: updatesPerCycle,
	}
}

// UpdatesPerCycle returns the configured batch size.
func (m *Mutator) UpdatesPerCycle() int {
	return m.updatesPerCycle
}

// Mutate returns the indices to drop from a dataset of currentSize rows
// and the freshly synthesized rows to append.
func (m *Mutator) Mutate(currentSize int) ([]int, []observation.Observation) {
	p := PlanCycle(m.rng, currentSize, m.updatesPerCycle)
	return p.Drop, m.gen.GenerateN(p.Add)
}

// Cycle runs one full mutation against current and returns the next
// dataset. current is left untouched so a failed persist can discard the
// result.
func (m *Mutator) Cycle(current []observation.Observation) ([]observation.Observation, Result) {
	p := PlanCycle(m.rng, len(current), m.updatesPerCycle)
	next := p.Apply(current, m.gen.GenerateN(p.Add))
	return next, Result{
		Previous:  len(current),
		Dropped:   len(p.Drop),
		Added:     p.Add,
		Total:     len(next),
		FullClear: p.FullClear,
	}
}
