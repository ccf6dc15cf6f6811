// Package pool provides the interned constant and source pools shared by the
// compiler and the virtual machine. Pools are append-only: values are never
// removed or replaced, so an index handed out once stays valid for the life
// of the runtime.
package pool

import (
	"sync"

	"github.com/deepnoodle-ai/riv/sexp"
)

// Pool is an append-only interned table of values addressed by small integer
// keys. Index 0 is reserved for the nil value so that a zero key can mean
// "no entry". Reads and insertions all take the pool's mutex, so lookups
// are serialized with insertions; reads are not lock-free.
type Pool struct {
	mu     sync.Mutex
	values []sexp.Value
	ints   map[int]uint32
	reals  map[float64]uint32
}

// New creates an empty pool with the reserved nil slot at index 0.
func New() *Pool {
	return &Pool{
		values: []sexp.Value{sexp.Nil},
		ints:   map[int]uint32{},
		reals:  map[float64]uint32{},
	}
}

// Insert appends a value and returns its index.
func (p *Pool) Insert(v sexp.Value) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
	return uint32(len(p.values) - 1)
}

// InsertInt interns a scalar integer, deduplicating repeat insertions.
func (p *Pool) InsertInt(n int) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx, ok := p.ints[n]; ok {
		return idx
	}
	v := sexp.ScalarInt(n)
	sexp.SetNamed(v, 2) // interned constants must never be mutated
	p.values = append(p.values, v)
	idx := uint32(len(p.values) - 1)
	p.ints[n] = idx
	return idx
}

// InsertReal interns a scalar real, deduplicating repeat insertions.
func (p *Pool) InsertReal(f float64) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx, ok := p.reals[f]; ok {
		return idx
	}
	v := sexp.ScalarReal(f)
	sexp.SetNamed(v, 2)
	p.values = append(p.values, v)
	idx := uint32(len(p.values) - 1)
	p.reals[f] = idx
	return idx
}

// Get returns the value at the given index.
func (p *Pool) Get(idx uint32) sexp.Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[idx]
}

// Size returns the number of pooled values, including the reserved slot.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.values)
}
