// Package dataflow provides the core graph execution engine: a
// handle-addressed shared context, a composable expression algebra, a
// control-flow node protocol, and a concurrent scheduler that drives nodes
// to completion on a pool of workers.
package dataflow

import (
	"errors"
	"sync/atomic"
)

// Handle is a process-unique integer identifying a value slot in a Context.
// Handles are assigned to every node at creation and to every expression
// that can be referenced, and are stable for the node's lifetime.
//
// Handle 0 is reserved for the graph input bundle.
type Handle int64

// InputHandle is the reserved handle under which a Graph's compiled
// callable binds its positional/keyword arguments before a forward begins.
const InputHandle Handle = 0

// ErrCellEmpty is returned by Cell.Get when called before Cell.Put.
var ErrCellEmpty = errors.New("dataflow: cell empty")

// Cell is an opaque holder for a single value. Get before Put fails with
// ErrCellEmpty. A Cell is written at most once per scope lifetime by
// whichever node owns its handle; concurrent readers holding a Context view
// never race with that single writer because each cell is addressed by a
// stable handle.
type Cell interface {
	Put(value any)
	Get() (any, error)
}

// memCell is the only Cell implementation the engine ships, since
// persistence is outside this engine's scope: values live on the Go heap
// for the lifetime of the forward that created them.
type memCell struct {
	has   bool
	value any
}

func (c *memCell) Put(value any) {
	c.value = value
	c.has = true
}

func (c *memCell) Get() (any, error) {
	if !c.has {
		return nil, ErrCellEmpty
	}
	return c.value, nil
}

// NewCell constructs a heap-local Cell, optionally pre-populated.
func NewCell(initial ...any) Cell {
	c := &memCell{}
	if len(initial) > 0 {
		c.Put(initial[0])
	}
	return c
}

// CellFactory constructs Cells. It is pluggable per Scheduler so that cells
// could in principle be memoised or backed by something other than the Go
// heap without changing the scheduler's logic; the bundled factory
// (DefaultCellFactory) always returns heap-local cells.
type CellFactory func(initial ...any) Cell

// DefaultCellFactory is the CellFactory used when a Scheduler is not given
// one explicitly.
func DefaultCellFactory(initial ...any) Cell {
	return NewCell(initial...)
}

// Context is a mapping from Handle to Cell, written only by the scheduler's
// single driver loop. Context is not thread-safe as a map: a view handed to
// a worker must be treated as read-only for the worker's lifetime.
type Context struct {
	cells   map[Handle]Cell
	factory CellFactory
}

// handleCounter backs NextHandle; it is shared by every Context so that
// minted handles are unique across the process.
var handleCounter atomic.Int64

// NewContext creates an empty Context using factory for its New method. A
// nil factory falls back to DefaultCellFactory.
func NewContext(factory CellFactory) *Context {
	if factory == nil {
		factory = DefaultCellFactory
	}
	return &Context{
		cells:   make(map[Handle]Cell),
		factory: factory,
	}
}

// NextHandle mints a fresh, process-unique handle for this context's
// forward. Handles are never reused within a single forward.
func (c *Context) NextHandle() Handle {
	return Handle(handleCounter.Add(1))
}

// New allocates a Cell of the context's configured kind, optionally
// pre-populated with value.
func (c *Context) New(value ...any) Cell {
	return c.factory(value...)
}

// Lookup returns the cell bound to h, or ok=false if no such cell exists.
func (c *Context) Lookup(h Handle) (Cell, bool) {
	cell, ok := c.cells[h]
	return cell, ok
}

// Bind associates h with cell, overwriting any previous binding. Handle 0
// (InputHandle) and scheduler-assigned handles are bound exactly once per
// scope lifetime by convention; Bind itself does not enforce that.
func (c *Context) Bind(h Handle, cell Cell) {
	c.cells[h] = cell
}

// Len returns the number of bound handles.
func (c *Context) Len() int {
	return len(c.cells)
}

// Handles returns the set of currently bound handles. The returned slice is
// a fresh copy safe to mutate.
func (c *Context) Handles() []Handle {
	out := make([]Handle, 0, len(c.cells))
	for h := range c.cells {
		out = append(out, h)
	}
	return out
}

// View returns a projection of c containing exactly the cells for handles
// in hs. The projection shares cell identity with c: a write observed
// through one is observed through the other, because both maps hold the
// same Cell pointers. View is used by the scheduler to ship the minimum
// closure of data a worker needs.
func (c *Context) View(hs map[Handle]struct{}) *Context {
	v := &Context{
		cells:   make(map[Handle]Cell, len(hs)),
		factory: c.factory,
	}
	for h := range hs {
		if cell, ok := c.cells[h]; ok {
			v.cells[h] = cell
		}
	}
	return v
}
