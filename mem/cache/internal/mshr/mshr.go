// Package mshr tracks in-flight cache misses so that duplicate downstream
// traffic for the same block is suppressed.
package mshr

import (
	"log"

	"github.com/sarchlab/gpumemsim/mem"
)

type entry struct {
	requests  []*mem.Request
	hasAtomic bool
}

// A Table holds one entry per in-flight block. A block address appears in at
// most one entry at any instant; the entry is released only after every
// request merged into it has been handed back.
type Table struct {
	numEntries int
	maxMerge   int

	entries map[uint64]*entry
	ready   []uint64
}

// NewTable creates a Table that holds at most numEntries blocks, each
// merging at most maxMerge requests.
func NewTable(numEntries, maxMerge int) *Table {
	return &Table{
		numEntries: numEntries,
		maxMerge:   maxMerge,
		entries:    make(map[uint64]*entry),
	}
}

// Probe returns true if an entry for the block exists.
func (t *Table) Probe(blockAddr uint64) bool {
	_, ok := t.entries[blockAddr]
	return ok
}

// Full returns true if the block cannot accept another request: the entry
// for it has reached the merge limit, or no entry exists and the table has
// no room for a new one.
func (t *Table) Full(blockAddr uint64) bool {
	if e, ok := t.entries[blockAddr]; ok {
		return len(e.requests) >= t.maxMerge
	}

	return len(t.entries) >= t.numEntries
}

// Add merges a request into the entry for the block, creating the entry if
// needed. The caller must have checked Full first.
func (t *Table) Add(blockAddr uint64, req *mem.Request) {
	if t.Full(blockAddr) {
		log.Panic("adding a request to a full MSHR entry")
	}

	e, ok := t.entries[blockAddr]
	if !ok {
		e = &entry{}
		t.entries[blockAddr] = e
	}

	e.requests = append(e.requests, req)
	if req.IsAtomic {
		e.hasAtomic = true
	}
}

// MarkReady records that the fill for the block has arrived, making the
// merged requests eligible for NextReady. A fill for a block with no entry
// is an internal-consistency violation.
func (t *Table) MarkReady(blockAddr uint64) (hasAtomic bool) {
	e, ok := t.entries[blockAddr]
	if !ok {
		log.Panic("fill completed for a block with no MSHR entry")
	}

	t.ready = append(t.ready, blockAddr)

	return e.hasAtomic
}

// HasReady returns true if any filled entry still holds requests.
func (t *Table) HasReady() bool {
	return len(t.ready) > 0
}

// NextReady hands back one request from the oldest filled entry. The entry
// is released once its last request is handed back.
func (t *Table) NextReady() *mem.Request {
	if len(t.ready) == 0 {
		return nil
	}

	blockAddr := t.ready[0]
	e := t.entries[blockAddr]

	req := e.requests[0]
	e.requests = e.requests[1:]

	if len(e.requests) == 0 {
		delete(t.entries, blockAddr)
		t.ready = t.ready[1:]
	}

	return req
}

// Size returns the number of live entries.
func (t *Table) Size() int {
	return len(t.entries)
}
