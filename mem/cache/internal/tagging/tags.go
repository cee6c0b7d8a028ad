// Package tagging tracks the residency state of cache lines at sector
// granularity.
package tagging

import (
	"log"

	"github.com/sarchlab/gpumemsim/mem"
)

// SectorState is the residency state of one sector of a cache line.
type SectorState int

// The states a sector can be in.
const (
	// Invalid marks a sector that holds no data.
	Invalid SectorState = iota

	// Reserved marks a sector that has been allocated for an in-flight
	// miss but not yet filled.
	Reserved

	// Valid marks a sector that holds clean data.
	Valid

	// Modified marks a sector that holds dirty data.
	Modified
)

// Status is the outcome of probing the tag array with a request.
type Status int

// The possible probe outcomes.
const (
	// Hit means every requested sector is resident.
	Hit Status = iota

	// HitReserved means the line is allocated but at least one requested
	// sector is still waiting for its fill.
	HitReserved

	// SectorMiss means the line is resident but a requested sector is not.
	SectorMiss

	// Miss means the line is not resident and a victim way is available.
	Miss

	// ReservationFail means the line is not resident and every way in the
	// set is pinned by an in-flight miss.
	ReservationFail
)

var statusNames = map[Status]string{
	Hit:             "hit",
	HitReserved:     "hit-reserved",
	SectorMiss:      "sector-miss",
	Miss:            "miss",
	ReservationFail: "reservation-fail",
}

func (s Status) String() string {
	return statusNames[s]
}

// A Line is the metadata associated with one cache line.
type Line struct {
	Tag          uint64
	SetID        int
	WayID        int
	States       []SectorState
	ModifiedSize uint64
	LastAccess   uint64
	Allocated    bool
}

// IsReserved returns true if any sector of the line is waiting for a fill.
func (l *Line) IsReserved() bool {
	for _, s := range l.States {
		if s == Reserved {
			return true
		}
	}

	return false
}

// IsModified returns true if any sector of the line is dirty.
func (l *Line) IsModified() bool {
	return l.ModifiedSize > 0
}

func (l *Line) holds(mask mem.SectorMask) bool {
	for i := range l.States {
		if mask.Has(i) && l.States[i] != Valid && l.States[i] != Modified {
			return false
		}
	}

	return true
}

func (l *Line) reservedFor(mask mem.SectorMask) bool {
	for i := range l.States {
		if mask.Has(i) && l.States[i] == Reserved {
			return true
		}
	}

	return false
}

// An EvictedLine describes the line that an allocation displaced. A dirty
// victim must be written back; ModifiedSize is the number of dirty bytes the
// writeback carries.
type EvictedLine struct {
	BlockAddr    uint64
	ModifiedSize uint64
}

// A TagArray is a set-associative array of cache-line metadata. It performs
// no data movement; it only answers residency questions and tracks
// reservation and dirtiness.
type TagArray struct {
	numSets        int
	numWays        int
	lineSize       uint64
	sectorsPerLine int
	allocOnMiss    bool
	lines          []Line
	victimFinder   VictimFinder
}

// NewTagArray creates a TagArray. When allocOnMiss is true a victim is
// displaced at access time; otherwise the displacement is deferred to the
// fill.
func NewTagArray(
	numSets, numWays int,
	lineSize uint64,
	allocOnMiss bool,
) *TagArray {
	t := &TagArray{
		numSets:        numSets,
		numWays:        numWays,
		lineSize:       lineSize,
		sectorsPerLine: int(lineSize / mem.SectorSize),
		allocOnMiss:    allocOnMiss,
		victimFinder:   &LRUVictimFinder{},
	}

	t.Reset()

	return t
}

// Reset invalidates every line.
func (t *TagArray) Reset() {
	t.lines = make([]Line, t.numSets*t.numWays)
	for set := 0; set < t.numSets; set++ {
		for way := 0; way < t.numWays; way++ {
			line := &t.lines[set*t.numWays+way]
			line.SetID = set
			line.WayID = way
			line.States = make([]SectorState, t.sectorsPerLine)
		}
	}
}

// Line returns the line at the given index. The index is stable across the
// lifetime of the array.
func (t *TagArray) Line(index int) *Line {
	return &t.lines[index]
}

// setOf returns the ways of one set.
func (t *TagArray) setOf(setIndex int) []Line {
	return t.lines[setIndex*t.numWays : (setIndex+1)*t.numWays]
}

// Probe classifies an access without changing any state. It returns the
// index of the line involved: the resident line on Hit, HitReserved, and
// SectorMiss, or the victim way on Miss. The index is meaningless on
// ReservationFail.
func (t *TagArray) Probe(
	blockAddr uint64,
	setIndex int,
	mask mem.SectorMask,
) (Status, int) {
	set := t.setOf(setIndex)

	for way := range set {
		line := &set[way]
		if !line.Allocated || line.Tag != blockAddr {
			continue
		}

		index := setIndex*t.numWays + way
		switch {
		case line.holds(mask):
			return Hit, index
		case line.reservedFor(mask):
			return HitReserved, index
		default:
			return SectorMiss, index
		}
	}

	victimWay, found := t.victimFinder.FindVictim(set)
	if !found {
		return ReservationFail, -1
	}

	return Miss, setIndex*t.numWays + victimWay
}

// Access records an access, performing the state changes the probe outcome
// implies: LRU update and dirty marking on Hit, sector reservation on
// SectorMiss, and, when allocation happens on miss, victim displacement and
// line reservation on Miss. The writeback flag reports whether the displaced
// line was dirty.
func (t *TagArray) Access(
	blockAddr uint64,
	setIndex int,
	mask mem.SectorMask,
	cycle uint64,
	isWrite bool,
) (status Status, index int, writeback bool, evicted EvictedLine) {
	status, index = t.Probe(blockAddr, setIndex, mask)

	switch status {
	case Hit:
		line := t.Line(index)
		line.LastAccess = cycle
		if isWrite {
			t.markModified(line, mask)
		}
	case HitReserved:
		t.Line(index).LastAccess = cycle
	case SectorMiss:
		line := t.Line(index)
		line.LastAccess = cycle
		t.reserveSectors(line, mask)
	case Miss:
		if !t.allocOnMiss {
			return status, index, false, EvictedLine{}
		}

		writeback, evicted = t.allocate(t.Line(index), blockAddr, mask, cycle)
	case ReservationFail:
	}

	return status, index, writeback, evicted
}

// FillByIndex completes the fill of a line that was allocated at access
// time.
func (t *TagArray) FillByIndex(
	index int,
	mask mem.SectorMask,
	cycle uint64,
	markModified bool,
) {
	line := t.Line(index)
	line.LastAccess = cycle
	t.validateSectors(line, mask)

	if markModified {
		t.markModified(line, mask)
	}
}

// FillByAddr allocates a line at fill time and marks it resident. It is the
// fill path for allocate-on-fill caches, where no way was reserved at access
// time.
func (t *TagArray) FillByAddr(
	blockAddr uint64,
	setIndex int,
	mask mem.SectorMask,
	cycle uint64,
	markModified bool,
) (writeback bool, evicted EvictedLine) {
	status, index := t.Probe(blockAddr, setIndex, mask)

	switch status {
	case Miss:
		writeback, evicted = t.allocate(t.Line(index), blockAddr, mask, cycle)
	case ReservationFail:
		log.Panic("no way available to fill an allocate-on-fill line")
	}

	line := t.Line(index)
	line.LastAccess = cycle
	t.validateSectors(line, mask)

	if markModified {
		t.markModified(line, mask)
	}

	return writeback, evicted
}

func (t *TagArray) allocate(
	line *Line,
	blockAddr uint64,
	mask mem.SectorMask,
	cycle uint64,
) (writeback bool, evicted EvictedLine) {
	if line.Allocated && line.IsModified() {
		writeback = true
		evicted = EvictedLine{
			BlockAddr:    line.Tag,
			ModifiedSize: line.ModifiedSize,
		}
	}

	line.Tag = blockAddr
	line.Allocated = true
	line.LastAccess = cycle
	line.ModifiedSize = 0
	for i := range line.States {
		line.States[i] = Invalid
	}

	t.reserveSectors(line, mask)

	return writeback, evicted
}

func (t *TagArray) reserveSectors(line *Line, mask mem.SectorMask) {
	for i := range line.States {
		if mask.Has(i) && line.States[i] == Invalid {
			line.States[i] = Reserved
		}
	}
}

func (t *TagArray) validateSectors(line *Line, mask mem.SectorMask) {
	for i := range line.States {
		if mask.Has(i) && line.States[i] != Modified {
			line.States[i] = Valid
		}
	}
}

func (t *TagArray) markModified(line *Line, mask mem.SectorMask) {
	for i := range line.States {
		if mask.Has(i) && line.States[i] != Modified {
			line.States[i] = Modified
			line.ModifiedSize += mem.SectorSize
		}
	}
}
