package cache

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/sarchlab/gpumemsim/mem"
)

// CacheKind distinguishes line-granular caches from sector caches.
type CacheKind int

// The supported cache kinds.
const (
	KindNormal CacheKind = iota
	KindSector
)

// ReplacementPolicy selects how a victim way is chosen.
type ReplacementPolicy int

// The supported replacement policies.
const (
	ReplacementLRU ReplacementPolicy = iota
	ReplacementFIFO
)

// WritePolicy selects how writes propagate downstream.
type WritePolicy int

// The supported write policies.
const (
	WriteBack WritePolicy = iota
	WriteThrough
	WriteEvict
	ReadOnly
	LocalWBGlobalWT
)

// AllocPolicy selects when a missing line claims a way.
type AllocPolicy int

// The supported allocation policies.
const (
	AllocOnMiss AllocPolicy = iota
	AllocOnFill
)

// WriteAllocPolicy selects whether write misses allocate a line.
type WriteAllocPolicy int

// The supported write-allocation policies.
const (
	NoWriteAllocate WriteAllocPolicy = iota
	WriteAllocate
	LazyFetchOnRead
)

// SetIndexFunction selects how an address maps to a set.
type SetIndexFunction int

// The supported set-index functions.
const (
	SetIndexLinear SetIndexFunction = iota
	SetIndexBitwiseXOR
)

// MSHRKind selects the granularity at which misses merge.
type MSHRKind int

// The supported MSHR kinds. MSHRTexFIFO is accepted so that full
// accel-sim config strings parse, but it is modeled identically to
// MSHRAssoc: the FIFO fill ordering of a texture MSHR is not simulated.
const (
	MSHRAssoc MSHRKind = iota
	MSHRSectorAssoc
	MSHRTexFIFO
)

// A Config describes one cache shape. It is parsed once and shared
// read-only by every cache built from it.
type Config struct {
	Kind        CacheKind
	NumSets     uint64
	LineSize    uint64
	Assoc       uint64
	Replacement ReplacementPolicy
	WritePolicy WritePolicy
	AllocPolicy AllocPolicy
	WriteAlloc  WriteAllocPolicy
	SetIndexFn  SetIndexFunction

	MSHRKind     MSHRKind
	MSHREntries  int
	MSHRMaxMerge int

	MissQueueSize  int
	ResultFIFOSize int
	DataPortWidth  uint64
}

// ParseConfig parses a cache-shape string of the form
//
//	<kind>:<nsets>:<line_size>:<assoc>,<repl>:<write>:<alloc>:<walloc>:<set_fn>,<mshr>:<entries>:<max_merge>,<miss_q>:<result_fifo>,<port_width>
//
// with single-character policy fields and unsigned integers elsewhere.
func ParseConfig(s string) (Config, error) {
	var c Config

	groups := strings.Split(s, ",")
	if len(groups) != 5 {
		return c, fmt.Errorf("cache config %q: want 5 groups, have %d",
			s, len(groups))
	}

	if err := c.parseGeometry(groups[0]); err != nil {
		return c, fmt.Errorf("cache config %q: %w", s, err)
	}

	if err := c.parsePolicies(groups[1]); err != nil {
		return c, fmt.Errorf("cache config %q: %w", s, err)
	}

	if err := c.parseMSHR(groups[2]); err != nil {
		return c, fmt.Errorf("cache config %q: %w", s, err)
	}

	if err := c.parseQueues(groups[3]); err != nil {
		return c, fmt.Errorf("cache config %q: %w", s, err)
	}

	width, err := strconv.ParseUint(groups[4], 10, 64)
	if err != nil || width == 0 {
		return c, fmt.Errorf("cache config %q: bad data port width %q",
			s, groups[4])
	}
	c.DataPortWidth = width

	if err := c.validate(); err != nil {
		return c, fmt.Errorf("cache config %q: %w", s, err)
	}

	return c, nil
}

// MustParseConfig is ParseConfig that panics on malformed input. It is meant
// for configuration that is fixed at build time.
func MustParseConfig(s string) Config {
	c, err := ParseConfig(s)
	if err != nil {
		panic(err)
	}

	return c
}

func (c *Config) parseGeometry(group string) error {
	fields := strings.Split(group, ":")
	if len(fields) != 4 {
		return fmt.Errorf("geometry group %q: want 4 fields", group)
	}

	switch fields[0] {
	case "N":
		c.Kind = KindNormal
	case "S":
		c.Kind = KindSector
	default:
		return fmt.Errorf("unknown cache kind %q", fields[0])
	}

	var err error
	if c.NumSets, err = strconv.ParseUint(fields[1], 10, 64); err != nil {
		return fmt.Errorf("bad set count %q", fields[1])
	}
	if c.LineSize, err = strconv.ParseUint(fields[2], 10, 64); err != nil {
		return fmt.Errorf("bad line size %q", fields[2])
	}
	if c.Assoc, err = strconv.ParseUint(fields[3], 10, 64); err != nil {
		return fmt.Errorf("bad associativity %q", fields[3])
	}

	return nil
}

func (c *Config) parsePolicies(group string) error {
	fields := strings.Split(group, ":")
	if len(fields) != 5 {
		return fmt.Errorf("policy group %q: want 5 fields", group)
	}

	switch fields[0] {
	case "L":
		c.Replacement = ReplacementLRU
	case "F":
		c.Replacement = ReplacementFIFO
	default:
		return fmt.Errorf("unknown replacement policy %q", fields[0])
	}

	switch fields[1] {
	case "B":
		c.WritePolicy = WriteBack
	case "T":
		c.WritePolicy = WriteThrough
	case "E":
		c.WritePolicy = WriteEvict
	case "R":
		c.WritePolicy = ReadOnly
	case "L":
		c.WritePolicy = LocalWBGlobalWT
	default:
		return fmt.Errorf("unknown write policy %q", fields[1])
	}

	switch fields[2] {
	case "m":
		c.AllocPolicy = AllocOnMiss
	case "f":
		c.AllocPolicy = AllocOnFill
	default:
		return fmt.Errorf("unknown allocation policy %q", fields[2])
	}

	switch fields[3] {
	case "N":
		c.WriteAlloc = NoWriteAllocate
	case "W":
		c.WriteAlloc = WriteAllocate
	case "L":
		c.WriteAlloc = LazyFetchOnRead
	default:
		return fmt.Errorf("unknown write-allocate policy %q", fields[3])
	}

	switch fields[4] {
	case "L":
		c.SetIndexFn = SetIndexLinear
	case "X":
		c.SetIndexFn = SetIndexBitwiseXOR
	default:
		return fmt.Errorf("unknown set index function %q", fields[4])
	}

	return nil
}

func (c *Config) parseMSHR(group string) error {
	fields := strings.Split(group, ":")
	if len(fields) != 3 {
		return fmt.Errorf("MSHR group %q: want 3 fields", group)
	}

	switch fields[0] {
	case "A":
		c.MSHRKind = MSHRAssoc
	case "S":
		c.MSHRKind = MSHRSectorAssoc
	case "F":
		c.MSHRKind = MSHRTexFIFO
	default:
		return fmt.Errorf("unknown MSHR kind %q", fields[0])
	}

	var err error
	if c.MSHREntries, err = strconv.Atoi(fields[1]); err != nil {
		return fmt.Errorf("bad MSHR entry count %q", fields[1])
	}
	if c.MSHRMaxMerge, err = strconv.Atoi(fields[2]); err != nil {
		return fmt.Errorf("bad MSHR merge limit %q", fields[2])
	}

	return nil
}

func (c *Config) parseQueues(group string) error {
	fields := strings.Split(group, ":")
	if len(fields) != 2 {
		return fmt.Errorf("queue group %q: want 2 fields", group)
	}

	var err error
	if c.MissQueueSize, err = strconv.Atoi(fields[0]); err != nil {
		return fmt.Errorf("bad miss queue size %q", fields[0])
	}
	if c.ResultFIFOSize, err = strconv.Atoi(fields[1]); err != nil {
		return fmt.Errorf("bad result FIFO size %q", fields[1])
	}

	return nil
}

func (c *Config) validate() error {
	if c.NumSets == 0 || bits.OnesCount64(c.NumSets) != 1 {
		return fmt.Errorf("set count %d is not a power of two", c.NumSets)
	}

	if c.LineSize < mem.SectorSize || bits.OnesCount64(c.LineSize) != 1 {
		return fmt.Errorf("line size %d is not a power of two >= %d",
			c.LineSize, mem.SectorSize)
	}

	if c.Assoc == 0 {
		return fmt.Errorf("associativity must be positive")
	}

	if c.MSHREntries <= 0 || c.MSHRMaxMerge <= 0 {
		return fmt.Errorf("MSHR entry and merge limits must be positive")
	}

	if c.Kind == KindSector && c.MSHRKind != MSHRSectorAssoc {
		return fmt.Errorf("sector caches require a sector MSHR")
	}

	return nil
}

// BlockAddr returns the address of the cache line that holds addr.
func (c Config) BlockAddr(addr uint64) uint64 {
	return addr &^ (c.LineSize - 1)
}

// MSHRAddr returns the address at which misses to addr merge: the sector
// address for sector MSHRs, the line address otherwise.
func (c Config) MSHRAddr(addr uint64) uint64 {
	if c.MSHRKind == MSHRSectorAssoc {
		return addr &^ (mem.SectorSize - 1)
	}

	return c.BlockAddr(addr)
}

// AtomSize returns the granularity at which this cache moves data to and
// from the next level.
func (c Config) AtomSize() uint64 {
	if c.Kind == KindSector {
		return mem.SectorSize
	}

	return c.LineSize
}

// SectorsPerLine returns the number of sectors in one cache line.
func (c Config) SectorsPerLine() int {
	return int(c.LineSize / mem.SectorSize)
}

// SetIndex maps an address to the set that may hold it.
func (c Config) SetIndex(addr uint64) int {
	lineNumber := addr / c.LineSize

	switch c.SetIndexFn {
	case SetIndexBitwiseXOR:
		return int((lineNumber ^ (lineNumber / c.NumSets)) % c.NumSets)
	default:
		return int(lineNumber % c.NumSets)
	}
}
