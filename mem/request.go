// Package mem defines the request envelope that travels through the memory
// hierarchy, from the shader nodes, through the interconnect, to the caches
// and the memory partitions.
package mem

import "sync/atomic"

// SectorSize is the number of bytes in a sector, the smallest granularity
// at which a cache line can be filled or merged.
const SectorSize = 32

// A SectorMask marks which sectors of a cache line a request touches. Bit i
// corresponds to the i-th sector of the line.
type SectorMask uint8

// Has returns true if sector i is marked.
func (m SectorMask) Has(i int) bool {
	return m&(1<<uint(i)) != 0
}

// Set marks sector i.
func (m SectorMask) Set(i int) SectorMask {
	return m | (1 << uint(i))
}

// Count returns the number of marked sectors.
func (m SectorMask) Count() int {
	count := 0
	for m != 0 {
		count += int(m & 1)
		m >>= 1
	}

	return count
}

// SectorMaskForRange returns the mask of sectors that a [addr, addr+size)
// access touches within its cache line.
func SectorMaskForRange(addr, size, lineSize uint64) SectorMask {
	var mask SectorMask

	offset := addr % lineSize
	for b := offset / SectorSize; b <= (offset+size-1)/SectorSize; b++ {
		if b >= lineSize/SectorSize {
			break
		}

		mask = mask.Set(int(b))
	}

	return mask
}

// Status describes where a request currently is in its lifecycle. Ownership
// of the request follows the status: exactly one stage holds a request at
// any time.
type Status int

// The stages a request can be in.
const (
	StatusCreated Status = iota
	StatusInShader
	StatusInICNT
	StatusInCache
	StatusInMissQueue
	StatusInDRAM
	StatusFilled
	StatusDone
)

var statusNames = map[Status]string{
	StatusCreated:     "created",
	StatusInShader:    "in-shader",
	StatusInICNT:      "in-icnt",
	StatusInCache:     "in-cache",
	StatusInMissQueue: "in-miss-queue",
	StatusInDRAM:      "in-dram",
	StatusFilled:      "filled",
	StatusDone:        "done",
}

func (s Status) String() string {
	return statusNames[s]
}

// InvalidParent is the ParentID of a request that was not split from a
// larger request.
const InvalidParent = -1

// A Request is a unit of in-flight traffic in the memory subsystem.
//
// Requests are identified by a small integer ID assigned at creation. The ID
// is stable for the lifetime of the request and indexes per-cache bookkeeping
// arenas. A request split into per-sector requests records the ID of its
// parent; the parent is completed when all of its children have been filled.
type Request struct {
	ID int

	Addr       uint64
	ByteSize   uint64
	IsWrite    bool
	IsAtomic   bool
	SectorMask SectorMask

	ParentID int

	SrcNode      int
	DstNode      int
	TrafficClass int

	KernelID uint64

	Status      Status
	StatusCycle uint64
}

// SetStatus records a lifecycle transition together with the cycle at which
// it happened.
func (r *Request) SetStatus(status Status, cycle uint64) {
	r.Status = status
	r.StatusCycle = cycle
}

// An IDPool hands out request IDs. IDs are sequential so that they can index
// arenas directly.
type IDPool struct {
	next int64
}

// NewIDPool creates an IDPool.
func NewIDPool() *IDPool {
	return &IDPool{}
}

// Next returns the next unused request ID.
func (p *IDPool) Next() int {
	return int(atomic.AddInt64(&p.next, 1) - 1)
}

// RequestBuilder can build requests.
type RequestBuilder struct {
	pool         *IDPool
	addr         uint64
	byteSize     uint64
	isWrite      bool
	isAtomic     bool
	sectorMask   SectorMask
	parentID     int
	srcNode      int
	dstNode      int
	trafficClass int
	kernelID     uint64
}

// MakeRequestBuilder creates a RequestBuilder.
func MakeRequestBuilder() RequestBuilder {
	return RequestBuilder{parentID: InvalidParent}
}

// WithPool sets the IDPool that assigns the ID of the request to build.
func (b RequestBuilder) WithPool(pool *IDPool) RequestBuilder {
	b.pool = pool
	return b
}

// WithAddress sets the address of the request to build.
func (b RequestBuilder) WithAddress(addr uint64) RequestBuilder {
	b.addr = addr
	return b
}

// WithByteSize sets the byte size of the request to build.
func (b RequestBuilder) WithByteSize(byteSize uint64) RequestBuilder {
	b.byteSize = byteSize
	return b
}

// AsWrite marks the request to build as a write.
func (b RequestBuilder) AsWrite() RequestBuilder {
	b.isWrite = true
	return b
}

// AsAtomic marks the request to build as an atomic operation.
func (b RequestBuilder) AsAtomic() RequestBuilder {
	b.isAtomic = true
	return b
}

// WithSectorMask sets the sector mask of the request to build.
func (b RequestBuilder) WithSectorMask(mask SectorMask) RequestBuilder {
	b.sectorMask = mask
	return b
}

// WithParent sets the parent request of the request to build.
func (b RequestBuilder) WithParent(parentID int) RequestBuilder {
	b.parentID = parentID
	return b
}

// WithSrcNode sets the originating node of the request to build.
func (b RequestBuilder) WithSrcNode(node int) RequestBuilder {
	b.srcNode = node
	return b
}

// WithDstNode sets the destination node of the request to build.
func (b RequestBuilder) WithDstNode(node int) RequestBuilder {
	b.dstNode = node
	return b
}

// WithTrafficClass sets the traffic class of the request to build.
func (b RequestBuilder) WithTrafficClass(class int) RequestBuilder {
	b.trafficClass = class
	return b
}

// WithKernelID sets the kernel that the request to build belongs to.
func (b RequestBuilder) WithKernelID(id uint64) RequestBuilder {
	b.kernelID = id
	return b
}

// Build creates a new Request.
func (b RequestBuilder) Build() *Request {
	r := &Request{
		Addr:         b.addr,
		ByteSize:     b.byteSize,
		IsWrite:      b.isWrite,
		IsAtomic:     b.isAtomic,
		SectorMask:   b.sectorMask,
		ParentID:     b.parentID,
		SrcNode:      b.srcNode,
		DstNode:      b.dstNode,
		TrafficClass: b.trafficClass,
		KernelID:     b.kernelID,
		Status:       StatusCreated,
	}

	if b.pool != nil {
		r.ID = b.pool.Next()
	}

	return r
}
