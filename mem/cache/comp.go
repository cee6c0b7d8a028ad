// Package cache implements a set-associative cache model with miss-status
// tracking and port-bandwidth accounting. The model classifies accesses and
// moves request envelopes; it does not hold data.
package cache

import (
	"log"

	"github.com/sarchlab/gpumemsim/mem"
	"github.com/sarchlab/gpumemsim/mem/cache/internal/mshr"
	"github.com/sarchlab/gpumemsim/mem/cache/internal/tagging"
	"github.com/sarchlab/gpumemsim/sim"
)

// AccessStatus classifies one presented request. Every request falls into
// exactly one class.
type AccessStatus int

// The access classes.
const (
	// AccessHit means every requested byte was resident.
	AccessHit AccessStatus = iota

	// AccessMSHRHit means the block already has an in-flight miss and the
	// request was merged into it. No new downstream traffic is generated.
	AccessMSHRHit

	// AccessMiss means a new downstream request was enqueued.
	AccessMiss

	// AccessMSHRMergeFail means the in-flight miss for the block cannot
	// merge more requests. The caller must retry on a later cycle.
	AccessMSHRMergeFail

	// AccessMSHREntryFail means the MSHR table has no room for a new
	// block. The caller must retry on a later cycle.
	AccessMSHREntryFail

	// AccessMissQueueFull means the miss queue has no room for the
	// downstream request. The caller must retry on a later cycle.
	AccessMissQueueFull

	// AccessReservationFail means every way of the set is pinned by an
	// in-flight miss. The caller must retry on a later cycle.
	AccessReservationFail
)

var accessStatusNames = map[AccessStatus]string{
	AccessHit:             "hit",
	AccessMSHRHit:         "mshr-hit",
	AccessMiss:            "miss",
	AccessMSHRMergeFail:   "mshr-merge-fail",
	AccessMSHREntryFail:   "mshr-entry-fail",
	AccessMissQueueFull:   "miss-queue-full",
	AccessReservationFail: "reservation-fail",
}

func (s AccessStatus) String() string {
	return accessStatusNames[s]
}

// Rejected returns true if the request was not accepted and must be
// presented again on a later cycle. Rejection carries no side effects.
func (s AccessStatus) Rejected() bool {
	switch s {
	case AccessMSHRMergeFail, AccessMSHREntryFail,
		AccessMissQueueFull, AccessReservationFail:
		return true
	}

	return false
}

// Transport is the downstream port that drains the miss queue.
type Transport interface {
	// CanSend reports whether the next level can accept a request of the
	// given size this cycle.
	CanSend(byteSize uint64, isWrite bool) bool

	// Send hands a request to the next level. CanSend must have returned
	// true this cycle.
	Send(req *mem.Request)
}

// HookPosAccess is triggered when a request is classified. The hook item is
// the request; the detail is the AccessStatus.
var HookPosAccess = &sim.HookPos{Name: "CacheAccess"}

// HookPosFill is triggered when a fill response completes a pending miss.
var HookPosFill = &sim.HookPos{Name: "CacheFill"}

// fillContext preserves the shape a request had before its miss was
// resized to atom granularity, so the fill path can restore it. Contexts
// live in an arena keyed by request ID.
type fillContext struct {
	request      *mem.Request
	mshrAddr     uint64
	origAddr     uint64
	origSize     uint64
	cacheIndex   int
	pendingReads int
}

// Comp is one cache instance.
type Comp struct {
	sim.HookableBase

	name      string
	config    Config
	tags      *tagging.TagArray
	mshrs     *mshr.Table
	bandwidth *bandwidthManager
	transport Transport

	missQueue  sim.Buffer
	resultFIFO sim.Buffer

	fills map[int]*fillContext
	pool  *mem.IDPool
	stats *Stats
}

// Name returns the name of the cache.
func (c *Comp) Name() string {
	return c.name
}

// Config returns the shape of the cache.
func (c *Comp) Config() Config {
	return c.config
}

// Stats returns the counters of the cache.
func (c *Comp) Stats() *Stats {
	return c.stats
}

// Access presents one request to the cache and classifies it. Accepted
// requests either complete immediately (AccessHit), merge into an in-flight
// miss (AccessMSHRHit), or enqueue downstream traffic (AccessMiss).
// Rejected requests leave no trace; the caller re-presents them each cycle
// until accepted.
func (c *Comp) Access(req *mem.Request, cycle uint64) AccessStatus {
	if req.SectorMask == 0 {
		req.SectorMask = mem.SectorMaskForRange(
			req.Addr, req.ByteSize, c.config.LineSize)
	}

	status := c.classify(req, cycle)

	c.stats.recordAccess(status)
	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosAccess,
		Item:   req,
		Detail: status,
	})

	return status
}

func (c *Comp) classify(req *mem.Request, cycle uint64) AccessStatus {
	blockAddr := c.config.BlockAddr(req.Addr)
	setIndex := c.config.SetIndex(req.Addr)

	tagStatus, _ := c.tags.Probe(blockAddr, setIndex, req.SectorMask)
	if tagStatus == tagging.Hit {
		c.tags.Access(blockAddr, setIndex, req.SectorMask, cycle, req.IsWrite)
		c.bandwidth.useDataPort(req.ByteSize, AccessHit, 0)
		req.SetStatus(mem.StatusDone, cycle)

		return AccessHit
	}

	if tagStatus == tagging.ReservationFail {
		return AccessReservationFail
	}

	mshrAddr := c.config.MSHRAddr(req.Addr)
	mshrHit := c.mshrs.Probe(mshrAddr)
	mshrAvail := !c.mshrs.Full(mshrAddr)

	switch {
	case mshrHit && mshrAvail:
		c.tags.Access(blockAddr, setIndex, req.SectorMask, cycle, req.IsWrite)
		c.mshrs.Add(mshrAddr, req)

		return AccessMSHRHit
	case mshrHit && !mshrAvail:
		return AccessMSHRMergeFail
	case !mshrHit && !mshrAvail:
		return AccessMSHREntryFail
	}

	if c.missQueue.Size()+c.missQueueNeed() > c.missQueue.Capacity() {
		return AccessMissQueueFull
	}

	return c.sendMissRequest(req, blockAddr, mshrAddr, setIndex, cycle)
}

// missQueueNeed returns the miss-queue room a new miss may require. A
// write-back cache reserves a second slot for the writeback the eviction
// may produce.
func (c *Comp) missQueueNeed() int {
	if c.config.WritePolicy == WriteBack {
		return 2
	}

	return 1
}

func (c *Comp) sendMissRequest(
	req *mem.Request,
	blockAddr, mshrAddr uint64,
	setIndex int,
	cycle uint64,
) AccessStatus {
	_, index, writeback, evicted := c.tags.Access(
		blockAddr, setIndex, req.SectorMask, cycle, req.IsWrite)

	c.mshrs.Add(mshrAddr, req)

	ctx := &fillContext{
		request:    req,
		mshrAddr:   mshrAddr,
		origAddr:   req.Addr,
		origSize:   req.ByteSize,
		cacheIndex: index,
	}
	if c.config.MSHRKind == MSHRSectorAssoc {
		ctx.pendingReads = c.config.SectorsPerLine()
	}
	c.fills[req.ID] = ctx

	// The downstream request moves a whole atom, regardless of the bytes
	// the requester asked for.
	req.Addr = mshrAddr
	req.ByteSize = c.config.AtomSize()
	req.SetStatus(mem.StatusInMissQueue, cycle)
	c.missQueue.Push(req)

	if writeback && c.config.WritePolicy == WriteBack {
		c.pushWriteback(evicted, req, cycle)
	}

	c.bandwidth.useDataPort(
		req.ByteSize, AccessMiss, c.writebackSize(writeback, evicted))

	return AccessMiss
}

func (c *Comp) writebackSize(
	writeback bool,
	evicted tagging.EvictedLine,
) uint64 {
	if !writeback || c.config.WritePolicy != WriteBack {
		return 0
	}

	return evicted.ModifiedSize
}

func (c *Comp) pushWriteback(
	evicted tagging.EvictedLine,
	cause *mem.Request,
	cycle uint64,
) {
	wb := mem.MakeRequestBuilder().
		WithPool(c.pool).
		WithAddress(evicted.BlockAddr).
		WithByteSize(evicted.ModifiedSize).
		AsWrite().
		WithSrcNode(cause.SrcNode).
		WithDstNode(cause.DstNode).
		WithKernelID(cause.KernelID).
		Build()
	wb.SetStatus(mem.StatusInMissQueue, cycle)

	c.missQueue.Push(wb)
}

// Cycle advances the cache by one cycle: it drains at most one miss-queue
// head into the downstream transport, stages ready responses into the
// result FIFO, samples port occupancy, and replenishes the port counters.
func (c *Comp) Cycle(cycle uint64) {
	if c.missQueue.Size() > 0 {
		req := c.missQueue.Peek().(*mem.Request)
		if c.transport.CanSend(req.ByteSize, req.IsWrite) {
			c.missQueue.Pop()
			c.transport.Send(req)
		}
	}

	if c.resultFIFO != nil {
		for c.mshrs.HasReady() && c.resultFIFO.CanPush() {
			c.resultFIFO.Push(c.mshrs.NextReady())
		}
	}

	c.stats.samplePortUtility(
		!c.bandwidth.dataPortFree(), !c.bandwidth.fillPortFree())
	c.bandwidth.replenish()
}

// Fill applies a response from the next level. For sector MSHRs the
// response is one sector of a fanned-out line fetch; the line completes
// only when the last sibling sector arrives. A fill that matches no pending
// miss is an internal-consistency violation.
func (c *Comp) Fill(req *mem.Request, cycle uint64) {
	if c.config.MSHRKind == MSHRSectorAssoc && req.ParentID != mem.InvalidParent {
		parent, ok := c.fills[req.ParentID]
		if !ok {
			log.Panicf("%s: sector fill for request %d with no pending miss",
				c.name, req.ParentID)
		}

		parent.pendingReads--
		if parent.pendingReads > 0 {
			return
		}

		req = parent.request
	}

	ctx, ok := c.fills[req.ID]
	if !ok {
		log.Panicf("%s: fill for request %d with no pending miss",
			c.name, req.ID)
	}

	req.Addr = ctx.origAddr
	req.ByteSize = ctx.origSize

	setIndex := c.config.SetIndex(ctx.origAddr)
	switch c.config.AllocPolicy {
	case AllocOnMiss:
		c.tags.FillByIndex(ctx.cacheIndex, req.SectorMask, cycle, req.IsWrite)
	case AllocOnFill:
		c.tags.FillByAddr(
			c.config.BlockAddr(ctx.origAddr), setIndex,
			req.SectorMask, cycle, req.IsWrite)
	}

	hasAtomic := c.mshrs.MarkReady(ctx.mshrAddr)
	if hasAtomic {
		if c.config.AllocPolicy != AllocOnMiss {
			log.Panicf("%s: atomic fill requires allocate-on-miss", c.name)
		}

		// An atomic read-modify-write leaves the line dirty.
		c.tags.FillByIndex(ctx.cacheIndex, req.SectorMask, cycle, true)
	}

	delete(c.fills, req.ID)
	c.bandwidth.useFillPort()
	c.stats.Fills++

	req.SetStatus(mem.StatusFilled, cycle)
	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosFill,
		Item:   req,
	})
}

// WaitingForFill reports whether the request has an outstanding miss that a
// future Fill will complete.
func (c *Comp) WaitingForFill(req *mem.Request) bool {
	_, ok := c.fills[req.ID]
	return ok
}

// HasReady reports whether a completed request is available to Pop.
func (c *Comp) HasReady() bool {
	if c.resultFIFO != nil {
		return c.resultFIFO.Size() > 0
	}

	return c.mshrs.HasReady()
}

// Pop hands back one completed request, or nil if none is ready.
func (c *Comp) Pop() *mem.Request {
	if c.resultFIFO != nil {
		req := c.resultFIFO.Pop()
		if req == nil {
			return nil
		}

		return req.(*mem.Request)
	}

	return c.mshrs.NextReady()
}
