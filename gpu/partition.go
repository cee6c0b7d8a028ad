package gpu

import (
	"github.com/sarchlab/gpumemsim/mem"
	"github.com/sarchlab/gpumemsim/mem/cache"
	"github.com/sarchlab/gpumemsim/noc/crossbar"
)

// dramEntry is one transaction in flight toward the DRAM array.
type dramEntry struct {
	req     *mem.Request
	readyAt uint64
}

// dram is a fixed-latency, bounded-depth memory array behind one
// partition's cache. It implements the cache's downstream transport.
type dram struct {
	latency    uint64
	queueDepth int

	inflight []dramEntry
	now      uint64
}

func (d *dram) CanSend(byteSize uint64, isWrite bool) bool {
	return len(d.inflight) < d.queueDepth
}

func (d *dram) Send(req *mem.Request) {
	req.SetStatus(mem.StatusInDRAM, d.now)
	d.inflight = append(d.inflight, dramEntry{
		req:     req,
		readyAt: d.now + d.latency,
	})
}

// ready removes and returns the transactions that complete at the given
// cycle.
func (d *dram) ready(cycle uint64) []*mem.Request {
	var done []*mem.Request
	remaining := d.inflight[:0]

	for _, e := range d.inflight {
		if e.readyAt <= cycle {
			done = append(done, e.req)
		} else {
			remaining = append(remaining, e)
		}
	}

	d.inflight = remaining

	return done
}

// A partition is one memory sub partition: an L2 slice in front of a
// fixed-latency DRAM array, attached to one interconnect node.
type partition struct {
	nodeID int
	cache  *cache.Comp
	dram   *dram
	pool   *mem.IDPool

	// retry holds requests the cache rejected; they are re-presented
	// every cycle until accepted.
	retry []*mem.Request

	// replies holds completed requests waiting for interconnect buffer
	// room toward their shader.
	replies []*mem.Request
}

// cycle advances the partition. It reports whether any request made
// progress, which feeds the deadlock check.
func (p *partition) cycle(xbar *crossbar.Comp, cycle uint64) (progress bool) {
	progress = p.applyFills(cycle) || progress
	progress = p.acceptRequests(xbar, cycle) || progress

	p.dram.now = cycle
	p.cache.Cycle(cycle)

	progress = p.collectReplies(cycle) || progress
	progress = p.pushReplies(xbar) || progress

	return progress
}

// applyFills completes DRAM reads by filling the cache. For a sector
// cache, one line fetch fans out into one fill per sector.
func (p *partition) applyFills(cycle uint64) bool {
	progress := false

	for _, req := range p.dram.ready(cycle) {
		if req.IsWrite && !p.cache.WaitingForFill(req) {
			// Writebacks retire silently.
			progress = true
			continue
		}

		if p.cache.Config().MSHRKind == cache.MSHRSectorAssoc {
			p.fillSectors(req, cycle)
		} else {
			p.cache.Fill(req, cycle)
		}

		progress = true
	}

	return progress
}

func (p *partition) fillSectors(req *mem.Request, cycle uint64) {
	lineAddr := p.cache.Config().BlockAddr(req.Addr)

	for i := 0; i < p.cache.Config().SectorsPerLine(); i++ {
		sector := mem.MakeRequestBuilder().
			WithPool(p.pool).
			WithAddress(lineAddr + uint64(i)*mem.SectorSize).
			WithByteSize(mem.SectorSize).
			WithSectorMask(mem.SectorMask(0).Set(i)).
			WithParent(req.ID).
			WithKernelID(req.KernelID).
			Build()

		p.cache.Fill(sector, cycle)
	}
}

// acceptRequests re-presents previously rejected requests, then pops new
// arrivals from the interconnect. Hits complete immediately.
func (p *partition) acceptRequests(xbar *crossbar.Comp, cycle uint64) bool {
	progress := false

	incoming := p.retry
	p.retry = nil

	if req := xbar.Pop(p.nodeID); req != nil {
		incoming = append(incoming, req)
		progress = true
	}

	for _, req := range incoming {
		status := p.cache.Access(req, cycle)

		switch {
		case status == cache.AccessHit:
			p.replies = append(p.replies, req)
			progress = true
		case status.Rejected():
			p.retry = append(p.retry, req)
		default:
			progress = true
		}
	}

	return progress
}

// collectReplies drains requests the cache completed through its fill
// path.
func (p *partition) collectReplies(cycle uint64) bool {
	progress := false

	for p.cache.HasReady() {
		req := p.cache.Pop()
		if req == nil {
			break
		}

		req.SetStatus(mem.StatusDone, cycle)
		p.replies = append(p.replies, req)
		progress = true
	}

	return progress
}

// pushReplies sends completed requests back toward their shaders, as far
// as interconnect buffer room allows.
func (p *partition) pushReplies(xbar *crossbar.Comp) bool {
	progress := false

	remaining := p.replies[:0]
	for _, req := range p.replies {
		shaderNode := req.SrcNode
		if !xbar.HasBuffer(shaderNode, req.ByteSize) {
			remaining = append(remaining, req)
			continue
		}

		xbar.Push(p.nodeID, shaderNode, req)
		progress = true
	}
	p.replies = remaining

	return progress
}
