package gpu

import (
	"github.com/sarchlab/gpumemsim/mem"
	"github.com/sarchlab/gpumemsim/mem/addrdec"
	"github.com/sarchlab/gpumemsim/noc/crossbar"
)

// warpSize is the number of threads that coalesce into one memory access.
const warpSize = 32

// A shader is one compute node. It replays the memory accesses attributed
// to it, one injection per cycle, and consumes the replies.
type shader struct {
	nodeID     int
	numShaders int

	pending []*mem.Request
}

// inject pushes the next pending request toward its memory partition if
// the interconnect has room.
func (s *shader) inject(
	xbar *crossbar.Comp,
	decoder *addrdec.Translator,
	cycle uint64,
) bool {
	if len(s.pending) == 0 {
		return false
	}

	req := s.pending[0]
	dst := s.numShaders + int(decoder.Decode(req.Addr).SubPartition)
	if !xbar.HasBuffer(dst, req.ByteSize) {
		return false
	}

	s.pending = s.pending[1:]
	req.SetStatus(mem.StatusInICNT, cycle)
	xbar.Push(s.nodeID, dst, req)

	return true
}

// collect pops one reply per cycle and reports the kernel it belongs to.
func (s *shader) collect(
	xbar *crossbar.Comp,
	cycle uint64,
) (kernelID uint64, ok bool) {
	req := xbar.Pop(s.nodeID)
	if req == nil {
		return 0, false
	}

	req.SetStatus(mem.StatusDone, cycle)

	return req.KernelID, true
}

// drop discards the pending work of a force-stopped kernel.
func (s *shader) drop(kernelID uint64) {
	remaining := s.pending[:0]
	for _, req := range s.pending {
		if req.KernelID != kernelID {
			remaining = append(remaining, req)
		}
	}

	s.pending = remaining
}
