package runner_test

import (
	"github.com/sarchlab/gpumemsim/trace"
)

type memcpyRecord struct {
	addr  uint64
	count uint64
}

// fakeModel is a deterministic timing model: every launched kernel retires
// after kernelCycles cycles. It records the order of the effects applied
// to it.
type fakeModel struct {
	kernelCycles uint64
	maxCycles    uint64
	canStart     bool

	cycles    uint64
	remaining map[uint64]uint64
	finished  []uint64
	stopped   bool

	effects  []string
	memcpys  []memcpyRecord
	launched []*trace.Kernel
}

func newFakeModel(kernelCycles uint64) *fakeModel {
	return &fakeModel{
		kernelCycles: kernelCycles,
		canStart:     true,
		remaining:    make(map[uint64]uint64),
	}
}

func (m *fakeModel) Active() bool {
	return len(m.remaining) > 0 && !m.CycleLimitReached()
}

func (m *fakeModel) Cycle() {
	m.cycles++
	for id, left := range m.remaining {
		left--
		if left == 0 {
			delete(m.remaining, id)
			m.finished = append(m.finished, id)
		} else {
			m.remaining[id] = left
		}
	}
}

func (m *fakeModel) DeadlockCheck() {}

func (m *fakeModel) CanStartKernel() bool {
	return m.canStart
}

func (m *fakeModel) Launch(k *trace.Kernel) {
	m.remaining[k.ID] = m.kernelCycles
	m.launched = append(m.launched, k)
	m.effects = append(m.effects, "launch:"+k.Name)
}

func (m *fakeModel) FinishedKernelID() uint64 {
	if len(m.finished) == 0 {
		return 0
	}

	id := m.finished[0]
	m.finished = m.finished[1:]

	return id
}

func (m *fakeModel) CycleLimitReached() bool {
	return m.maxCycles > 0 && m.cycles >= m.maxCycles
}

func (m *fakeModel) StopAllRunningKernels() {
	m.stopped = true
	m.remaining = make(map[uint64]uint64)
}

func (m *fakeModel) MemcpyToDevice(addr, byteCount uint64) {
	m.memcpys = append(m.memcpys, memcpyRecord{addr, byteCount})
	m.effects = append(m.effects, "memcpy")
}

func (m *fakeModel) Cycles() uint64 {
	return m.cycles
}
