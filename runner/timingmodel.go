// Package runner drives a timing model from a recorded command stream: it
// feeds memory copies and kernel launches into the model under a bounded
// concurrency window and advances cycles until everything retires.
package runner

import "github.com/sarchlab/gpumemsim/trace"

// A TimingModel is the performance model the scheduler advances. It owns
// all simulated hardware state; the scheduler only owns the command cursor
// and the resident kernel window.
type TimingModel interface {
	// Active reports whether any launched kernel still has work and the
	// cycle ceiling has not been reached.
	Active() bool

	// Cycle advances the model by one cycle.
	Cycle()

	// DeadlockCheck panics if the model has made no progress for the
	// configured interval.
	DeadlockCheck()

	// CanStartKernel reports whether the model has spare launch capacity.
	CanStartKernel() bool

	// Launch starts executing a kernel.
	Launch(k *trace.Kernel)

	// FinishedKernelID returns the ID of a kernel that retired since the
	// last call, or zero.
	FinishedKernelID() uint64

	// CycleLimitReached reports whether the global cycle ceiling was hit.
	CycleLimitReached() bool

	// StopAllRunningKernels force-stops every launched kernel without
	// draining it.
	StopAllRunningKernels()

	// MemcpyToDevice applies a host-to-device copy synchronously.
	MemcpyToDevice(addr, byteCount uint64)

	// Cycles returns the number of cycles simulated so far.
	Cycles() uint64
}

// A CommandSource supplies the recorded command stream and the kernel
// headers it references. *trace.Parser is the production implementation.
type CommandSource interface {
	ParseCommands() ([]trace.Command, error)
	ParseKernelInfo(path string) (*trace.Kernel, error)
}
