package trace

import (
	"os"
)

// A Dim3 is a three-dimensional launch extent.
type Dim3 struct {
	X, Y, Z uint64
}

// Size returns the flattened extent.
func (d Dim3) Size() uint64 {
	return d.X * d.Y * d.Z
}

// A Kernel is the descriptor parsed from one kernel trace header, plus the
// scheduler-owned lifecycle state of the launch.
type Kernel struct {
	Name          string
	ID            uint64
	GridDim       Dim3
	BlockDim      Dim3
	SharedMemSize uint64
	NumRegs       uint64
	StreamID      uint64
	BinaryVersion uint64
	TracePath     string

	// Launched and Done are owned by the scheduler.
	Launched bool
	Done     bool

	file *os.File
}

// NumBlocks returns the number of thread blocks of the launch.
func (k *Kernel) NumBlocks() uint64 {
	return k.GridDim.Size()
}

// ThreadsPerBlock returns the number of threads in one block.
func (k *Kernel) ThreadsPerBlock() uint64 {
	return k.BlockDim.Size()
}

// Finalize releases the trace resources held by the descriptor. It is safe
// to call more than once.
func (k *Kernel) Finalize() error {
	if k.file == nil {
		return nil
	}

	err := k.file.Close()
	k.file = nil

	return err
}
