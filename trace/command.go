// Package trace reads recorded command streams and per-kernel trace
// headers in the accelsim tracer format.
package trace

// CommandKind is the kind of one record in a command-stream file.
type CommandKind int

// The supported command kinds.
const (
	// CommandMemcpyHtoD copies bytes into device memory. It executes
	// synchronously when the scheduler consumes it.
	CommandMemcpyHtoD CommandKind = iota

	// CommandKernelLaunch references a per-kernel trace file.
	CommandKernelLaunch
)

// A Command is one ordered record of a command stream.
type Command struct {
	Kind CommandKind

	// Addr and ByteCount describe a memory copy.
	Addr      uint64
	ByteCount uint64

	// TracePath is the kernel trace file of a launch, resolved against
	// the directory of the command-stream file.
	TracePath string
}
