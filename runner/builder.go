package runner

import (
	"log"
	"os"
)

// Builder can build schedulers.
type Builder struct {
	model         TimingModel
	source        CommandSource
	logger        *log.Logger
	silent        bool
	concurrent    bool
	maxConcurrent int
}

// MakeBuilder creates a builder with serial kernel execution and a
// stdout logger.
func MakeBuilder() Builder {
	return Builder{
		maxConcurrent: 1,
	}
}

// WithTimingModel sets the model the scheduler advances.
func (b Builder) WithTimingModel(model TimingModel) Builder {
	b.model = model
	return b
}

// WithCommandSource sets the trace the scheduler replays.
func (b Builder) WithCommandSource(source CommandSource) Builder {
	b.source = source
	return b
}

// WithLogger sets the logger the scheduler reports through. The scheduler
// never writes to a global log handle.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// WithSilent suppresses informational reporting. Sentinel completion lines
// are still emitted.
func (b Builder) WithSilent(silent bool) Builder {
	b.silent = silent
	return b
}

// WithConcurrentKernels enables concurrent kernel execution with the given
// window size. Without it the window is exactly one kernel: strict serial
// execution.
func (b Builder) WithConcurrentKernels(maxConcurrent int) Builder {
	b.concurrent = true
	b.maxConcurrent = maxConcurrent
	return b
}

// Build creates a Scheduler.
func (b Builder) Build() *Scheduler {
	if b.model == nil || b.source == nil {
		log.Panic("scheduler requires a timing model and a command source")
	}

	windowSize := 1
	if b.concurrent {
		windowSize = b.maxConcurrent
	}
	if windowSize <= 0 {
		log.Panic("scheduler requires a positive concurrency window")
	}

	logger := b.logger
	if logger == nil {
		logger = log.New(os.Stdout, "", 0)
	}

	return &Scheduler{
		model:      b.model,
		source:     b.source,
		logger:     logger,
		silent:     b.silent,
		windowSize: windowSize,
	}
}
