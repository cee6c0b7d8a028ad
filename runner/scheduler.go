package runner

import (
	"fmt"
	"log"

	"github.com/sarchlab/gpumemsim/trace"
)

// A Scheduler replays a command stream against a timing model. Kernels per
// lifecycle move parsed -> resident -> launched -> finished -> reclaimed;
// at most windowSize kernels are resident at once, and at most one kernel
// per stream is unfinished at any time.
type Scheduler struct {
	model  TimingModel
	source CommandSource
	logger *log.Logger
	silent bool

	windowSize int
	commands   []trace.Command
	commandIdx int

	kernels     []*trace.Kernel
	busyStreams []uint64
}

// Init reads the command stream. It must be called once, before the first
// ProcessCommands.
func (s *Scheduler) Init() error {
	commands, err := s.source.ParseCommands()
	if err != nil {
		return err
	}

	s.commands = commands
	s.commandIdx = 0

	return nil
}

// CommandsLeft reports whether unread commands remain.
func (s *Scheduler) CommandsLeft() bool {
	return s.commandIdx < len(s.commands)
}

// KernelsLeft reports whether kernels are still resident.
func (s *Scheduler) KernelsLeft() bool {
	return len(s.kernels) > 0
}

// ResidentKernels returns the number of kernels currently in the window.
func (s *Scheduler) ResidentKernels() int {
	return len(s.kernels)
}

// ProcessCommands consumes commands until the resident window is full or
// the stream is exhausted. A memory copy executes immediately; a kernel
// launch parses the kernel header and makes the kernel resident.
func (s *Scheduler) ProcessCommands() error {
	for len(s.kernels) < s.windowSize && s.commandIdx < len(s.commands) {
		cmd := s.commands[s.commandIdx]

		switch cmd.Kind {
		case trace.CommandMemcpyHtoD:
			s.logf("launching memcpy command: addr=0x%x count=%d",
				cmd.Addr, cmd.ByteCount)
			s.model.MemcpyToDevice(cmd.Addr, cmd.ByteCount)
		case trace.CommandKernelLaunch:
			k, err := s.source.ParseKernelInfo(cmd.TracePath)
			if err != nil {
				return fmt.Errorf("parsing kernel header: %w", err)
			}

			s.kernels = append(s.kernels, k)
			s.logf("header info loaded for kernel command: %s", cmd.TracePath)
		default:
			return fmt.Errorf("unsupported command kind %d", cmd.Kind)
		}

		s.commandIdx++
	}

	return nil
}

// LaunchKernels launches every resident, not-yet-launched kernel whose
// stream is idle, as long as the model reports spare launch capacity.
func (s *Scheduler) LaunchKernels() {
	for _, k := range s.kernels {
		if k.Launched || s.streamBusy(k.StreamID) || !s.model.CanStartKernel() {
			continue
		}

		s.logf("launching kernel name: %s id: %d", k.Name, k.ID)
		s.model.Launch(k)
		k.Launched = true
		s.busyStreams = append(s.busyStreams, k.StreamID)
	}
}

func (s *Scheduler) streamBusy(streamID uint64) bool {
	for _, busy := range s.busyStreams {
		if busy == streamID {
			return true
		}
	}

	return false
}

func (s *Scheduler) freeStream(streamID uint64) {
	for i, busy := range s.busyStreams {
		if busy == streamID {
			s.busyStreams = append(s.busyStreams[:i], s.busyStreams[i+1:]...)
			return
		}
	}
}

// Cycle advances the model by one cycle if any kernel is still active. When
// nothing is active because the cycle ceiling was hit, it force-stops the
// running kernels instead.
func (s *Scheduler) Cycle() {
	if s.model.Active() {
		s.model.Cycle()
		s.model.DeadlockCheck()
		return
	}

	if s.model.CycleLimitReached() {
		s.model.StopAllRunningKernels()
	}
}

// CleanupFinishedKernel reclaims the kernel with the given ID: it leaves
// the window, its stream becomes idle, and its trace resources are
// finalized. When the cycle ceiling was hit, every resident kernel is
// reclaimed; when the model merely drained, only launched kernels are, and
// kernels still waiting on a busy stream stay resident for the next launch
// pass. A non-zero ID that cannot be located is a bookkeeping bug and
// panics.
func (s *Scheduler) CleanupFinishedKernel(finishedID uint64) {
	ceilingHit := s.model.CycleLimitReached()
	drained := !s.model.Active()

	if finishedID == 0 && !ceilingHit && !drained {
		return
	}

	found := false

	for i := 0; i < len(s.kernels); {
		k := s.kernels[i]
		reclaim := k.ID == finishedID || ceilingHit || (drained && k.Launched)
		if !reclaim {
			i++
			continue
		}

		found = true
		s.freeStream(k.StreamID)
		if err := k.Finalize(); err != nil {
			s.logf("finalizing kernel %d: %v", k.ID, err)
		}
		s.kernels = append(s.kernels[:i], s.kernels[i+1:]...)
		s.logf("kernel %d (%s) reclaimed after %d cycles",
			k.ID, k.Name, s.model.Cycles())

		if !ceilingHit && !drained {
			return
		}
	}

	if finishedID != 0 && !found {
		log.Panicf("finished kernel %d not found in the resident window",
			finishedID)
	}
}

// RunToCompletion is the top-level loop: pull commands, launch eligible
// kernels, advance cycles until a kernel retires or nothing is active,
// reclaim, and stop early if the cycle ceiling was hit. Two sentinel lines
// mark normal termination so external harnesses can tell completion from a
// crash.
func (s *Scheduler) RunToCompletion() error {
	for s.CommandsLeft() || s.KernelsLeft() {
		if err := s.ProcessCommands(); err != nil {
			return err
		}
		s.LaunchKernels()

		var finished uint64
		for s.model.Active() {
			s.Cycle()
			if finished = s.model.FinishedKernelID(); finished != 0 {
				break
			}
		}

		s.CleanupFinishedKernel(finished)

		if s.model.CycleLimitReached() {
			s.logger.Printf(
				"** break due to reaching the maximum cycles (or instructions) **")
			break
		}
	}

	s.logger.Printf("*** simulation thread exiting ***")
	s.logger.Printf("*** exit detected ***")

	return nil
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.silent {
		return
	}

	s.logger.Printf(format, args...)
}
