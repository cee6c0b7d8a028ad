// Package tracing records per-request events of the memory subsystem into
// the result database. A tracer is a hook; attach it to any component that
// exposes hook positions.
package tracing

import (
	"sync"

	"github.com/sarchlab/gpumemsim/datarecording"
	"github.com/sarchlab/gpumemsim/mem"
	"github.com/sarchlab/gpumemsim/mem/cache"
	"github.com/sarchlab/gpumemsim/noc/crossbar"
	"github.com/sarchlab/gpumemsim/sim"
)

// A NamedHookable is a component that both has a name and can be hooked.
type NamedHookable interface {
	sim.Named
	sim.Hookable
}

// CollectTrace attaches a tracer to a component.
func CollectTrace(domain NamedHookable, tracer sim.Hook) {
	domain.AcceptHook(tracer)
}

type cacheAccessEntry struct {
	Component string
	Cycle     uint64
	KernelID  uint64
	Addr      uint64
	ByteSize  uint64
	IsWrite   bool
	Status    string
}

type cacheFillEntry struct {
	Component string
	Cycle     uint64
	KernelID  uint64
	Addr      uint64
}

type trafficEntry struct {
	Component string
	Event     string
	SrcNode   int
	DstNode   int
	Addr      uint64
	ByteSize  uint64
}

// A DBTracer stores the access, fill, and interconnect events it observes
// in the result database.
type DBTracer struct {
	mu      sync.Mutex
	backend datarecording.Recorder
}

// NewDBTracer creates a DBTracer and the tables it writes to.
func NewDBTracer(backend datarecording.Recorder) *DBTracer {
	backend.CreateTable("cache_access_trace", cacheAccessEntry{})
	backend.CreateTable("cache_fill_trace", cacheFillEntry{})
	backend.CreateTable("icnt_traffic_trace", trafficEntry{})

	return &DBTracer{backend: backend}
}

// Func records one hook invocation.
func (t *DBTracer) Func(ctx sim.HookCtx) {
	req, ok := ctx.Item.(*mem.Request)
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch ctx.Pos {
	case cache.HookPosAccess:
		status, _ := ctx.Detail.(cache.AccessStatus)
		t.backend.InsertData("cache_access_trace", cacheAccessEntry{
			Component: ctx.Domain.(sim.Named).Name(),
			Cycle:     req.StatusCycle,
			KernelID:  req.KernelID,
			Addr:      req.Addr,
			ByteSize:  req.ByteSize,
			IsWrite:   req.IsWrite,
			Status:    status.String(),
		})
	case cache.HookPosFill:
		t.backend.InsertData("cache_fill_trace", cacheFillEntry{
			Component: ctx.Domain.(sim.Named).Name(),
			Cycle:     req.StatusCycle,
			KernelID:  req.KernelID,
			Addr:      req.Addr,
		})
	case crossbar.HookPosPush, crossbar.HookPosPop:
		event := "push"
		if ctx.Pos == crossbar.HookPosPop {
			event = "pop"
		}

		t.backend.InsertData("icnt_traffic_trace", trafficEntry{
			Component: ctx.Domain.(sim.Named).Name(),
			Event:     event,
			SrcNode:   req.SrcNode,
			DstNode:   req.DstNode,
			Addr:      req.Addr,
			ByteSize:  req.ByteSize,
		})
	}
}
