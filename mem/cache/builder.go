package cache

import (
	"log"

	"github.com/sarchlab/gpumemsim/mem"
	"github.com/sarchlab/gpumemsim/mem/cache/internal/mshr"
	"github.com/sarchlab/gpumemsim/mem/cache/internal/tagging"
	"github.com/sarchlab/gpumemsim/sim"
)

// Builder can build caches.
type Builder struct {
	name      string
	config    Config
	transport Transport
	pool      *mem.IDPool
}

// MakeBuilder creates a builder with a 64KB, 4-way, sectored write-back
// default shape.
func MakeBuilder() Builder {
	return Builder{
		config: MustParseConfig("S:128:128:4,L:B:m:W:L,S:64:8,16:0,32"),
	}
}

// WithName sets the name of the cache to build.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithConfig sets the shape of the cache to build.
func (b Builder) WithConfig(config Config) Builder {
	b.config = config
	return b
}

// WithConfigString sets the shape of the cache to build from a cache-shape
// string.
func (b Builder) WithConfigString(s string) Builder {
	b.config = MustParseConfig(s)
	return b
}

// WithTransport sets the downstream port of the cache to build.
func (b Builder) WithTransport(transport Transport) Builder {
	b.transport = transport
	return b
}

// WithIDPool sets the pool that assigns IDs to the requests the cache
// creates, such as writebacks.
func (b Builder) WithIDPool(pool *mem.IDPool) Builder {
	b.pool = pool
	return b
}

// Build creates a cache.
func (b Builder) Build() *Comp {
	sim.NameMustBeValid(b.name)

	if b.transport == nil {
		log.Panic("cache requires a downstream transport")
	}

	if b.pool == nil {
		b.pool = mem.NewIDPool()
	}

	c := &Comp{
		name:   b.name,
		config: b.config,
		tags: tagging.NewTagArray(
			int(b.config.NumSets),
			int(b.config.Assoc),
			b.config.LineSize,
			b.config.AllocPolicy == AllocOnMiss,
		),
		mshrs:     mshr.NewTable(b.config.MSHREntries, b.config.MSHRMaxMerge),
		bandwidth: newBandwidthManager(b.config),
		transport: b.transport,
		missQueue: sim.NewBuffer(b.name+".MissQueue", b.config.MissQueueSize),
		fills:     make(map[int]*fillContext),
		pool:      b.pool,
		stats:     newStats(),
	}

	if b.config.ResultFIFOSize > 0 {
		c.resultFIFO = sim.NewBuffer(
			b.name+".ResultFIFO", b.config.ResultFIFOSize)
	}

	return c
}
