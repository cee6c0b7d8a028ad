package gpu

import (
	"fmt"
	"log"
	"os"

	"github.com/sarchlab/gpumemsim/mem"
	"github.com/sarchlab/gpumemsim/mem/addrdec"
	"github.com/sarchlab/gpumemsim/mem/cache"
	"github.com/sarchlab/gpumemsim/noc/crossbar"
)

// Builder can build platforms.
type Builder struct {
	numShaders       int
	decoder          *addrdec.Translator
	cacheConfig      string
	dramLatency      uint64
	dramQueueDepth   int
	icntBufferSize   int
	maxCycles        uint64
	maxConcurrent    int
	deadlockInterval uint64
	logger           *log.Logger
	silent           bool
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		numShaders:       16,
		cacheConfig:      "S:64:128:16,L:B:m:W:L,S:192:4,32:0,32",
		dramLatency:      100,
		dramQueueDepth:   32,
		icntBufferSize:   8,
		maxConcurrent:    8,
		deadlockInterval: 100000,
	}
}

// WithNumShaders sets the number of shader nodes.
func (b Builder) WithNumShaders(n int) Builder {
	b.numShaders = n
	return b
}

// WithDecoder sets the address decoder. One memory partition is built for
// each sub partition the decoder addresses.
func (b Builder) WithDecoder(d *addrdec.Translator) Builder {
	b.decoder = d
	return b
}

// WithCacheConfig sets the L2 slice configuration string.
func (b Builder) WithCacheConfig(config string) Builder {
	b.cacheConfig = config
	return b
}

// WithDRAMLatency sets the fixed DRAM access latency in cycles.
func (b Builder) WithDRAMLatency(latency uint64) Builder {
	b.dramLatency = latency
	return b
}

// WithDRAMQueueDepth sets the number of transactions each DRAM array can
// hold in flight.
func (b Builder) WithDRAMQueueDepth(depth int) Builder {
	b.dramQueueDepth = depth
	return b
}

// WithInterconnectBufferSize sets the per-node buffer capacity of the
// crossbar.
func (b Builder) WithInterconnectBufferSize(n int) Builder {
	b.icntBufferSize = n
	return b
}

// WithMaxCycles sets the cycle ceiling. Zero means no ceiling.
func (b Builder) WithMaxCycles(n uint64) Builder {
	b.maxCycles = n
	return b
}

// WithMaxConcurrentKernels sets how many kernels can run at once.
func (b Builder) WithMaxConcurrentKernels(n int) Builder {
	b.maxConcurrent = n
	return b
}

// WithDeadlockInterval sets how many cycles without progress trigger the
// deadlock panic.
func (b Builder) WithDeadlockInterval(n uint64) Builder {
	b.deadlockInterval = n
	return b
}

// WithLogger sets the logger that reports kernel completion.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// WithSilent suppresses per-kernel log output.
func (b Builder) WithSilent(silent bool) Builder {
	b.silent = silent
	return b
}

// Build creates the platform.
func (b Builder) Build() *Platform {
	if b.numShaders <= 0 {
		log.Panic("platform requires at least one shader")
	}

	if b.decoder == nil {
		b.decoder = addrdec.MakeBuilder().Build()
	}

	if b.logger == nil {
		b.logger = log.New(os.Stdout, "", 0)
	}

	numMemNodes := int(b.decoder.NumSubPartitions())
	pool := mem.NewIDPool()

	p := &Platform{
		numShaders:       b.numShaders,
		decoder:          b.decoder,
		pool:             pool,
		kernels:          make(map[uint64]*kernelState),
		maxCycles:        b.maxCycles,
		maxConcurrent:    b.maxConcurrent,
		deadlockInterval: b.deadlockInterval,
		logger:           b.logger,
		silent:           b.silent,
	}

	p.xbar = crossbar.MakeBuilder().
		WithName("ICNT").
		WithNumShaders(b.numShaders).
		WithNumMemNodes(numMemNodes).
		WithNumSubnets(2).
		WithBufferCapacity(b.icntBufferSize).
		Build()

	for i := 0; i < b.numShaders; i++ {
		p.shaders = append(p.shaders, &shader{
			nodeID:     i,
			numShaders: b.numShaders,
		})
	}

	for i := 0; i < numMemNodes; i++ {
		d := &dram{
			latency:    b.dramLatency,
			queueDepth: b.dramQueueDepth,
		}

		c := cache.MakeBuilder().
			WithName(fmt.Sprintf("L2[%d]", i)).
			WithConfigString(b.cacheConfig).
			WithTransport(d).
			WithIDPool(pool).
			Build()

		p.partitions = append(p.partitions, &partition{
			nodeID: b.numShaders + i,
			cache:  c,
			dram:   d,
			pool:   pool,
		})
	}

	return p
}
