package crossbar

import (
	"log"

	"github.com/sarchlab/gpumemsim/mem"
	"github.com/sarchlab/gpumemsim/sim"
)

// Builder can build crossbars.
type Builder struct {
	name           string
	numShaders     int
	numMemNodes    int
	numSubnets     int
	numVCs         int
	bufferCapacity int
}

// MakeBuilder creates a builder with a one-shader, one-partition,
// two-subnet default.
func MakeBuilder() Builder {
	return Builder{
		numShaders:     1,
		numMemNodes:    1,
		numSubnets:     2,
		numVCs:         1,
		bufferCapacity: 8,
	}
}

// WithName sets the name of the crossbar to build.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithNumShaders sets the number of shader nodes. Shaders occupy node
// indices [0, numShaders).
func (b Builder) WithNumShaders(n int) Builder {
	b.numShaders = n
	return b
}

// WithNumMemNodes sets the number of memory-partition nodes. They occupy
// the node indices after the shaders.
func (b Builder) WithNumMemNodes(n int) Builder {
	b.numMemNodes = n
	return b
}

// WithNumSubnets sets the number of subnets. With one subnet, requests
// and replies share queues; with two, they are segregated.
func (b Builder) WithNumSubnets(n int) Builder {
	b.numSubnets = n
	return b
}

// WithNumVCs sets the number of virtual channels per node.
func (b Builder) WithNumVCs(n int) Builder {
	b.numVCs = n
	return b
}

// WithBufferCapacity sets the number of payloads that may be queued
// toward one node.
func (b Builder) WithBufferCapacity(n int) Builder {
	b.bufferCapacity = n
	return b
}

// Build creates a crossbar.
func (b Builder) Build() *Comp {
	sim.NameMustBeValid(b.name)

	if b.numShaders <= 0 || b.numMemNodes <= 0 {
		log.Panic("crossbar requires at least one shader and one memory node")
	}

	if b.numSubnets < 1 || b.numSubnets > 2 {
		log.Panic("crossbar supports one or two subnets")
	}

	if b.numVCs < 1 || b.bufferCapacity < 1 {
		log.Panic("crossbar requires positive VC count and buffer capacity")
	}

	numNodes := b.numShaders + b.numMemNodes

	c := &Comp{
		name:           b.name,
		numNodes:       numNodes,
		numShaders:     b.numShaders,
		numSubnets:     b.numSubnets,
		numVCs:         b.numVCs,
		bufferCapacity: b.bufferCapacity,
	}

	c.queues = make([][][][]*mem.Request, b.numSubnets)
	c.rrTurn = make([][]int, b.numSubnets)
	for subnet := 0; subnet < b.numSubnets; subnet++ {
		c.queues[subnet] = make([][][]*mem.Request, numNodes)
		c.rrTurn[subnet] = make([]int, numNodes)
		for node := 0; node < numNodes; node++ {
			c.queues[subnet][node] = make([][]*mem.Request, b.numVCs)
		}
	}

	c.stats.InFlight = make([]int, numNodes)

	return c
}
