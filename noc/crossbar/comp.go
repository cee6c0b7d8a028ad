// Package crossbar implements a reduced functional model of an on-chip
// interconnect: per-node virtual-channel queues with buffer-capacity
// admission control and round-robin arbitration, without wire-level flit
// or credit simulation.
package crossbar

import (
	"log"

	"github.com/sarchlab/gpumemsim/mem"
	"github.com/sarchlab/gpumemsim/sim"
)

// HookPosPush is triggered when a request is enqueued toward a node.
var HookPosPush = &sim.HookPos{Name: "CrossbarPush"}

// HookPosPop is triggered when a request is handed to its destination.
var HookPosPop = &sim.HookPos{Name: "CrossbarPop"}

// Stats counts the traffic that crossed the interconnect.
type Stats struct {
	Pushed uint64
	Popped uint64

	// InFlight counts requests currently queued toward each node.
	InFlight []int
}

// Comp is a crossbar with two conventional subnets: subnet 0 carries
// requests toward memory nodes, subnet 1 carries replies toward shader
// nodes. Nodes [0, numShaders) are shaders; the rest are memory
// partitions.
type Comp struct {
	sim.HookableBase

	name           string
	numNodes       int
	numShaders     int
	numSubnets     int
	numVCs         int
	bufferCapacity int

	// queues[subnet][node][vc] is the ingress queue of one virtual
	// channel. Queues are unbounded slices; capacity is enforced by the
	// HasBuffer admission check across all VCs of a node.
	queues [][][][]*mem.Request

	// rrTurn[subnet][node] remembers which VC the next Pop starts from.
	rrTurn [][]int

	stats Stats
}

// Name returns the name of the crossbar.
func (c *Comp) Name() string {
	return c.name
}

// Stats returns the traffic counters of the crossbar.
func (c *Comp) Stats() Stats {
	return c.stats
}

// subnetToward returns the subnet that carries traffic toward a node:
// requests flow toward memory on subnet 0, replies toward shaders on
// subnet 1.
func (c *Comp) subnetToward(node int) int {
	if c.numSubnets > 1 && node < c.numShaders {
		return 1
	}

	return 0
}

// subnetFrom returns the subnet a node injects into, mirroring
// subnetToward: shaders inject requests, memory nodes inject replies.
func (c *Comp) subnetFrom(node int) int {
	if c.numSubnets > 1 && node >= c.numShaders {
		return 1
	}

	return 0
}

// HasBuffer reports whether one more payload may be queued toward the
// node. Callers must check it before every Push.
func (c *Comp) HasBuffer(node int, byteSize uint64) bool {
	subnet := c.subnetToward(node)

	depth := 0
	for vc := 0; vc < c.numVCs; vc++ {
		depth += len(c.queues[subnet][node][vc])
	}

	return depth < c.bufferCapacity
}

// Push enqueues a request toward its destination node on virtual channel
// 0. The admission check is a precondition: pushing to a node with no
// buffer room is an internal-consistency violation, not a recoverable
// condition.
func (c *Comp) Push(src, dst int, req *mem.Request) {
	if !c.HasBuffer(dst, req.ByteSize) {
		log.Panicf("%s: push to node %d without buffer room", c.name, dst)
	}

	subnet := c.subnetFrom(src)
	c.queues[subnet][dst][0] = append(c.queues[subnet][dst][0], req)

	req.SrcNode = src
	req.DstNode = dst
	c.stats.Pushed++
	c.stats.InFlight[dst]++

	c.InvokeHook(sim.HookCtx{Domain: c, Pos: HookPosPush, Item: req})
}

// Pop dequeues one request queued toward the node, round-robining across
// its virtual channels from the remembered turn. It returns nil when every
// VC is empty; the turn only advances when a request was found.
func (c *Comp) Pop(node int) *mem.Request {
	subnet := c.subnetToward(node)
	turn := c.rrTurn[subnet][node]

	var req *mem.Request
	for vc := 0; vc < c.numVCs && req == nil; vc++ {
		queue := c.queues[subnet][node][turn]
		if len(queue) > 0 {
			req = queue[0]
			c.queues[subnet][node][turn] = queue[1:]
		}

		turn++
		if turn == c.numVCs {
			turn = 0
		}
	}

	if req != nil {
		c.rrTurn[subnet][node] = turn
		c.stats.Popped++
		c.stats.InFlight[node]--
		c.InvokeHook(sim.HookCtx{Domain: c, Pos: HookPosPop, Item: req})
	}

	return req
}

// Advance is a no-op: all timing in this model is captured by the queue
// depths and the surrounding cache and bandwidth counters.
func (c *Comp) Advance() {
}

// Busy always reports false: the crossbar never blocks the global cycle
// loop.
func (c *Comp) Busy() bool {
	return false
}
