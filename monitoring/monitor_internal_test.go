package monitoring

import (
	"encoding/json"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/gpumemsim/sim"
)

type sampleComponent struct {
	name string

	missQueue  sim.Buffer
	resultFIFO sim.Buffer
}

func (c *sampleComponent) Name() string {
	return c.name
}

func newSampleComponent(name string) *sampleComponent {
	return &sampleComponent{
		name:       name,
		missQueue:  sim.NewBuffer(name+".MissQueue", 8),
		resultFIFO: sim.NewBuffer(name+".ResultFIFO", 4),
	}
}

type fixedCycleSource uint64

func (s fixedCycleSource) Cycles() uint64 {
	return uint64(s)
}

var _ = Describe("Monitor", func() {
	var m *Monitor

	BeforeEach(func() {
		m = NewMonitor()
	})

	It("should register components and discover their buffers", func() {
		c := newSampleComponent("L2[0]")
		m.RegisterComponent(c)

		Expect(m.components).To(HaveLen(1))
		Expect(m.buffers).To(HaveLen(2))
	})

	It("should sort buffers by occupancy", func() {
		c := newSampleComponent("L2[0]")
		m.RegisterComponent(c)

		c.resultFIFO.Push(1)
		c.resultFIFO.Push(2)
		c.resultFIFO.Push(3)
		c.missQueue.Push(1)

		sorted := m.sortAndSelectBuffers("percent", 0, 0)
		Expect(sorted[0].Name()).To(Equal("L2[0].ResultFIFO"))

		sorted = m.sortAndSelectBuffers("level", 1, 0)
		Expect(sorted).To(HaveLen(1))
		Expect(sorted[0].Size()).To(Equal(3))
	})

	It("should clamp buffer pagination", func() {
		m.RegisterComponent(newSampleComponent("L2[0]"))

		Expect(m.sortAndSelectBuffers("percent", 10, 0)).To(HaveLen(2))
		Expect(m.sortAndSelectBuffers("percent", 0, 5)).To(BeEmpty())
	})

	It("should report the simulation cycle", func() {
		m.RegisterCycleSource(fixedCycleSource(42))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/cycles", nil)
		m.router().ServeHTTP(rec, req)

		Expect(rec.Body.String()).To(Equal(`{"cycles":42}`))
	})

	It("should list registered components", func() {
		m.RegisterComponent(newSampleComponent("L2[0]"))
		m.RegisterComponent(newSampleComponent("L2[1]"))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/list_components", nil)
		m.router().ServeHTTP(rec, req)

		var names []string
		Expect(json.Unmarshal(rec.Body.Bytes(), &names)).To(Succeed())
		Expect(names).To(Equal([]string{"L2[0]", "L2[1]"}))
	})

	It("should 404 on an unknown component", func() {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/component/nope", nil)
		m.router().ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(404))
	})

	It("should track progress bars", func() {
		bar := m.CreateProgressBar("kernel 1", 100)
		bar.IncrementInProgress(10)
		bar.MoveInProgressToFinished(4)

		Expect(bar.Finished).To(Equal(uint64(4)))
		Expect(bar.InProgress).To(Equal(uint64(6)))

		m.CompleteProgressBar(bar)
		Expect(m.progressBars).To(BeEmpty())
	})
})
