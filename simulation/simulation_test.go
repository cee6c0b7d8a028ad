package simulation

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type namedComponent struct {
	name string
}

func (c *namedComponent) Name() string {
	return c.name
}

var _ = Describe("Simulation", func() {
	var s *Simulation

	BeforeEach(func() {
		s = MakeBuilder().WithoutMonitoring().Build()

		DeferCleanup(func() {
			s.Terminate()
			os.Remove("gpumemsim_run_" + s.ID() + ".sqlite3")
		})
	})

	It("should register a component", func() {
		c := &namedComponent{name: "L2[0]"}

		s.RegisterComponent(c)

		Expect(s.GetComponentByName("L2[0]")).To(Equal(c))
		Expect(s.Components()).To(HaveLen(1))
	})

	It("should reject duplicate component names", func() {
		c := &namedComponent{name: "L2[0]"}

		s.RegisterComponent(c)
		Expect(func() { s.RegisterComponent(c) }).To(Panic())
	})

	It("should return nil for an unknown component", func() {
		Expect(s.GetComponentByName("nope")).To(BeNil())
	})

	Context("builder with custom output file", func() {
		It("should place results in the named file", func() {
			custom := MakeBuilder().
				WithoutMonitoring().
				WithOutputFileName("test_custom_output").
				Build()
			DeferCleanup(func() {
				custom.Terminate()
				os.Remove("test_custom_output.sqlite3")
			})

			Expect(custom.GetDataRecorder()).NotTo(BeNil())

			_, err := os.Stat("test_custom_output.sqlite3")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	It("should reject a monitor port without monitoring", func() {
		Expect(func() {
			MakeBuilder().WithoutMonitoring().WithMonitorPort(8080).Build()
		}).To(Panic())
	})
})
