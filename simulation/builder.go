package simulation

import (
	"github.com/rs/xid"

	"github.com/sarchlab/gpumemsim/datarecording"
	"github.com/sarchlab/gpumemsim/monitoring"
)

// Builder can build simulations.
type Builder struct {
	monitorOn      bool
	monitorPort    int
	openBrowser    bool
	outputFileName string
}

// MakeBuilder creates a new builder with monitoring enabled.
func MakeBuilder() Builder {
	return Builder{
		monitorOn: true,
	}
}

// WithoutMonitoring disables the monitoring server.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number of the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithBrowserLaunch opens the monitoring dashboard in the default browser.
func (b Builder) WithBrowserLaunch() Builder {
	b.openBrowser = true
	return b
}

// WithOutputFileName sets a custom output file name for the result
// recorder, without the ".sqlite3" suffix.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if !b.monitorOn && b.openBrowser {
		panic("browser launch requires monitoring")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{
		compNameIndex: make(map[string]int),
	}

	s.id = xid.New().String()

	outputPath := b.outputFileName
	if outputPath == "" {
		outputPath = "gpumemsim_run_" + s.id
	}
	s.dataRecorder = datarecording.NewRecorder(outputPath)

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		if b.openBrowser {
			s.monitor.WithBrowserLaunch()
		}
		s.monitor.StartServer()
	}

	return s
}
