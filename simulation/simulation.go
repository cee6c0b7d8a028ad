// Package simulation bundles the services a simulation run needs: result
// recording, monitoring, and a registry of the simulated components.
package simulation

import (
	"github.com/sarchlab/gpumemsim/datarecording"
	"github.com/sarchlab/gpumemsim/monitoring"
)

// A Simulation holds the shared services of one simulation run.
type Simulation struct {
	id string

	dataRecorder datarecording.Recorder
	monitor      *monitoring.Monitor

	components    []monitoring.Component
	compNameIndex map[string]int
}

// ID returns the unique ID of the simulation run.
func (s *Simulation) ID() string {
	return s.id
}

// GetDataRecorder returns the result recorder of the simulation.
func (s *Simulation) GetDataRecorder() datarecording.Recorder {
	return s.dataRecorder
}

// GetMonitor returns the monitor of the simulation, or nil when monitoring
// is disabled.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// RegisterCycleSource registers the source of the simulation cycle count
// with the monitor.
func (s *Simulation) RegisterCycleSource(src monitoring.CycleSource) {
	if s.monitor != nil {
		s.monitor.RegisterCycleSource(src)
	}
}

// RegisterComponent registers a component with the simulation.
func (s *Simulation) RegisterComponent(c monitoring.Component) {
	name := c.Name()
	if _, exists := s.compNameIndex[name]; exists {
		panic("component " + name + " already registered")
	}

	s.components = append(s.components, c)
	s.compNameIndex[name] = len(s.components) - 1

	if s.monitor != nil {
		s.monitor.RegisterComponent(c)
	}
}

// Components returns all registered components.
func (s *Simulation) Components() []monitoring.Component {
	return s.components
}

// GetComponentByName returns the component with the given name.
func (s *Simulation) GetComponentByName(name string) monitoring.Component {
	index, exists := s.compNameIndex[name]
	if !exists {
		return nil
	}

	return s.components[index]
}

// Terminate flushes and closes the result recorder.
func (s *Simulation) Terminate() {
	s.dataRecorder.Close()
}
