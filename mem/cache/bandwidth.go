package cache

// bandwidthManager models the finite per-cycle throughput of a cache's data
// and fill ports with two occupancy counters. A port is free exactly when
// its counter is zero; each charge adds busy cycles, and each simulated
// cycle drains one.
type bandwidthManager struct {
	config Config

	dataPortOccupiedCycles uint64
	fillPortOccupiedCycles uint64
}

func newBandwidthManager(config Config) *bandwidthManager {
	return &bandwidthManager{config: config}
}

// useDataPort charges the data port for the bytes an access moved. A hit
// pays for the bytes it returns; a miss or reserved hit pays for the dirty
// bytes of the line it displaced, if any. Rejected accesses move no data
// and pay nothing.
func (b *bandwidthManager) useDataPort(
	byteSize uint64,
	outcome AccessStatus,
	writebackSize uint64,
) {
	portWidth := b.config.DataPortWidth

	switch outcome {
	case AccessHit:
		cycles := byteSize / portWidth
		if byteSize%portWidth > 0 {
			cycles++
		}
		b.dataPortOccupiedCycles += cycles
	case AccessMiss, AccessMSHRHit:
		// The data array is read out to produce the writeback.
		b.dataPortOccupiedCycles += writebackSize / portWidth
	}
}

// useFillPort charges the fill port for applying one fill response. The
// whole atom is written regardless of how many bytes the requester asked
// for.
func (b *bandwidthManager) useFillPort() {
	b.fillPortOccupiedCycles += b.config.AtomSize() / b.config.DataPortWidth
}

// replenish drains one busy cycle from each port, flooring at zero.
func (b *bandwidthManager) replenish() {
	if b.dataPortOccupiedCycles > 0 {
		b.dataPortOccupiedCycles--
	}

	if b.fillPortOccupiedCycles > 0 {
		b.fillPortOccupiedCycles--
	}
}

func (b *bandwidthManager) dataPortFree() bool {
	return b.dataPortOccupiedCycles == 0
}

func (b *bandwidthManager) fillPortFree() bool {
	return b.fillPortOccupiedCycles == 0
}
