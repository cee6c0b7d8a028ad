package cache

// Stats accumulates per-cache counters. All counters are owned by one cache
// and sampled by the surrounding simulation between cycles.
type Stats struct {
	Accesses map[AccessStatus]uint64

	Cycles             uint64
	DataPortBusyCycles uint64
	FillPortBusyCycles uint64
	Fills              uint64
	Writebacks         uint64
}

func newStats() *Stats {
	return &Stats{
		Accesses: make(map[AccessStatus]uint64),
	}
}

func (s *Stats) recordAccess(status AccessStatus) {
	s.Accesses[status]++
}

func (s *Stats) samplePortUtility(dataPortBusy, fillPortBusy bool) {
	s.Cycles++
	if dataPortBusy {
		s.DataPortBusyCycles++
	}
	if fillPortBusy {
		s.FillPortBusyCycles++
	}
}

// TotalAccesses returns the number of classified accesses, including
// rejected ones.
func (s *Stats) TotalAccesses() uint64 {
	var total uint64
	for _, n := range s.Accesses {
		total += n
	}

	return total
}

// HitRate returns the fraction of accepted accesses that were hits.
func (s *Stats) HitRate() float64 {
	accepted := s.Accesses[AccessHit] +
		s.Accesses[AccessMSHRHit] +
		s.Accesses[AccessMiss]
	if accepted == 0 {
		return 0
	}

	return float64(s.Accesses[AccessHit]) / float64(accepted)
}
