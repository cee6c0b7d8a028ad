package tagging

// A VictimFinder decides which way of a set should be displaced by a new
// allocation.
type VictimFinder interface {
	FindVictim(set []Line) (wayID int, found bool)
}

// LRUVictimFinder selects the least recently used way that is not pinned by
// an in-flight miss.
type LRUVictimFinder struct {
}

// FindVictim returns an unallocated way if one exists, otherwise the
// unreserved way with the oldest access. It fails when every way of the set
// is reserved.
func (f *LRUVictimFinder) FindVictim(set []Line) (wayID int, found bool) {
	for way := range set {
		if !set[way].Allocated {
			return way, true
		}
	}

	wayID = -1
	for way := range set {
		line := &set[way]
		if line.IsReserved() {
			continue
		}

		if wayID < 0 || line.LastAccess < set[wayID].LastAccess {
			wayID = way
		}
	}

	return wayID, wayID >= 0
}
