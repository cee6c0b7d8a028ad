package addrdec

import "fmt"

type sweepKey struct {
	decoded          DecodedAddress
	partitionAddress uint64
}

// SweepTest exhaustively decodes the first 1<<addrBits bytes of the address
// space and checks that the decoding is internally consistent: every derived
// index stays in bounds and no two addresses collapse onto the same physical
// location. It is a diagnostic and must not run in the simulation hot path.
//
// The collision check is skipped for the Random scheme, which deliberately
// stripes lines across partitions without regard to the stripped chip bits.
func (t *Translator) SweepTest(addrBits uint) error {
	seen := make(map[sweepKey]uint64)

	for addr := uint64(0); addr < 1<<addrBits; addr += 4 {
		d := t.Decode(addr)

		if d.Chip >= t.numChannels {
			return fmt.Errorf(
				"sweep test: address 0x%x decodes to chip %d, only %d channels",
				addr, d.Chip, t.numChannels)
		}

		if d.SubPartition >= t.numChannels*t.subsPerChannel {
			return fmt.Errorf(
				"sweep test: address 0x%x decodes to sub partition %d, "+
					"only %d sub partitions",
				addr, d.SubPartition, t.numChannels*t.subsPerChannel)
		}

		if t.fn == Random {
			continue
		}

		key := sweepKey{d, t.PartitionAddress(addr)}
		if prev, ok := seen[key]; ok {
			return fmt.Errorf(
				"sweep test: addresses 0x%x and 0x%x decode to the same "+
					"physical location %+v",
				prev, addr, d)
		}

		seen[key] = addr
	}

	return nil
}
