// Package addrdec maps linear byte addresses to physical DRAM coordinates.
//
// A Translator decodes an address into {chip, bank, row, column, burst} plus
// a sub-partition index, following a configurable bit-layout string and one
// of several partition-indexing schemes. Decoding is pure: for a fixed
// configuration, the same address always decodes to the same coordinates.
package addrdec

import (
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
)

// The fields a layout string can place on address bits.
const (
	fieldChip = iota
	fieldBank
	fieldRow
	fieldCol
	fieldBurst
	numFields
)

var fieldLetters = map[byte]int{
	'D': fieldChip,
	'B': fieldBank,
	'R': fieldRow,
	'C': fieldCol,
	'S': fieldBurst,
}

// DefaultLayout mirrors the GDDR-style mapping commonly used for 8-channel
// configurations, with the chip index inserted at bit 8.
const DefaultLayout = "dramid@8;00000000.00000000.00000000.00000000." +
	"0000RRRR.RRRRRRRR.RBBBCCCC.BCCSSSSS"

// PartitionFunction selects the scheme that maps address bits to a memory
// partition.
type PartitionFunction int

// The supported partition-indexing schemes.
const (
	Consecutive PartitionFunction = iota
	BitwisePermutation
	IPoly
	PAE
	Random
	Custom
)

var partitionFunctionNames = map[string]PartitionFunction{
	"consecutive": Consecutive,
	"bitwise":     BitwisePermutation,
	"ipoly":       IPoly,
	"pae":         PAE,
	"random":      Random,
	"custom":      Custom,
}

// ParsePartitionFunction converts a scheme name into a PartitionFunction.
func ParsePartitionFunction(name string) (PartitionFunction, error) {
	fn, ok := partitionFunctionNames[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown partition function %q", name)
	}

	return fn, nil
}

// A CustomIndexFunc lets the caller supply its own chip-indexing scheme. It
// must be a bijection over the chip index for any fixed remaining address.
type CustomIndexFunc func(addr uint64, chip uint64, numChannels uint64) uint64

// A DecodedAddress is the physical location an address maps to.
type DecodedAddress struct {
	Chip  uint64
	Bank  uint64
	Row   uint64
	Col   uint64
	Burst uint64

	SubPartition uint64
}

// A Translator decodes linear addresses. Construct one with a Builder.
type Translator struct {
	masks [numFields]uint64
	lows  [numFields]uint8
	highs [numFields]uint8

	// chipShift is the bit position at which the chip index is inserted in
	// the address. It is -1 when the layout places chip bits explicitly.
	chipShift int

	numChannels      uint64
	subsPerChannel   uint64
	log2Channel      uint
	nextPow2Channels uint64

	// subPartitionMask covers the bank bits that select the sub partition
	// within a channel.
	subPartitionMask uint64

	fn     PartitionFunction
	custom CustomIndexFunc

	randomTable map[uint64]uint64
	rng         *rand.Rand
}

// Builder can build Translators.
type Builder struct {
	layout         string
	numChannels    uint64
	subsPerChannel uint64
	fn             PartitionFunction
	custom         CustomIndexFunc
	seed           int64
}

// MakeBuilder creates a Builder with the default layout, 8 channels, 2 sub
// partitions per channel, and consecutive indexing.
func MakeBuilder() Builder {
	return Builder{
		layout:         DefaultLayout,
		numChannels:    8,
		subsPerChannel: 2,
		fn:             Consecutive,
		seed:           1,
	}
}

// WithLayout sets the bit-layout string.
func (b Builder) WithLayout(layout string) Builder {
	b.layout = layout
	return b
}

// WithNumChannels sets the number of memory channels.
func (b Builder) WithNumChannels(n uint64) Builder {
	b.numChannels = n
	return b
}

// WithSubPartitionsPerChannel sets the number of sub partitions in each
// channel.
func (b Builder) WithSubPartitionsPerChannel(n uint64) Builder {
	b.subsPerChannel = n
	return b
}

// WithPartitionFunction sets the partition-indexing scheme.
func (b Builder) WithPartitionFunction(fn PartitionFunction) Builder {
	b.fn = fn
	return b
}

// WithCustomFunction sets the caller-supplied indexing function. It is only
// used when the partition function is Custom.
func (b Builder) WithCustomFunction(fn CustomIndexFunc) Builder {
	b.custom = fn
	return b
}

// WithRandomSeed sets the seed of the table-driven random indexing scheme.
func (b Builder) WithRandomSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// Build creates the Translator. It panics if the layout places two fields on
// the same address bit, which is a configuration bug.
func (b Builder) Build() *Translator {
	t := &Translator{
		chipShift:      -1,
		numChannels:    b.numChannels,
		subsPerChannel: b.subsPerChannel,
		fn:             b.fn,
		custom:         b.custom,
		randomTable:    make(map[uint64]uint64),
		rng:            rand.New(rand.NewSource(b.seed)),
	}

	if b.numChannels == 0 || b.subsPerChannel == 0 {
		log.Panic("addrdec: channel and sub-partition counts must be positive")
	}

	if b.fn == Custom && b.custom == nil {
		log.Panic("addrdec: custom partition function requires a function")
	}

	err := t.parseLayout(b.layout)
	if err != nil {
		log.Panic(err)
	}

	t.log2Channel = logB2(b.numChannels)
	t.nextPow2Channels = nextPowerOf2(b.numChannels)
	t.deriveSubPartitionMask()

	return t
}

func (t *Translator) parseLayout(layout string) error {
	maskPart := layout

	if prefix, rest, found := strings.Cut(layout, ";"); found {
		shiftStr, ok := strings.CutPrefix(prefix, "dramid@")
		if !ok {
			return fmt.Errorf("addrdec: bad layout prefix %q", prefix)
		}

		shift, err := strconv.Atoi(shiftStr)
		if err != nil {
			return fmt.Errorf("addrdec: bad dramid position %q", shiftStr)
		}

		t.chipShift = shift
		maskPart = rest
	}

	bits := strings.ReplaceAll(maskPart, ".", "")
	if len(bits) > 64 {
		return fmt.Errorf("addrdec: layout covers %d bits, at most 64 allowed",
			len(bits))
	}

	// The leftmost character of the layout maps to the highest bit.
	for i := 0; i < len(bits); i++ {
		c := bits[i]
		if c == '0' {
			continue
		}

		field, ok := fieldLetters[c]
		if !ok {
			return fmt.Errorf("addrdec: unknown layout letter %q", string(c))
		}

		bit := uint(len(bits) - 1 - i)
		t.masks[field] |= 1 << bit
	}

	if t.chipShift >= 0 && t.masks[fieldChip] != 0 {
		return fmt.Errorf(
			"addrdec: layout places chip bits both via dramid@%d and via D letters",
			t.chipShift)
	}

	t.fieldsMustNotOverlap()
	t.deriveMaskLimits()

	return nil
}

// fieldsMustNotOverlap double-checks that no address bit belongs to two
// fields. A single layout string cannot produce overlaps, but the check
// guards future mask-level configuration paths.
func (t *Translator) fieldsMustNotOverlap() {
	var seen uint64

	for f := 0; f < numFields; f++ {
		if seen&t.masks[f] != 0 {
			log.Panic("addrdec: overlapping bit ranges in address layout")
		}

		seen |= t.masks[f]
	}
}

func (t *Translator) deriveMaskLimits() {
	for f := 0; f < numFields; f++ {
		t.lows[f], t.highs[f] = maskLimit(t.masks[f])
	}
}

// deriveSubPartitionMask picks the low-order bank bits that select the sub
// partition within a channel.
func (t *Translator) deriveSubPartitionMask() {
	needed := logB2(t.subsPerChannel)

	var mask uint64
	var count uint
	for bit := uint(0); bit < 64 && count < needed; bit++ {
		if t.masks[fieldBank]&(1<<bit) != 0 {
			mask |= 1 << bit
			count++
		}
	}

	t.subPartitionMask = mask
}

// Decode maps a byte address to its physical location.
func (t *Translator) Decode(addr uint64) DecodedAddress {
	var d DecodedAddress
	rest := addr

	if t.chipShift >= 0 {
		d.Chip = (addr >> uint(t.chipShift)) % t.numChannels
		rest = ((addr>>uint(t.chipShift))/t.numChannels)<<uint(t.chipShift) |
			addr&(1<<uint(t.chipShift)-1)
	} else {
		d.Chip = packBits(t.masks[fieldChip], addr,
			t.lows[fieldChip], t.highs[fieldChip])
	}

	d.Bank = packBits(t.masks[fieldBank], rest,
		t.lows[fieldBank], t.highs[fieldBank])
	d.Row = packBits(t.masks[fieldRow], rest,
		t.lows[fieldRow], t.highs[fieldRow])
	d.Col = packBits(t.masks[fieldCol], rest,
		t.lows[fieldCol], t.highs[fieldCol])
	d.Burst = packBits(t.masks[fieldBurst], rest,
		t.lows[fieldBurst], t.highs[fieldBurst])

	d.Chip = t.indexPartition(addr, t.hashBase(addr, rest), d.Chip, d.Row)
	d.SubPartition = d.Chip*t.subsPerChannel + d.Bank%t.subsPerChannel

	return d
}

// hashBase is the chip-stripped address that partition hashes fold over.
// Hashing the raw address would let the chip-selecting bits feed back into
// the chip index and break the bijection between addresses and locations.
func (t *Translator) hashBase(addr, rest uint64) uint64 {
	if t.chipShift >= 0 {
		return rest
	}

	return removeBits(addr, t.masks[fieldChip])
}

// indexPartition applies the configured partition-indexing scheme. Every
// scheme is a bijection over the chip index for a fixed remaining address,
// so decoding stays injective even when the channel count is not a power of
// two.
func (t *Translator) indexPartition(addr, hashBase, chip, row uint64) uint64 {
	switch t.fn {
	case Consecutive:
		return chip
	case BitwisePermutation:
		return t.permuteChip(chip, row)
	case IPoly:
		return (chip + ipolyHash(hashBase>>t.chipLow())) % t.numChannels
	case PAE:
		return t.paeChip(hashBase, chip)
	case Random:
		return t.randomChip(addr)
	case Custom:
		return t.custom(addr, chip, t.numChannels) % t.numChannels
	default:
		log.Panic("addrdec: unknown partition function")
		return 0
	}
}

// permuteChip xors the chip index with folded row bits. When the channel
// count is not a power of two the xor may leave the valid range, so it falls
// back to an additive permutation, which is a bijection for any modulus.
func (t *Translator) permuteChip(chip, row uint64) uint64 {
	fold := row ^ (row >> t.log2Channel) ^ (row >> (2 * t.log2Channel))

	if t.nextPow2Channels == t.numChannels {
		return chip ^ (fold & (t.numChannels - 1))
	}

	return (chip + fold) % t.numChannels
}

// paeChip spreads power-of-two strides across channels by hashing the bits
// right above the chip field.
func (t *Translator) paeChip(addr, chip uint64) uint64 {
	upper := addr >> (t.chipLow() + t.log2Channel)
	fold := upper
	for shift := t.log2Channel; shift < 24; shift += t.log2Channel {
		fold ^= upper >> shift
	}

	if t.nextPow2Channels == t.numChannels {
		return chip ^ (fold & (t.numChannels - 1))
	}

	return (chip + fold) % t.numChannels
}

// randomChip draws a stable pseudo-random chip for the cache line of the
// address. The table is fixed per translator, so repeated decodes agree.
func (t *Translator) randomChip(addr uint64) uint64 {
	line := addr >> 7

	chip, ok := t.randomTable[line]
	if !ok {
		chip = uint64(t.rng.Int63n(int64(t.numChannels)))
		t.randomTable[line] = chip
	}

	return chip
}

// chipLow returns the bit position right above which the partition-indexing
// hashes start folding address bits.
func (t *Translator) chipLow() uint {
	if t.chipShift >= 0 {
		return uint(t.chipShift)
	}

	return uint(t.lows[fieldChip])
}

// ipolyHash computes an integer-polynomial (CRC-style) hash of the value,
// folding it through the polynomial x^4 + x + 1.
func ipolyHash(v uint64) uint64 {
	var hash uint64

	for v != 0 {
		hash ^= v & 0xf
		v >>= 4
	}

	hash = hash ^ (hash >> 2) ^ (hash >> 3)

	return hash
}

// NumChannels returns the number of memory channels the translator
// decodes into.
func (t *Translator) NumChannels() uint64 {
	return t.numChannels
}

// NumSubPartitions returns the total number of sub partitions across all
// channels.
func (t *Translator) NumSubPartitions() uint64 {
	return t.numChannels * t.subsPerChannel
}

// PartitionAddress strips the partition-selecting bits from an address,
// producing the address a downstream partition actually stores.
func (t *Translator) PartitionAddress(addr uint64) uint64 {
	if t.chipShift >= 0 {
		stripped := ((addr>>uint(t.chipShift))/t.numChannels)<<
			uint(t.chipShift) | addr&(1<<uint(t.chipShift)-1)
		return removeBits(stripped, t.subPartitionMask)
	}

	return removeBits(addr, t.masks[fieldChip]|t.subPartitionMask)
}

// packBits gathers the bits of val covered by mask, between bit positions
// low (inclusive) and high (exclusive), into a densely packed value.
func packBits(mask, val uint64, low, high uint8) uint64 {
	var result uint64

	pos := 0
	for i := low; i < high; i++ {
		if mask&(1<<i) != 0 {
			if val&(1<<i) != 0 {
				result |= 1 << uint(pos)
			}
			pos++
		}
	}

	return result
}

// removeBits compresses val by dropping the bits covered by mask.
func removeBits(val, mask uint64) uint64 {
	var result uint64

	pos := 0
	for i := 0; i < 64; i++ {
		if mask&(1<<i) != 0 {
			continue
		}

		if val&(1<<i) != 0 {
			result |= 1 << uint(pos)
		}
		pos++
	}

	return result
}

// maskLimit returns the lowest set bit position and one past the highest set
// bit position of the mask.
func maskLimit(mask uint64) (low, high uint8) {
	low = 64
	high = 0

	for i := uint8(0); i < 64; i++ {
		if mask&(1<<i) != 0 {
			if i < low {
				low = i
			}
			high = i + 1
		}
	}

	if low == 64 {
		low = 0
	}

	return low, high
}

// logB2 returns floor(log2(v)).
func logB2(v uint64) uint {
	var r uint
	for v >>= 1; v != 0; v >>= 1 {
		r++
	}

	return r
}

// nextPowerOf2 returns the smallest power of two that is >= n.
func nextPowerOf2(n uint64) uint64 {
	p := uint64(1)
	for p < n {
		p <<= 1
	}

	return p
}
