package dump

import (
	"fmt"

	"github.com/sarchlab/vmsim/mem/vm"
)

// Bit layout of packed records. A segment descriptor packs into 64 bits as
// base (24) | limit (24) | flags (3); a page table entry packs into 32 bits as
// frame (24) | flags (5).
const (
	PackedFieldBits = 24
	segmentFlagBits = 3
	pageFlagBits    = 5

	fieldMask = 1<<PackedFieldBits - 1
)

// PackSegment encodes a segment descriptor.
func PackSegment(d vm.SegmentDescriptor) (uint64, error) {
	if d.Base > fieldMask || d.Limit > fieldMask {
		return 0, fmt.Errorf("segment [%d, +%d) does not fit %d bits",
			d.Base, d.Limit, PackedFieldBits)
	}

	flags := uint64(d.Flags) & (1<<segmentFlagBits - 1)

	return uint64(d.Base) |
		uint64(d.Limit)<<PackedFieldBits |
		flags<<(2*PackedFieldBits), nil
}

// UnpackSegment decodes a segment descriptor.
func UnpackSegment(v uint64) vm.SegmentDescriptor {
	return vm.SegmentDescriptor{
		Base:  uint32(v & fieldMask),
		Limit: uint32(v >> PackedFieldBits & fieldMask),
		Flags: vm.SegmentFlags(v >> (2 * PackedFieldBits) &
			(1<<segmentFlagBits - 1)),
	}
}

// PackPage encodes a page table entry.
func PackPage(e vm.PageTableEntry) (uint32, error) {
	if e.Frame > fieldMask {
		return 0, fmt.Errorf("frame %d does not fit %d bits",
			e.Frame, PackedFieldBits)
	}

	flags := uint32(e.Flags) & (1<<pageFlagBits - 1)

	return e.Frame | flags<<PackedFieldBits, nil
}

// UnpackPage decodes a page table entry.
func UnpackPage(v uint32) vm.PageTableEntry {
	return vm.PageTableEntry{
		Frame: v & fieldMask,
		Flags: vm.PageFlags(v >> PackedFieldBits & (1<<pageFlagBits - 1)),
	}
}
