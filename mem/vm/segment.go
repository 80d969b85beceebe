package vm

import (
	"fmt"
	"strings"
)

// SegmentFlags describes the state and the access rights of a segment.
type SegmentFlags uint8

// The segment flags.
const (
	SegmentValid SegmentFlags = 1 << iota
	SegmentRead
	SegmentWrite
)

// SegmentReadWrite is the access mask of an ordinary data segment.
const SegmentReadWrite = SegmentRead | SegmentWrite

func (f SegmentFlags) String() string {
	return flagString(uint8(f), []string{"V", "R", "W"})
}

// A SegmentDescriptor maps a segment to a contiguous range of linear pages.
// A descriptor without SegmentValid is a free slot.
type SegmentDescriptor struct {
	Base  uint32
	Limit uint32
	Flags SegmentFlags
}

// Valid tells if the descriptor is in use.
func (d SegmentDescriptor) Valid() bool {
	return d.Flags&SegmentValid != 0
}

// End returns the first linear page after the segment.
func (d SegmentDescriptor) End() uint32 {
	return d.Base + d.Limit
}

// Contains tells if a linear page belongs to the segment.
func (d SegmentDescriptor) Contains(page uint32) bool {
	return page >= d.Base && page < d.End()
}

// Overlaps tells if the segment shares at least one page with
// [base, base+limit).
func (d SegmentDescriptor) Overlaps(base, limit uint32) bool {
	return base < d.End() && d.Base < base+limit
}

// A SegmentTable holds the descriptors of one address space.
type SegmentTable struct {
	descriptors []SegmentDescriptor
}

// NewSegmentTable creates a table with n free slots.
func NewSegmentTable(n uint32) *SegmentTable {
	return &SegmentTable{descriptors: make([]SegmentDescriptor, n)}
}

// Len returns the number of slots.
func (t *SegmentTable) Len() uint32 {
	return uint32(len(t.descriptors))
}

// Descriptor returns the descriptor in slot id.
func (t *SegmentTable) Descriptor(id uint32) (SegmentDescriptor, error) {
	if id >= t.Len() {
		return SegmentDescriptor{}, fmt.Errorf("%w: segment %d of %d",
			ErrSegmentOutOfRange, id, t.Len())
	}

	return t.descriptors[id], nil
}

// Set overwrites the descriptor in slot id. The slot must exist.
func (t *SegmentTable) Set(id uint32, d SegmentDescriptor) {
	t.descriptors[id] = d
}

// Descriptors returns a copy of all the slots.
func (t *SegmentTable) Descriptors() []SegmentDescriptor {
	out := make([]SegmentDescriptor, len(t.descriptors))
	copy(out, t.descriptors)

	return out
}

// Translate converts a logical address to a linear address. It has no side
// effects.
func (t *SegmentTable) Translate(addr LogicalAddress) (LinearAddress, error) {
	d, err := t.Descriptor(addr.Segment)
	if err != nil {
		return LinearAddress{}, err
	}

	if !d.Valid() {
		return LinearAddress{}, fmt.Errorf("%w: segment %d",
			ErrInvalidSegment, addr.Segment)
	}

	if addr.Page >= d.Limit {
		return LinearAddress{}, fmt.Errorf("%w: page %d, limit %d",
			ErrSegmentLimitExceeded, addr.Page, d.Limit)
	}

	return LinearAddress{
		Page:   d.Base + addr.Page,
		Offset: addr.Offset,
	}, nil
}

func flagString(bits uint8, names []string) string {
	var sb strings.Builder

	for i, name := range names {
		if bits&(1<<i) != 0 {
			sb.WriteString(name)
		} else {
			sb.WriteByte('-')
		}
	}

	return sb.String()
}
