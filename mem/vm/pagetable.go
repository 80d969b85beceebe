package vm

import "fmt"

// PageFlags holds the state of a virtual page.
type PageFlags uint8

// The page flags. PageRead and PageWrite are the reference bits consumed by
// the replacement policy. PageSwapped records that the swap store holds an
// image of the page written by an eviction.
const (
	PageValid PageFlags = 1 << iota
	PageRead
	PageWrite
	PageUnswappable
	PageSwapped
)

func (f PageFlags) String() string {
	return flagString(uint8(f), []string{"V", "R", "W", "U", "S"})
}

// A PageTableEntry is an entry in the page table, maintaining the information
// about how to translate a linear page to a physical frame. Frame is only
// meaningful while PageValid is set.
type PageTableEntry struct {
	Frame uint32
	Flags PageFlags
}

// Resident tells if the page is backed by a physical frame.
func (e PageTableEntry) Resident() bool {
	return e.Flags&PageValid != 0
}

// A PageTable holds one entry per virtual page of an address space.
type PageTable struct {
	entries []PageTableEntry
}

// NewPageTable creates a page table with numPages non-resident entries.
func NewPageTable(numPages uint32) *PageTable {
	return &PageTable{entries: make([]PageTableEntry, numPages)}
}

// Len returns the number of pages.
func (pt *PageTable) Len() uint32 {
	return uint32(len(pt.entries))
}

// Find returns the entry of a page. The bool return value indicates if the
// page is in range.
func (pt *PageTable) Find(page uint32) (PageTableEntry, bool) {
	if page >= pt.Len() {
		return PageTableEntry{}, false
	}

	return pt.entries[page], true
}

// Entry returns a pointer to the entry of a page so that it can be updated in
// place.
func (pt *PageTable) Entry(page uint32) (*PageTableEntry, error) {
	if page >= pt.Len() {
		return nil, fmt.Errorf("%w: page %d of %d",
			ErrPageOutOfRange, page, pt.Len())
	}

	return &pt.entries[page], nil
}

// Entries returns a copy of the entries in [first, first+count).
func (pt *PageTable) Entries(first, count uint32) []PageTableEntry {
	out := make([]PageTableEntry, count)
	copy(out, pt.entries[first:first+count])

	return out
}

// CountResident returns the number of resident pages in [first, first+count).
func (pt *PageTable) CountResident(first, count uint32) uint32 {
	n := uint32(0)

	for _, e := range pt.entries[first : first+count] {
		if e.Resident() {
			n++
		}
	}

	return n
}
