package vm

// An AddressSpace is the translation state of one process: its segment table
// and its page table.
type AddressSpace struct {
	PID      PID
	Segments *SegmentTable
	Pages    *PageTable
}

// NewAddressSpace creates an empty address space shaped by g.
func NewAddressSpace(pid PID, g Geometry) *AddressSpace {
	return &AddressSpace{
		PID:      pid,
		Segments: NewSegmentTable(g.NumSegments),
		Pages:    NewPageTable(g.NumPages),
	}
}

// Translate converts a logical address to a linear address through the
// segment table.
func (s *AddressSpace) Translate(addr LogicalAddress) (LinearAddress, error) {
	return s.Segments.Translate(addr)
}
