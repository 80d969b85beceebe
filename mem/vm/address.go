// Package vm provides the models for address translations.
package vm

import "fmt"

// PID stands for Process ID.
type PID uint32

// A LogicalAddress is an address as presented by client code. It is not
// validated until it is translated.
type LogicalAddress struct {
	Segment uint32
	Page    uint32
	Offset  uint32
}

func (a LogicalAddress) String() string {
	return fmt.Sprintf("%d:%d+%d", a.Segment, a.Page, a.Offset)
}

// A LinearAddress is the address obtained after adding the segment base to
// the logical page number. Page indexes the page table.
type LinearAddress struct {
	Page   uint32
	Offset uint32
}

// PhysicalAddress is a byte index into physical memory.
type PhysicalAddress uint64

// MakePhysicalAddress composes a physical address from a frame number and an
// in-page offset.
func MakePhysicalAddress(
	frame uint32,
	offset uint32,
	log2PageSize uint32,
) PhysicalAddress {
	return PhysicalAddress(uint64(frame)<<log2PageSize | uint64(offset))
}

// Frame returns the frame number part of the address.
func (a PhysicalAddress) Frame(log2PageSize uint32) uint32 {
	return uint32(uint64(a) >> log2PageSize)
}

// Offset returns the in-page offset part of the address.
func (a PhysicalAddress) Offset(log2PageSize uint32) uint32 {
	return uint32(uint64(a) & (1<<log2PageSize - 1))
}
