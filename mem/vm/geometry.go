package vm

import "fmt"

// Default geometry: 4 KiB pages, 1 MiB of physical memory, 16 MiB of virtual
// address space per process and 16 segment slots.
const (
	DefaultLog2PageSize = 12
	DefaultNumFrames    = 256
	DefaultNumPages     = 4096
	DefaultNumSegments  = 16
)

// MaxLog2PageSize bounds the page size so that an offset always fits in a
// uint32.
const MaxLog2PageSize = 24

// Geometry describes the shape of physical memory and of every address
// space.
type Geometry struct {
	Log2PageSize uint32
	NumFrames    uint32
	NumPages     uint32
	NumSegments  uint32
}

// DefaultGeometry returns the geometry used when nothing is configured.
func DefaultGeometry() Geometry {
	return Geometry{
		Log2PageSize: DefaultLog2PageSize,
		NumFrames:    DefaultNumFrames,
		NumPages:     DefaultNumPages,
		NumSegments:  DefaultNumSegments,
	}
}

// PageSize returns the number of bytes in a page (and in a frame).
func (g Geometry) PageSize() uint32 {
	return 1 << g.Log2PageSize
}

// PhysicalSize returns the number of bytes of physical memory.
func (g Geometry) PhysicalSize() uint64 {
	return uint64(g.NumFrames) << g.Log2PageSize
}

// VirtualSize returns the number of bytes of one address space.
func (g Geometry) VirtualSize() uint64 {
	return uint64(g.NumPages) << g.Log2PageSize
}

// Validate reports whether the geometry can be simulated.
func (g Geometry) Validate() error {
	switch {
	case g.Log2PageSize == 0 || g.Log2PageSize > MaxLog2PageSize:
		return fmt.Errorf("log2 page size %d not in [1, %d]",
			g.Log2PageSize, MaxLog2PageSize)
	case g.NumFrames == 0:
		return fmt.Errorf("number of frames must be positive")
	case g.NumPages == 0:
		return fmt.Errorf("number of pages must be positive")
	case g.NumSegments == 0:
		return fmt.Errorf("number of segments must be positive")
	}

	return nil
}
