package mmu

import (
	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/frame"
	"github.com/sarchlab/vmsim/mem/vm/swap"
)

// A Builder can build a Memory.
type Builder struct {
	geometry  vm.Geometry
	swapStore swap.Store
	hooks     []vm.Hook
}

// MakeBuilder creates a new builder with the default geometry and an
// in-memory swap store.
func MakeBuilder() Builder {
	return Builder{
		geometry: vm.DefaultGeometry(),
	}
}

// WithGeometry sets the whole geometry at once.
func (b Builder) WithGeometry(g vm.Geometry) Builder {
	b.geometry = g
	return b
}

// WithLog2PageSize sets the page size (and frame size) of the memory.
func (b Builder) WithLog2PageSize(log2PageSize uint32) Builder {
	b.geometry.Log2PageSize = log2PageSize
	return b
}

// WithNumFrames sets the number of physical frames.
func (b Builder) WithNumFrames(n uint32) Builder {
	b.geometry.NumFrames = n
	return b
}

// WithNumPages sets the number of virtual pages of every address space.
func (b Builder) WithNumPages(n uint32) Builder {
	b.geometry.NumPages = n
	return b
}

// WithNumSegments sets the number of segment slots of every address space.
func (b Builder) WithNumSegments(n uint32) Builder {
	b.geometry.NumSegments = n
	return b
}

// WithSwapStore sets the store that backs non-resident pages. The store must
// be sized for the builder's geometry.
func (b Builder) WithSwapStore(s swap.Store) Builder {
	b.swapStore = s
	return b
}

// WithHook registers a hook on the memory being built.
func (b Builder) WithHook(h vm.Hook) Builder {
	b.hooks = append(append([]vm.Hook(nil), b.hooks...), h)
	return b
}

// Build returns a newly created Memory. It panics if the geometry is
// invalid.
func (b Builder) Build(name string) *Memory {
	if err := b.geometry.Validate(); err != nil {
		panic("invalid memory geometry: " + err.Error())
	}

	m := &Memory{
		name:      name,
		geometry:  b.geometry,
		physical:  make([]byte, b.geometry.PhysicalSize()),
		pool:      frame.NewPool(b.geometry.NumFrames),
		swap:      b.swapStore,
		processes: make(map[vm.PID]*process),
	}

	if m.swap == nil {
		m.swap = swap.NewMemStore(b.geometry)
	}

	for _, h := range b.hooks {
		m.HookableBase.AcceptHook(h)
	}

	return m
}
