package frame

import (
	"fmt"

	"github.com/sarchlab/vmsim/mem/vm"
)

// PageLookup returns the page table entry of the page that occupies an owned
// frame. The entry is the source of truth for the reference bits and is
// updated in place.
type PageLookup func(frame uint32, owner Owner) (*vm.PageTableEntry, error)

// SelectVictim runs the second-chance algorithm over owned frames. Starting
// from the cursor it skips unswappable pages, clears the read bit of
// referenced pages and returns the first unreferenced one. The cursor is
// left on the frame after the victim. Two revolutions are enough to find a
// victim if any frame is swappable.
func (p *Pool) SelectVictim(lookup PageLookup) (uint32, error) {
	n := p.NumFrames()

	for visited := uint32(0); visited < 2*n; visited++ {
		f := p.cursor
		p.cursor = (p.cursor + 1) % n

		if !p.owned[f] {
			return 0, vm.Bookkeepingf(
				"frame %d is free while selecting a victim", f)
		}

		pte, err := lookup(f, p.owners[f])
		if err != nil {
			return 0, err
		}

		if pte.Flags&vm.PageUnswappable != 0 {
			continue
		}

		if pte.Flags&vm.PageRead != 0 {
			pte.Flags &^= vm.PageRead
			continue
		}

		return f, nil
	}

	return 0, fmt.Errorf("%w: all %d frames are unswappable",
		vm.ErrNoFrameAvailable, n)
}
