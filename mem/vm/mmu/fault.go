package mmu

import (
	"fmt"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/frame"
)

// handleFault brings a non-resident page of a segment into memory. A free
// frame is used if there is one. Otherwise the second-chance policy picks a
// victim, whose page is written to swap before the frame changes hands.
func (m *Memory) handleFault(p *process, seg *Segment, page uint32) error {
	m.faults++
	p.faults++

	pte, err := p.Pages.Entry(page)
	if err != nil {
		return err
	}

	owner := frame.Owner{PID: p.PID, Segment: seg.id, Page: page}
	fromFree := m.pool.NumFree() > 0

	var f uint32

	if fromFree {
		frames, err := m.pool.Allocate([]frame.Owner{owner})
		if err != nil {
			return err
		}

		f = frames[0]
	} else {
		f, err = m.pool.SelectVictim(m.lookupFrame)
		if err != nil {
			return err
		}

		if err := m.evict(f); err != nil {
			return err
		}

		if err := m.pool.Transfer(f, owner); err != nil {
			return err
		}
	}

	if err := m.swap.ReadPage(p.PID, page, m.frameBytes(f)); err != nil {
		if releaseErr := m.pool.Release(f, p.PID); releaseErr != nil {
			return releaseErr
		}

		return fmt.Errorf("%w: reading page %d of process %d: %v",
			vm.ErrSwapIO, page, p.PID, err)
	}

	pte.Frame = f
	pte.Flags = pte.Flags&^(vm.PageRead|vm.PageWrite) | vm.PageValid
	seg.frames[f] = struct{}{}

	m.invoke(vm.HookPosPageFault, vm.FaultDetail{
		PID:        p.PID,
		Page:       page,
		Frame:      f,
		FromFree:   fromFree,
		FaultCount: m.faults,
	})

	return nil
}

// evict writes the page occupying frame f to swap and unmaps it. The frame
// stays owned by the victim's process until the caller transfers it.
func (m *Memory) evict(f uint32) error {
	owner, found := m.pool.Owner(f)
	if !found {
		return vm.Bookkeepingf("evicting free frame %d", f)
	}

	pte, err := m.lookupFrame(f, owner)
	if err != nil {
		return err
	}

	victim := m.processes[owner.PID]

	seg := victim.segment(owner.Segment)
	if seg == nil {
		return vm.Bookkeepingf("frame %d owned by missing segment %d of "+
			"process %d", f, owner.Segment, owner.PID)
	}

	if err := m.swap.WritePage(owner.PID, owner.Page, m.frameBytes(f)); err != nil {
		return fmt.Errorf("%w: writing page %d of process %d: %v",
			vm.ErrSwapIO, owner.Page, owner.PID, err)
	}

	pte.Flags = pte.Flags&^(vm.PageValid|vm.PageWrite) | vm.PageSwapped
	delete(seg.frames, f)

	m.evictions++
	victim.evictions++

	m.invoke(vm.HookPosEvict, vm.EvictDetail{
		PID:   owner.PID,
		Page:  owner.Page,
		Frame: f,
	})

	return nil
}

// lookupFrame returns the page table entry of the page that occupies an owned
// frame. The owner record is only an index into the page tables; it must
// agree with the entry it points at.
func (m *Memory) lookupFrame(
	f uint32,
	owner frame.Owner,
) (*vm.PageTableEntry, error) {
	p, found := m.processes[owner.PID]
	if !found {
		return nil, vm.Bookkeepingf("frame %d owned by unknown process %d",
			f, owner.PID)
	}

	pte, err := p.Pages.Entry(owner.Page)
	if err != nil {
		return nil, vm.Bookkeepingf("frame %d owned by page %d: %v",
			f, owner.Page, err)
	}

	if !pte.Resident() || pte.Frame != f {
		return nil, vm.Bookkeepingf(
			"frame %d owned by page %d of process %d, which maps %d (%s)",
			f, owner.Page, owner.PID, pte.Frame, pte.Flags)
	}

	return pte, nil
}
