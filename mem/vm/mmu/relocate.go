package mmu

import (
	"fmt"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/frame"
)

// MoveSegment relocates a segment to a new base in the linear address space.
// Resident pages keep their frames, and the swap images of evicted pages move
// with them. Nothing changes if the new range is out of the address space or
// overlaps another mapping.
func (m *Memory) MoveSegment(seg *Segment, newBase uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seg == nil || seg.destroyed {
		return fmt.Errorf("%w: segment already destroyed",
			vm.ErrInvalidSegment)
	}

	p := seg.proc
	d, _ := p.Segments.Descriptor(seg.id)

	if newBase == d.Base {
		return nil
	}

	if err := m.checkRange(p, newBase, d.Limit, seg); err != nil {
		return err
	}

	resident, err := m.verifySegmentFrames(seg, d.Base, d.Limit)
	if err != nil {
		return err
	}

	if resident != len(seg.frames) {
		return vm.Bookkeepingf(
			"segment %d of process %d holds %d frames, %d pages resident",
			seg.id, p.PID, len(seg.frames), resident)
	}

	entries := p.Pages.Entries(d.Base, d.Limit)

	if err := m.moveSwapImages(p, entries, d.Base, newBase); err != nil {
		return err
	}

	for i := range entries {
		pte, _ := p.Pages.Entry(d.Base + uint32(i))
		*pte = vm.PageTableEntry{}
	}

	for i, e := range entries {
		page := newBase + uint32(i)
		pte, _ := p.Pages.Entry(page)
		*pte = e

		if !e.Resident() {
			continue
		}

		err := m.pool.Transfer(e.Frame, frame.Owner{
			PID:     p.PID,
			Segment: seg.id,
			Page:    page,
		})
		if err != nil {
			return err
		}
	}

	d.Base = newBase
	p.Segments.Set(seg.id, d)

	m.invokeSegmentHook(vm.HookPosSegmentMove, seg)

	return nil
}

// moveSwapImages rewrites the swap image so that every swapped page of the
// segment is found at its new index and every vacated index reads as zeros.
// On failure the old images are written back.
func (m *Memory) moveSwapImages(
	p *process,
	entries []vm.PageTableEntry,
	oldBase, newBase uint32,
) error {
	limit := uint32(len(entries))
	blocks := make(map[uint32][]byte)

	for i, e := range entries {
		if e.Flags&vm.PageSwapped == 0 {
			continue
		}

		block := make([]byte, m.geometry.PageSize())
		if err := m.swap.ReadPage(p.PID, oldBase+uint32(i), block); err != nil {
			return fmt.Errorf("%w: reading page %d of process %d: %v",
				vm.ErrSwapIO, oldBase+uint32(i), p.PID, err)
		}

		blocks[uint32(i)] = block
	}

	if len(blocks) == 0 {
		return nil
	}

	zeros := make([]byte, m.geometry.PageSize())
	writes := make(map[uint32][]byte)

	for i := range blocks {
		writes[oldBase+i] = zeros
	}

	for i, block := range blocks {
		writes[newBase+i] = block
	}

	written := make([]uint32, 0, len(writes))

	for page := min(oldBase, newBase); page < max(oldBase, newBase)+limit; page++ {
		block, found := writes[page]
		if !found {
			continue
		}

		if err := m.swap.WritePage(p.PID, page, block); err != nil {
			m.restoreSwapImages(p, written, blocks, oldBase, zeros)

			return fmt.Errorf("%w: writing page %d of process %d: %v",
				vm.ErrSwapIO, page, p.PID, err)
		}

		written = append(written, page)
	}

	return nil
}

func (m *Memory) restoreSwapImages(
	p *process,
	written []uint32,
	blocks map[uint32][]byte,
	oldBase uint32,
	zeros []byte,
) {
	for _, page := range written {
		block := zeros

		if page >= oldBase {
			if old, found := blocks[page-oldBase]; found {
				block = old
			}
		}

		_ = m.swap.WritePage(p.PID, page, block)
	}
}

// ResizeSegment changes the number of pages of a segment. Growing a committed
// segment takes frames from the free list; growing a reserved segment only
// extends its range. Shrinking releases the frames of the truncated pages.
func (m *Memory) ResizeSegment(seg *Segment, newLimit uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seg == nil || seg.destroyed {
		return fmt.Errorf("%w: segment already destroyed",
			vm.ErrInvalidSegment)
	}

	if newLimit == 0 {
		return fmt.Errorf("%w: segment %d would have no pages",
			vm.ErrSegmentLimitExceeded, seg.id)
	}

	p := seg.proc
	d, _ := p.Segments.Descriptor(seg.id)

	var err error

	switch {
	case newLimit > d.Limit:
		err = m.growSegment(seg, d, newLimit-d.Limit)
	case newLimit < d.Limit:
		err = m.shrinkSegment(seg, d, d.Limit-newLimit)
	default:
		return nil
	}

	if err != nil {
		return err
	}

	d.Limit = newLimit
	p.Segments.Set(seg.id, d)

	m.invokeSegmentHook(vm.HookPosSegmentResize, seg)

	return nil
}

func (m *Memory) growSegment(
	seg *Segment,
	d vm.SegmentDescriptor,
	extra uint32,
) error {
	if !seg.demand && m.pool.NumFree() < extra {
		return fmt.Errorf("%w: need %d, %d free",
			vm.ErrInsufficientFrames, extra, m.pool.NumFree())
	}

	if err := m.checkRange(seg.proc, d.End(), extra, seg); err != nil {
		return err
	}

	if seg.demand {
		return nil
	}

	return m.commitPages(seg, d.End(), extra)
}

func (m *Memory) shrinkSegment(
	seg *Segment,
	d vm.SegmentDescriptor,
	cut uint32,
) error {
	first := d.End() - cut

	resident, err := m.verifySegmentFrames(seg, first, cut)
	if err != nil {
		return err
	}

	if err := m.scrubSwap(seg.proc, first, cut); err != nil {
		return err
	}

	released, err := m.releasePages(seg, first, cut)
	if err != nil {
		return err
	}

	if released != resident {
		return vm.Bookkeepingf(
			"segment %d of process %d released %d of %d frames",
			seg.id, seg.proc.PID, released, resident)
	}

	return nil
}
