package mmu

import (
	"fmt"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/frame"
)

// A Segment is a live segment of a process. It holds the frames that back
// the resident pages of its range.
type Segment struct {
	proc      *process
	id        uint32
	demand    bool
	frames    map[uint32]struct{}
	destroyed bool
}

// ID returns the slot of the segment in the segment table.
func (s *Segment) ID() uint32 {
	return s.id
}

// PID returns the process that owns the segment.
func (s *Segment) PID() vm.PID {
	return s.proc.PID
}

// Demand tells if the pages of the segment are faulted in on first touch
// rather than committed when the segment is created.
func (s *Segment) Demand() bool {
	return s.demand
}

// CreateSegment creates a segment whose pages are all backed by frames taken
// from the free list. Nothing changes if the slot is in use, if there are not
// enough free frames or if the range overlaps mapped pages.
func (m *Memory) CreateSegment(
	pid vm.PID,
	id, base, limit uint32,
) (*Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.createSegment(pid, id, base, limit, false)
}

// ReserveSegment creates a segment that commits no frame. Its pages start in
// the swap store and are brought in by page faults.
func (m *Memory) ReserveSegment(
	pid vm.PID,
	id, base, limit uint32,
) (*Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.createSegment(pid, id, base, limit, true)
}

// Segment returns the live segment in slot id of a process.
func (m *Memory) Segment(pid vm.PID, id uint32) (*Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.process(pid)
	if err != nil {
		return nil, err
	}

	return m.liveSegment(p, id)
}

func (m *Memory) liveSegment(p *process, id uint32) (*Segment, error) {
	if _, err := p.Segments.Descriptor(id); err != nil {
		return nil, err
	}

	seg := p.segment(id)
	if seg == nil {
		return nil, fmt.Errorf("%w: segment %d of process %d",
			vm.ErrInvalidSegment, id, p.PID)
	}

	return seg, nil
}

func (m *Memory) createSegment(
	pid vm.PID,
	id, base, limit uint32,
	demand bool,
) (*Segment, error) {
	p, err := m.process(pid)
	if err != nil {
		return nil, err
	}

	d, err := p.Segments.Descriptor(id)
	if err != nil {
		return nil, err
	}

	if d.Valid() {
		return nil, fmt.Errorf("%w: segment %d of process %d",
			vm.ErrSegmentIDInUse, id, pid)
	}

	if limit == 0 {
		return nil, fmt.Errorf("%w: segment %d has no pages",
			vm.ErrSegmentLimitExceeded, id)
	}

	if !demand && m.pool.NumFree() < limit {
		return nil, fmt.Errorf("%w: need %d, %d free",
			vm.ErrInsufficientFrames, limit, m.pool.NumFree())
	}

	if err := m.checkRange(p, base, limit, nil); err != nil {
		return nil, err
	}

	seg := &Segment{
		proc:   p,
		id:     id,
		demand: demand,
		frames: make(map[uint32]struct{}),
	}

	if !demand {
		if err := m.commitPages(seg, base, limit); err != nil {
			return nil, err
		}
	}

	p.Segments.Set(id, vm.SegmentDescriptor{
		Base:  base,
		Limit: limit,
		Flags: vm.SegmentValid | vm.SegmentReadWrite,
	})
	p.segments = append(p.segments, seg)

	m.invokeSegmentHook(vm.HookPosSegmentCreate, seg)

	return seg, nil
}

// checkRange verifies that [base, base+limit) is inside the address space and
// shares no page with another segment or with a resident page. The pages of
// except are ignored.
func (m *Memory) checkRange(
	p *process,
	base, limit uint32,
	except *Segment,
) error {
	if uint64(base)+uint64(limit) > uint64(p.Pages.Len()) {
		return fmt.Errorf("%w: pages [%d, %d) exceed %d",
			vm.ErrPageOutOfRange, base, uint64(base)+uint64(limit),
			p.Pages.Len())
	}

	var own vm.SegmentDescriptor

	for _, s := range p.segments {
		d, _ := p.Segments.Descriptor(s.id)
		if s == except {
			own = d
			continue
		}

		if d.Overlaps(base, limit) {
			return fmt.Errorf("%w: pages [%d, %d) overlap segment %d",
				vm.ErrOverlapDetected, base, base+limit, s.id)
		}
	}

	for page := base; page < base+limit; page++ {
		if except != nil && own.Contains(page) {
			continue
		}

		if e, _ := p.Pages.Find(page); e.Resident() {
			return fmt.Errorf("%w: page %d is mapped",
				vm.ErrOverlapDetected, page)
		}
	}

	return nil
}

// commitPages backs [base, base+count) with zeroed frames from the free list.
func (m *Memory) commitPages(seg *Segment, base, count uint32) error {
	owners := make([]frame.Owner, count)
	for i := range owners {
		owners[i] = frame.Owner{
			PID:     seg.proc.PID,
			Segment: seg.id,
			Page:    base + uint32(i),
		}
	}

	frames, err := m.pool.Allocate(owners)
	if err != nil {
		return err
	}

	for i, f := range frames {
		pte, _ := seg.proc.Pages.Entry(base + uint32(i))
		*pte = vm.PageTableEntry{Frame: f, Flags: vm.PageValid}
		seg.frames[f] = struct{}{}
		m.zeroFrame(f)
	}

	return nil
}

// DestroySegment returns every frame of a segment to the free list and
// frees its slot in the segment table.
func (m *Memory) DestroySegment(seg *Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seg == nil || seg.destroyed {
		return fmt.Errorf("%w: segment already destroyed",
			vm.ErrInvalidSegment)
	}

	return m.destroySegment(seg)
}

// DestroySegmentByID destroys the segment in slot id of a process.
func (m *Memory) DestroySegmentByID(pid vm.PID, id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.process(pid)
	if err != nil {
		return err
	}

	seg, err := m.liveSegment(p, id)
	if err != nil {
		return err
	}

	return m.destroySegment(seg)
}

func (m *Memory) destroySegment(seg *Segment) error {
	p := seg.proc

	d, _ := p.Segments.Descriptor(seg.id)
	if !d.Valid() {
		return vm.Bookkeepingf("releasing invalid segment %d of process %d",
			seg.id, p.PID)
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

	if err := m.scrubSwap(p, d.Base, d.Limit); err != nil {
		return err
	}

	released, err := m.releasePages(seg, d.Base, d.Limit)
	if err != nil {
		return err
	}

	if released != resident || len(seg.frames) != 0 {
		return vm.Bookkeepingf(
			"segment %d of process %d released %d of %d frames",
			seg.id, p.PID, released, resident)
	}

	p.Segments.Set(seg.id, vm.SegmentDescriptor{})
	p.removeSegment(seg)
	seg.destroyed = true

	m.invoke(vm.HookPosSegmentDestroy, vm.SegmentDetail{
		PID:        p.PID,
		Segment:    seg.id,
		Descriptor: d,
		Frames:     released,
	})

	return nil
}

// verifySegmentFrames checks, before anything is released, that every
// resident page in [base, base+count) maps a frame recorded for the segment
// and owned by the process. It returns the number of resident pages.
func (m *Memory) verifySegmentFrames(
	seg *Segment,
	base, count uint32,
) (int, error) {
	p := seg.proc
	resident := 0

	for page := base; page < base+count; page++ {
		e, _ := p.Pages.Find(page)
		if !e.Resident() {
			continue
		}

		resident++

		if _, found := seg.frames[e.Frame]; !found {
			return 0, vm.Bookkeepingf(
				"page %d of process %d maps frame %d outside segment %d",
				page, p.PID, e.Frame, seg.id)
		}

		if err := m.pool.VerifyOwner(e.Frame, p.PID); err != nil {
			return 0, err
		}
	}

	return resident, nil
}

// releasePages unmaps [base, base+count) and returns the resident frames to
// the free list in page order.
func (m *Memory) releasePages(seg *Segment, base, count uint32) (int, error) {
	p := seg.proc
	released := 0

	for page := base; page < base+count; page++ {
		pte, _ := p.Pages.Entry(page)

		if pte.Resident() {
			if err := m.pool.Release(pte.Frame, p.PID); err != nil {
				return released, err
			}

			delete(seg.frames, pte.Frame)
			released++
		}

		*pte = vm.PageTableEntry{}
	}

	return released, nil
}

// scrubSwap zeroes the swap image of every page in [base, base+count) that
// an eviction wrote out, so that a later segment on these pages starts from
// zeros.
func (m *Memory) scrubSwap(p *process, base, count uint32) error {
	var zeros []byte

	for page := base; page < base+count; page++ {
		e, _ := p.Pages.Find(page)
		if e.Flags&vm.PageSwapped == 0 {
			continue
		}

		if zeros == nil {
			zeros = make([]byte, m.geometry.PageSize())
		}

		if err := m.swap.WritePage(p.PID, page, zeros); err != nil {
			return fmt.Errorf("%w: scrubbing page %d of process %d: %v",
				vm.ErrSwapIO, page, p.PID, err)
		}
	}

	return nil
}

// Protect sets the access rights of a segment.
func (m *Memory) Protect(pid vm.PID, id uint32, access vm.SegmentFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.process(pid)
	if err != nil {
		return err
	}

	seg, err := m.liveSegment(p, id)
	if err != nil {
		return err
	}

	d, _ := p.Segments.Descriptor(seg.id)
	d.Flags = vm.SegmentValid | access&vm.SegmentReadWrite
	p.Segments.Set(seg.id, d)

	return nil
}

// Pin marks the page of a logical address unswappable. A pinned page is
// never chosen as a victim.
func (m *Memory) Pin(pid vm.PID, addr vm.LogicalAddress) error {
	return m.setPageFlag(pid, addr, vm.PageUnswappable, true)
}

// Unpin makes the page of a logical address swappable again.
func (m *Memory) Unpin(pid vm.PID, addr vm.LogicalAddress) error {
	return m.setPageFlag(pid, addr, vm.PageUnswappable, false)
}

func (m *Memory) setPageFlag(
	pid vm.PID,
	addr vm.LogicalAddress,
	flag vm.PageFlags,
	set bool,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.process(pid)
	if err != nil {
		return err
	}

	lin, err := p.Translate(addr)
	if err != nil {
		return err
	}

	pte, err := p.Pages.Entry(lin.Page)
	if err != nil {
		return err
	}

	if set {
		pte.Flags |= flag
	} else {
		pte.Flags &^= flag
	}

	return nil
}

func (m *Memory) invokeSegmentHook(pos *vm.HookPos, seg *Segment) {
	d, _ := seg.proc.Segments.Descriptor(seg.id)

	m.invoke(pos, vm.SegmentDetail{
		PID:        seg.proc.PID,
		Segment:    seg.id,
		Descriptor: d,
		Frames:     len(seg.frames),
	})
}
