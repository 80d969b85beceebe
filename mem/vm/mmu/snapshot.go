package mmu

import (
	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/frame"
)

// FrameInfo describes the state of one physical frame.
type FrameInfo struct {
	Frame   uint32
	Free    bool
	PID     vm.PID
	Segment uint32
	Page    uint32
}

// SegmentInfo describes a live segment.
type SegmentInfo struct {
	ID uint32
	vm.SegmentDescriptor
	Demand   bool
	Resident uint32
}

// ProcessStats holds the counters of one process.
type ProcessStats struct {
	PID       vm.PID
	Segments  int
	Frames    uint32
	Faults    uint64
	Evictions uint64
}

// Stats holds the counters of the whole memory.
type Stats struct {
	TotalFrames uint32
	FreeFrames  uint32
	Processes   int
	Faults      uint64
	Evictions   uint64
	Cursor      uint32
}

// ProcessSnapshot is a copy of the translation state of one process.
type ProcessSnapshot struct {
	ProcessStats
	Descriptors []vm.SegmentDescriptor
	Segments    []SegmentInfo
	Pages       []vm.PageTableEntry
}

// Snapshot is a copy of the whole bookkeeping state of a Memory.
type Snapshot struct {
	Name      string
	Geometry  vm.Geometry
	Stats     Stats
	FreeList  []uint32
	Frames    []FrameInfo
	Processes []ProcessSnapshot
}

// PIDs returns the admitted processes in admission order.
func (m *Memory) PIDs() []vm.PID {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]vm.PID(nil), m.pids...)
}

// FaultCount returns the number of page faults served so far.
func (m *Memory) FaultCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.faults
}

// FreeFrames returns the length of the free list.
func (m *Memory) FreeFrames() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.pool.NumFree()
}

// Stats returns the global counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stats()
}

func (m *Memory) stats() Stats {
	return Stats{
		TotalFrames: m.pool.NumFrames(),
		FreeFrames:  m.pool.NumFree(),
		Processes:   len(m.processes),
		Faults:      m.faults,
		Evictions:   m.evictions,
		Cursor:      m.pool.Cursor(),
	}
}

// ProcessStats returns the counters of a process.
func (m *Memory) ProcessStats(pid vm.PID) (ProcessStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.process(pid)
	if err != nil {
		return ProcessStats{}, err
	}

	return m.processStats(p), nil
}

func (m *Memory) processStats(p *process) ProcessStats {
	return ProcessStats{
		PID:       p.PID,
		Segments:  len(p.segments),
		Frames:    m.pool.CountOwnedBy(p.PID),
		Faults:    p.faults,
		Evictions: p.evictions,
	}
}

// Segments returns the live segments of a process in creation order.
func (m *Memory) Segments(pid vm.PID) ([]SegmentInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.process(pid)
	if err != nil {
		return nil, err
	}

	return m.segmentInfos(p), nil
}

func (m *Memory) segmentInfos(p *process) []SegmentInfo {
	infos := make([]SegmentInfo, 0, len(p.segments))

	for _, s := range p.segments {
		d, _ := p.Segments.Descriptor(s.id)
		infos = append(infos, SegmentInfo{
			ID:                s.id,
			SegmentDescriptor: d,
			Demand:            s.demand,
			Resident:          uint32(len(s.frames)),
		})
	}

	return infos
}

// PageEntry returns a copy of the page table entry of a linear page.
func (m *Memory) PageEntry(pid vm.PID, page uint32) (vm.PageTableEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.process(pid)
	if err != nil {
		return vm.PageTableEntry{}, err
	}

	pte, err := p.Pages.Entry(page)
	if err != nil {
		return vm.PageTableEntry{}, err
	}

	return *pte, nil
}

// Pages returns a copy of the whole page table of a process.
func (m *Memory) Pages(pid vm.PID) ([]vm.PageTableEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.process(pid)
	if err != nil {
		return nil, err
	}

	return p.Pages.Entries(0, p.Pages.Len()), nil
}

// FrameOwner returns the page that occupies a frame.
func (m *Memory) FrameOwner(f uint32) (frame.Owner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.pool.Owner(f)
}

// Frames returns the state of every frame.
func (m *Memory) Frames() []FrameInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.frameInfos()
}

func (m *Memory) frameInfos() []FrameInfo {
	infos := make([]FrameInfo, m.pool.NumFrames())

	for i := range infos {
		f := uint32(i)
		infos[i].Frame = f

		owner, owned := m.pool.Owner(f)
		if !owned {
			infos[i].Free = true
			continue
		}

		infos[i].PID = owner.PID
		infos[i].Segment = owner.Segment
		infos[i].Page = owner.Page
	}

	return infos
}

// Snapshot copies the whole bookkeeping state. Physical memory content is not
// included.
func (m *Memory) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Name:     m.name,
		Geometry: m.geometry,
		Stats:    m.stats(),
		FreeList: m.pool.Free(),
		Frames:   m.frameInfos(),
	}

	for _, pid := range m.pids {
		p := m.processes[pid]
		s.Processes = append(s.Processes, ProcessSnapshot{
			ProcessStats: m.processStats(p),
			Descriptors:  p.Segments.Descriptors(),
			Segments:     m.segmentInfos(p),
			Pages:        p.Pages.Entries(0, p.Pages.Len()),
		})
	}

	return s
}

// CheckInvariants verifies the frame ownership invariants. It returns a
// bookkeeping error describing the first violation found.
func (m *Memory) CheckInvariants() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pool.Check(); err != nil {
		return err
	}

	owned := uint32(0)

	for _, pid := range m.pids {
		p := m.processes[pid]

		if err := m.checkSegments(p); err != nil {
			return err
		}

		n, err := m.checkPages(p)
		if err != nil {
			return err
		}

		owned += n
	}

	if m.pool.NumFree()+owned != m.pool.NumFrames() {
		return vm.Bookkeepingf("%d free + %d owned frames != %d frames",
			m.pool.NumFree(), owned, m.pool.NumFrames())
	}

	for i := uint32(0); i < m.pool.NumFrames(); i++ {
		owner, found := m.pool.Owner(i)
		if !found {
			continue
		}

		if _, err := m.lookupFrame(i, owner); err != nil {
			return err
		}
	}

	return nil
}

// checkSegments verifies that live segments do not overlap and that each
// records exactly the frames of its resident pages.
func (m *Memory) checkSegments(p *process) error {
	for i, s := range p.segments {
		d, _ := p.Segments.Descriptor(s.id)
		if !d.Valid() {
			return vm.Bookkeepingf("live segment %d of process %d is invalid",
				s.id, p.PID)
		}

		for _, other := range p.segments[i+1:] {
			od, _ := p.Segments.Descriptor(other.id)
			if d.Overlaps(od.Base, od.Limit) {
				return vm.Bookkeepingf(
					"segments %d and %d of process %d overlap",
					s.id, other.id, p.PID)
			}
		}

		resident := p.Pages.CountResident(d.Base, d.Limit)
		if resident != uint32(len(s.frames)) {
			return vm.Bookkeepingf(
				"segment %d of process %d holds %d frames, %d pages resident",
				s.id, p.PID, len(s.frames), resident)
		}

		for f := range s.frames {
			owner, found := m.pool.Owner(f)
			if !found || owner.PID != p.PID || owner.Segment != s.id {
				return vm.Bookkeepingf(
					"frame %d of segment %d of process %d owned by %+v",
					f, s.id, p.PID, owner)
			}
		}
	}

	return nil
}

// checkPages verifies that every resident page maps a frame owned by the
// process, and that no resident page lies outside a live segment. It returns
// the number of resident pages.
func (m *Memory) checkPages(p *process) (uint32, error) {
	n := uint32(0)

	for page := uint32(0); page < p.Pages.Len(); page++ {
		e, _ := p.Pages.Find(page)
		if !e.Resident() {
			continue
		}

		n++

		owner, found := m.pool.Owner(e.Frame)
		if !found || owner.PID != p.PID || owner.Page != page {
			return 0, vm.Bookkeepingf(
				"page %d of process %d maps frame %d owned by %+v",
				page, p.PID, e.Frame, owner)
		}

		inSegment := false

		for _, s := range p.segments {
			d, _ := p.Segments.Descriptor(s.id)
			if d.Contains(page) {
				inSegment = true
				break
			}
		}

		if !inSegment {
			return 0, vm.Bookkeepingf(
				"resident page %d of process %d is outside every segment",
				page, p.PID)
		}
	}

	return n, nil
}
