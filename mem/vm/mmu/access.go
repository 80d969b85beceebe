package mmu

import (
	"fmt"

	"github.com/sarchlab/vmsim/mem/vm"
)

// Translate converts a logical address of a process to a linear address. It
// does not touch the page table.
func (m *Memory) Translate(
	pid vm.PID,
	addr vm.LogicalAddress,
) (vm.LinearAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.process(pid)
	if err != nil {
		return vm.LinearAddress{}, err
	}

	return p.Translate(addr)
}

// Resolve returns the physical address of a logical address, faulting the
// page in if it is not resident. Reference bits are not changed.
func (m *Memory) Resolve(
	pid vm.PID,
	addr vm.LogicalAddress,
) (vm.PhysicalAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.prepare(pid, addr, 0)
	if err != nil {
		return 0, err
	}

	return m.resolve(a)
}

// ReadByte reads one byte and sets the read bit of its page.
func (m *Memory) ReadByte(pid vm.PID, addr vm.LogicalAddress) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.readByte(pid, addr)
}

// WriteByte writes one byte and sets the read and write bits of its page.
func (m *Memory) WriteByte(pid vm.PID, addr vm.LogicalAddress, b byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.writeByte(pid, addr, b)
}

// Read fills buf with consecutive bytes of one segment starting at addr.
// It returns the number of bytes read before an error.
func (m *Memory) Read(
	pid vm.PID,
	addr vm.LogicalAddress,
	buf []byte,
) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range buf {
		b, err := m.readByte(pid, addr)
		if err != nil {
			return i, err
		}

		buf[i] = b
		addr = m.next(addr)
	}

	return len(buf), nil
}

// Write stores data at consecutive bytes of one segment starting at addr.
// It returns the number of bytes written before an error.
func (m *Memory) Write(
	pid vm.PID,
	addr vm.LogicalAddress,
	data []byte,
) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, b := range data {
		if err := m.writeByte(pid, addr, b); err != nil {
			return i, err
		}

		addr = m.next(addr)
	}

	return len(data), nil
}

func (m *Memory) next(addr vm.LogicalAddress) vm.LogicalAddress {
	addr.Offset++
	if addr.Offset == m.geometry.PageSize() {
		addr.Offset = 0
		addr.Page++
	}

	return addr
}

type access struct {
	proc    *process
	seg     *Segment
	logical vm.LogicalAddress
	linear  vm.LinearAddress
	pte     *vm.PageTableEntry
}

// prepare validates an address without changing any state.
func (m *Memory) prepare(
	pid vm.PID,
	addr vm.LogicalAddress,
	need vm.SegmentFlags,
) (access, error) {
	p, err := m.process(pid)
	if err != nil {
		return access{}, err
	}

	lin, err := p.Translate(addr)
	if err != nil {
		return access{}, err
	}

	d, _ := p.Segments.Descriptor(addr.Segment)
	if d.Flags&need != need {
		return access{}, fmt.Errorf("%w: segment %d is %s, need %s",
			vm.ErrAccessDenied, addr.Segment, d.Flags, need)
	}

	if addr.Offset >= m.geometry.PageSize() {
		return access{}, fmt.Errorf("%w: offset %d, page size %d",
			vm.ErrOffsetOutOfRange, addr.Offset, m.geometry.PageSize())
	}

	pte, err := p.Pages.Entry(lin.Page)
	if err != nil {
		return access{}, err
	}

	seg := p.segment(addr.Segment)
	if seg == nil {
		return access{}, vm.Bookkeepingf(
			"segment %d of process %d is valid but not live",
			addr.Segment, pid)
	}

	return access{
		proc:    p,
		seg:     seg,
		logical: addr,
		linear:  lin,
		pte:     pte,
	}, nil
}

// resolve maps a prepared access to a physical address, serving the page
// fault if the page is not resident.
func (m *Memory) resolve(a access) (vm.PhysicalAddress, error) {
	if !a.pte.Resident() {
		if err := m.handleFault(a.proc, a.seg, a.linear.Page); err != nil {
			return 0, err
		}
	}

	return vm.MakePhysicalAddress(
		a.pte.Frame, a.linear.Offset, m.geometry.Log2PageSize), nil
}

func (m *Memory) readByte(pid vm.PID, addr vm.LogicalAddress) (byte, error) {
	a, err := m.prepare(pid, addr, vm.SegmentRead)
	if err != nil {
		return 0, err
	}

	pa, err := m.resolve(a)
	if err != nil {
		return 0, err
	}

	a.pte.Flags |= vm.PageRead
	b := m.physical[pa]

	m.invokeAccessHook(a, pa, false, b)

	return b, nil
}

func (m *Memory) writeByte(pid vm.PID, addr vm.LogicalAddress, b byte) error {
	a, err := m.prepare(pid, addr, vm.SegmentWrite)
	if err != nil {
		return err
	}

	pa, err := m.resolve(a)
	if err != nil {
		return err
	}

	a.pte.Flags |= vm.PageRead | vm.PageWrite
	m.physical[pa] = b

	m.invokeAccessHook(a, pa, true, b)

	return nil
}

func (m *Memory) invokeAccessHook(
	a access,
	pa vm.PhysicalAddress,
	write bool,
	b byte,
) {
	m.invoke(vm.HookPosAccess, vm.AccessDetail{
		PID:      a.proc.PID,
		Logical:  a.logical,
		Linear:   a.linear,
		Physical: pa,
		Write:    write,
		Value:    b,
	})
}

// PageImage copies the content of a linear page into block without faulting
// it in. A resident page is read from its frame, any other page from the
// swap store. Reference bits are not changed.
func (m *Memory) PageImage(pid vm.PID, page uint32, block []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.process(pid)
	if err != nil {
		return err
	}

	e, found := p.Pages.Find(page)
	if !found {
		return fmt.Errorf("%w: page %d of %d",
			vm.ErrPageOutOfRange, page, p.Pages.Len())
	}

	if uint32(len(block)) != m.geometry.PageSize() {
		return fmt.Errorf("block of %d bytes, page size is %d",
			len(block), m.geometry.PageSize())
	}

	if e.Resident() {
		copy(block, m.frameBytes(e.Frame))
		return nil
	}

	if err := m.swap.ReadPage(pid, page, block); err != nil {
		return fmt.Errorf("%w: reading page %d of process %d: %v",
			vm.ErrSwapIO, page, pid, err)
	}

	return nil
}
