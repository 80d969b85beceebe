// Package mmu provides the memory management unit of the simulator. A Memory
// owns physical memory, the frame pool, the swap store and the registry of
// process address spaces, and translates logical addresses through
// segmentation and demand paging.
package mmu

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/frame"
	"github.com/sarchlab/vmsim/mem/vm/swap"
)

var errClosed = errors.New("memory is closed")

// Memory is the shared memory layout of all simulated processes. All the
// public methods are serialized by a single lock. Hooks are invoked while the
// lock is held and must not call back into the Memory.
type Memory struct {
	vm.HookableBase

	mu       sync.Mutex
	name     string
	geometry vm.Geometry
	physical []byte
	pool     *frame.Pool
	swap     swap.Store

	processes map[vm.PID]*process
	pids      []vm.PID

	faults    uint64
	evictions uint64
	closed    bool
}

type process struct {
	*vm.AddressSpace

	segments  []*Segment
	faults    uint64
	evictions uint64
}

func (p *process) segment(id uint32) *Segment {
	for _, s := range p.segments {
		if s.id == id {
			return s
		}
	}

	return nil
}

func (p *process) removeSegment(seg *Segment) {
	for i, s := range p.segments {
		if s == seg {
			p.segments = append(p.segments[:i], p.segments[i+1:]...)
			return
		}
	}
}

// Name returns the name given to the memory when it was built.
func (m *Memory) Name() string {
	return m.name
}

// Geometry returns the shape of the memory.
func (m *Memory) Geometry() vm.Geometry {
	return m.geometry
}

// AcceptHook registers a hook.
func (m *Memory) AcceptHook(hook vm.Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.HookableBase.AcceptHook(hook)
}

func (m *Memory) invoke(pos *vm.HookPos, detail any) {
	if m.NumHooks() == 0 {
		return
	}

	m.InvokeHook(vm.HookCtx{
		Domain: m,
		Pos:    pos,
		Detail: detail,
	})
}

// AddProcess admits a process. The new address space has no segments.
func (m *Memory) AddProcess(pid vm.PID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	}

	if _, found := m.processes[pid]; found {
		return fmt.Errorf("%w: pid %d", vm.ErrProcessExists, pid)
	}

	m.processes[pid] = &process{
		AddressSpace: vm.NewAddressSpace(pid, m.geometry),
	}
	m.pids = append(m.pids, pid)

	return nil
}

// HasProcess tells if a process has been admitted.
func (m *Memory) HasProcess(pid vm.PID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, found := m.processes[pid]

	return found
}

func (m *Memory) process(pid vm.PID) (*process, error) {
	p, found := m.processes[pid]
	if !found {
		return nil, fmt.Errorf("%w: pid %d", vm.ErrProcessNotFound, pid)
	}

	return p, nil
}

// DestroyProcess tears down every segment of a process, drops its swap image
// and removes it from the registry.
func (m *Memory) DestroyProcess(pid vm.PID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.destroyProcess(pid)
}

func (m *Memory) destroyProcess(pid vm.PID) error {
	p, err := m.process(pid)
	if err != nil {
		return err
	}

	for len(p.segments) > 0 {
		if err := m.destroySegment(p.segments[0]); err != nil {
			return err
		}
	}

	delete(m.processes, pid)

	for i, other := range m.pids {
		if other == pid {
			m.pids = append(m.pids[:i], m.pids[i+1:]...)
			break
		}
	}

	if err := m.swap.Discard(pid); err != nil {
		return fmt.Errorf("%w: discarding image of process %d: %v",
			vm.ErrSwapIO, pid, err)
	}

	return nil
}

// Close releases every process and every frame, then closes the swap store
// if it can be closed. The memory cannot be used afterwards.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	for len(m.pids) > 0 {
		if err := m.destroyProcess(m.pids[0]); err != nil {
			return err
		}
	}

	if err := m.pool.Check(); err != nil {
		return err
	}

	if m.pool.NumFree() != m.pool.NumFrames() {
		return vm.Bookkeepingf("%d of %d frames free after shutdown",
			m.pool.NumFree(), m.pool.NumFrames())
	}

	m.closed = true

	if c, ok := m.swap.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

func (m *Memory) frameBytes(f uint32) []byte {
	size := uint64(m.geometry.PageSize())
	start := uint64(f) * size

	return m.physical[start : start+size]
}

func (m *Memory) zeroFrame(f uint32) {
	b := m.frameBytes(f)
	for i := range b {
		b[i] = 0
	}
}
