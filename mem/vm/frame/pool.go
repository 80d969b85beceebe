// Package frame provides the pool of physical frames. The pool is the only
// authority that hands out and reclaims frames, and it owns the cursor of the
// second-chance replacement policy.
package frame

import (
	"fmt"

	"github.com/sarchlab/vmsim/mem/vm"
)

// Owner identifies the page that occupies a frame.
type Owner struct {
	PID     vm.PID
	Segment uint32
	Page    uint32
}

// A Pool tracks which frames are free and which page owns every other frame.
// Every frame is either in the free list or owned, never both.
type Pool struct {
	free   []uint32
	owners []Owner
	owned  []bool
	cursor uint32
}

// NewPool creates a pool where all frames are free, in ascending order.
func NewPool(numFrames uint32) *Pool {
	p := &Pool{
		free:   make([]uint32, numFrames),
		owners: make([]Owner, numFrames),
		owned:  make([]bool, numFrames),
	}

	for i := range p.free {
		p.free[i] = uint32(i)
	}

	return p
}

// NumFrames returns the total number of frames.
func (p *Pool) NumFrames() uint32 {
	return uint32(len(p.owners))
}

// NumFree returns the length of the free list.
func (p *Pool) NumFree() uint32 {
	return uint32(len(p.free))
}

// Free returns a copy of the free list, head first.
func (p *Pool) Free() []uint32 {
	out := make([]uint32, len(p.free))
	copy(out, p.free)

	return out
}

// Owner returns the owner of a frame. The bool return value is false if the
// frame is free or out of range.
func (p *Pool) Owner(frame uint32) (Owner, bool) {
	if frame >= p.NumFrames() || !p.owned[frame] {
		return Owner{}, false
	}

	return p.owners[frame], true
}

// CountOwnedBy returns the number of frames owned by a process.
func (p *Pool) CountOwnedBy(pid vm.PID) uint32 {
	n := uint32(0)

	for f, owned := range p.owned {
		if owned && p.owners[f].PID == pid {
			n++
		}
	}

	return n
}

// Cursor returns the frame the replacement policy will inspect first.
func (p *Pool) Cursor() uint32 {
	return p.cursor
}

// Allocate takes one frame from the head of the free list for each owner.
// Either all the frames are allocated or none is.
func (p *Pool) Allocate(owners []Owner) ([]uint32, error) {
	n := len(owners)
	if n > len(p.free) {
		return nil, fmt.Errorf("%w: need %d, %d free",
			vm.ErrInsufficientFrames, n, len(p.free))
	}

	for _, f := range p.free[:n] {
		if p.owned[f] {
			return nil, vm.Bookkeepingf("frame %d is both free and owned", f)
		}
	}

	frames := make([]uint32, n)
	copy(frames, p.free[:n])
	p.free = append(p.free[:0], p.free[n:]...)

	for i, f := range frames {
		p.owned[f] = true
		p.owners[f] = owners[i]
	}

	return frames, nil
}

// Release appends an owned frame to the tail of the free list. The frame
// must be owned by pid.
func (p *Pool) Release(frame uint32, pid vm.PID) error {
	if err := p.mustBeOwnedBy(frame, pid); err != nil {
		return err
	}

	p.owned[frame] = false
	p.owners[frame] = Owner{}
	p.free = append(p.free, frame)

	return nil
}

// Transfer hands an owned frame over to another page without passing it
// through the free list.
func (p *Pool) Transfer(frame uint32, to Owner) error {
	if frame >= p.NumFrames() {
		return vm.Bookkeepingf("frame %d out of range", frame)
	}

	if !p.owned[frame] {
		return vm.Bookkeepingf("transferring free frame %d", frame)
	}

	p.owners[frame] = to

	return nil
}

// VerifyOwner checks that frame is owned by pid.
func (p *Pool) VerifyOwner(frame uint32, pid vm.PID) error {
	return p.mustBeOwnedBy(frame, pid)
}

func (p *Pool) mustBeOwnedBy(frame uint32, pid vm.PID) error {
	if frame >= p.NumFrames() {
		return vm.Bookkeepingf("frame %d out of range", frame)
	}

	if !p.owned[frame] {
		return vm.Bookkeepingf("frame %d is free, expected owner %d",
			frame, pid)
	}

	if p.owners[frame].PID != pid {
		return vm.Bookkeepingf("frame %d owned by process %d, not %d",
			frame, p.owners[frame].PID, pid)
	}

	return nil
}

// Check verifies that the free list and the owned frames partition the whole
// frame set.
func (p *Pool) Check() error {
	inFree := make([]bool, len(p.owned))

	for _, f := range p.free {
		switch {
		case f >= p.NumFrames():
			return vm.Bookkeepingf("free list holds frame %d out of range", f)
		case inFree[f]:
			return vm.Bookkeepingf("frame %d twice in the free list", f)
		case p.owned[f]:
			return vm.Bookkeepingf("frame %d is both free and owned", f)
		}

		inFree[f] = true
	}

	for f, owned := range p.owned {
		if !owned && !inFree[f] {
			return vm.Bookkeepingf("frame %d is neither free nor owned", f)
		}
	}

	return nil
}
