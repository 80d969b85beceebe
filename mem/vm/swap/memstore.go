package swap

import "github.com/sarchlab/vmsim/mem/vm"

// MemStore keeps page images in memory. Pages are materialized on first
// write.
type MemStore struct {
	blockChecker
	images map[vm.PID]map[uint32][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(g vm.Geometry) *MemStore {
	return &MemStore{
		blockChecker: blockChecker{
			pageSize: g.PageSize(),
			numPages: g.NumPages,
		},
		images: make(map[vm.PID]map[uint32][]byte),
	}
}

// ReadPage fills block with the image of a page.
func (s *MemStore) ReadPage(pid vm.PID, page uint32, block []byte) error {
	if err := s.check(page, block); err != nil {
		return err
	}

	stored, found := s.images[pid][page]
	if !found {
		zero(block)
		return nil
	}

	copy(block, stored)

	return nil
}

// WritePage stores a copy of block as the image of a page.
func (s *MemStore) WritePage(pid vm.PID, page uint32, block []byte) error {
	if err := s.check(page, block); err != nil {
		return err
	}

	image, found := s.images[pid]
	if !found {
		image = make(map[uint32][]byte)
		s.images[pid] = image
	}

	stored, found := image[page]
	if !found {
		stored = make([]byte, len(block))
		image[page] = stored
	}

	copy(stored, block)

	return nil
}

// Discard drops the image of an address space.
func (s *MemStore) Discard(pid vm.PID) error {
	delete(s.images, pid)
	return nil
}

// NumStoredPages returns the number of materialized pages of a process.
func (s *MemStore) NumStoredPages(pid vm.PID) int {
	return len(s.images[pid])
}
