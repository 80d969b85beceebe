// Package swap provides the block stores that back every page that is not
// resident in physical memory.
package swap

import (
	"fmt"

	"github.com/sarchlab/vmsim/mem/vm"
)

// A Store reads and writes fixed-size page blocks. Every address space has
// its own image, indexed by page number. A page that was never written reads
// as zeros.
type Store interface {
	// ReadPage fills block with the image of a page.
	ReadPage(pid vm.PID, page uint32, block []byte) error

	// WritePage stores block as the image of a page.
	WritePage(pid vm.PID, page uint32, block []byte) error

	// Discard drops the whole image of an address space.
	Discard(pid vm.PID) error
}

// Kind names a Store implementation.
type Kind string

// The store kinds.
const (
	KindMemory Kind = "memory"
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
)

// Open creates a store of the given kind. path is the directory of a file
// store or the database file of a SQLite store; it is ignored by the memory
// store.
func Open(kind Kind, path string, g vm.Geometry) (Store, error) {
	switch kind {
	case KindMemory, "":
		return NewMemStore(g), nil
	case KindFile:
		return NewFileStore(path, g)
	case KindSQLite:
		return OpenSQLiteStore(path, g)
	default:
		return nil, fmt.Errorf("unknown swap store kind %q", kind)
	}
}

type blockChecker struct {
	pageSize uint32
	numPages uint32
}

func (c blockChecker) check(page uint32, block []byte) error {
	if page >= c.numPages {
		return fmt.Errorf("%w: page %d of %d",
			vm.ErrPageOutOfRange, page, c.numPages)
	}

	if uint32(len(block)) != c.pageSize {
		return fmt.Errorf("block of %d bytes, page size is %d",
			len(block), c.pageSize)
	}

	return nil
}

func zero(block []byte) {
	for i := range block {
		block[i] = 0
	}
}
