package swap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sarchlab/vmsim/mem/vm"
)

// FileStore keeps one swap file per address space in a directory. A new file
// is sized to hold every page of the address space and reads as zeros.
type FileStore struct {
	blockChecker
	dir   string
	files map[vm.PID]*os.File
}

// NewFileStore creates a store in dir, creating the directory if needed.
func NewFileStore(dir string, g vm.Geometry) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating swap directory: %w", err)
	}

	return &FileStore{
		blockChecker: blockChecker{
			pageSize: g.PageSize(),
			numPages: g.NumPages,
		},
		dir:   dir,
		files: make(map[vm.PID]*os.File),
	}, nil
}

// Path returns the swap file of an address space.
func (s *FileStore) Path(pid vm.PID) string {
	return filepath.Join(s.dir, fmt.Sprintf("swap-%d.bin", pid))
}

func (s *FileStore) file(pid vm.PID) (*os.File, error) {
	if f, found := s.files[pid]; found {
		return f, nil
	}

	f, err := os.OpenFile(s.Path(pid), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	size := int64(s.numPages) * int64(s.pageSize)

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if info.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, err
		}
	}

	s.files[pid] = f

	return f, nil
}

func (s *FileStore) offset(page uint32) int64 {
	return int64(page) * int64(s.pageSize)
}

// ReadPage fills block with the image of a page.
func (s *FileStore) ReadPage(pid vm.PID, page uint32, block []byte) error {
	if err := s.check(page, block); err != nil {
		return err
	}

	f, err := s.file(pid)
	if err != nil {
		return err
	}

	_, err = f.ReadAt(block, s.offset(page))

	return err
}

// WritePage stores block as the image of a page.
func (s *FileStore) WritePage(pid vm.PID, page uint32, block []byte) error {
	if err := s.check(page, block); err != nil {
		return err
	}

	f, err := s.file(pid)
	if err != nil {
		return err
	}

	_, err = f.WriteAt(block, s.offset(page))

	return err
}

// Discard closes and removes the swap file of an address space.
func (s *FileStore) Discard(pid vm.PID) error {
	f, found := s.files[pid]
	if found {
		delete(s.files, pid)

		if err := f.Close(); err != nil {
			return err
		}
	}

	err := os.Remove(s.Path(pid))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}

// Close closes every open swap file. The files stay on disk.
func (s *FileStore) Close() error {
	var errs []error

	for pid, f := range s.files {
		errs = append(errs, f.Close())
		delete(s.files, pid)
	}

	return errors.Join(errs...)
}
