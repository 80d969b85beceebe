package dump

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/mmu"
)

// WriteProcessImage writes the content of every live segment of a process,
// in creation order, one page after the other. Pages are not faulted in.
// It returns the number of bytes written.
func WriteProcessImage(w io.Writer, m *mmu.Memory, pid vm.PID) (int64, error) {
	segments, err := m.Segments(pid)
	if err != nil {
		return 0, err
	}

	block := make([]byte, m.Geometry().PageSize())
	written := int64(0)

	for _, seg := range segments {
		for page := seg.Base; page < seg.End(); page++ {
			if err := m.PageImage(pid, page, block); err != nil {
				return written, err
			}

			n, err := w.Write(block)
			written += int64(n)

			if err != nil {
				return written, err
			}
		}
	}

	return written, nil
}

// WriteProcessFile writes the image of a process to a file named
// <pid>-<timestamp>.dmp in dir and returns its path.
func WriteProcessFile(m *mmu.Memory, dir string, pid vm.PID) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating dump directory: %w", err)
	}

	name := fmt.Sprintf("%d-%s.dmp", pid, time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	w := bufio.NewWriter(f)

	if _, err := WriteProcessImage(w, m, pid); err != nil {
		f.Close()
		return "", err
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return "", err
	}

	return path, f.Close()
}
