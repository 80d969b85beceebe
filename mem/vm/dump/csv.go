// Package dump exports the state of a Memory: CSV tables of segments, pages
// and frames, raw process images, packed descriptors and database
// snapshots.
package dump

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sarchlab/vmsim/mem/vm/mmu"
)

// The files written by ExportCSV.
const (
	SegmentsFile = "segments.csv"
	PagesFile    = "pages.csv"
	FramesFile   = "frames.csv"
)

func u32(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

// WriteSegments writes one row per live segment of every process.
func WriteSegments(w *csv.Writer, s mmu.Snapshot) error {
	err := w.Write([]string{
		"pid", "segment", "base", "limit", "flags", "demand", "resident",
	})
	if err != nil {
		return err
	}

	for _, p := range s.Processes {
		for _, seg := range p.Segments {
			err := w.Write([]string{
				u32(uint32(p.PID)),
				u32(seg.ID),
				u32(seg.Base),
				u32(seg.Limit),
				seg.Flags.String(),
				strconv.FormatBool(seg.Demand),
				u32(seg.Resident),
			})
			if err != nil {
				return err
			}
		}
	}

	w.Flush()

	return w.Error()
}

// WritePages writes one row per page that has any flag set, in page order.
func WritePages(w *csv.Writer, s mmu.Snapshot) error {
	err := w.Write([]string{"pid", "page", "frame", "flags"})
	if err != nil {
		return err
	}

	for _, p := range s.Processes {
		for page, e := range p.Pages {
			if e.Flags == 0 {
				continue
			}

			frame := ""
			if e.Resident() {
				frame = u32(e.Frame)
			}

			err := w.Write([]string{
				u32(uint32(p.PID)),
				strconv.Itoa(page),
				frame,
				e.Flags.String(),
			})
			if err != nil {
				return err
			}
		}
	}

	w.Flush()

	return w.Error()
}

// WriteFrames writes one row per physical frame.
func WriteFrames(w *csv.Writer, s mmu.Snapshot) error {
	err := w.Write([]string{"frame", "free", "pid", "segment", "page"})
	if err != nil {
		return err
	}

	for _, f := range s.Frames {
		row := []string{u32(f.Frame), "true", "", "", ""}
		if !f.Free {
			row = []string{
				u32(f.Frame),
				"false",
				u32(uint32(f.PID)),
				u32(f.Segment),
				u32(f.Page),
			}
		}

		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()

	return w.Error()
}

// ExportCSV writes the segments, pages and frames of a memory into three
// files in dir.
func ExportCSV(m *mmu.Memory, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	s := m.Snapshot()

	writers := []struct {
		name  string
		write func(*csv.Writer, mmu.Snapshot) error
	}{
		{SegmentsFile, WriteSegments},
		{PagesFile, WritePages},
		{FramesFile, WriteFrames},
	}

	for _, wr := range writers {
		if err := writeFile(filepath.Join(dir, wr.name), s, wr.write); err != nil {
			return fmt.Errorf("exporting %s: %w", wr.name, err)
		}
	}

	return nil
}

func writeFile(
	path string,
	s mmu.Snapshot,
	write func(*csv.Writer, mmu.Snapshot) error,
) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := write(csv.NewWriter(f), s); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

