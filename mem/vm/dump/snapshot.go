package dump

import (
	"github.com/rs/xid"
	"github.com/sarchlab/vmsim/datarecording"
	"github.com/sarchlab/vmsim/mem/vm/mmu"
)

// Tables written by a SnapshotRecorder.
const (
	SnapshotTable        = "snapshot"
	SnapshotFrameTable   = "snapshot_frame"
	SnapshotSegmentTable = "snapshot_segment"
	SnapshotPageTable    = "snapshot_page"
)

// SnapshotEntry is the header of one recorded snapshot.
type SnapshotEntry struct {
	ID         string
	Label      string
	Memory     string
	FreeFrames uint32
	Processes  int
	Faults     uint64
	Evictions  uint64
	Cursor     uint32
}

// FrameEntry is a frame row of a snapshot.
type FrameEntry struct {
	Snapshot string
	Frame    uint32
	Free     bool
	PID      uint32
	Segment  uint32
	Page     uint32
}

// SegmentEntry is a segment row of a snapshot.
type SegmentEntry struct {
	Snapshot string
	PID      uint32
	Segment  uint32
	Packed   uint64
	Demand   bool
	Resident uint32
}

// PageEntry is a page row of a snapshot. Only pages with flags are recorded.
type PageEntry struct {
	Snapshot string
	PID      uint32
	Page     uint32
	Packed   uint32
}

// SnapshotRecorder writes snapshots of a Memory into a DataRecorder. Segment
// and page rows hold packed descriptors.
type SnapshotRecorder struct {
	recorder datarecording.DataRecorder
}

// NewSnapshotRecorder creates the snapshot tables and returns the recorder.
func NewSnapshotRecorder(r datarecording.DataRecorder) *SnapshotRecorder {
	r.CreateTable(SnapshotTable, SnapshotEntry{})
	r.CreateTable(SnapshotFrameTable, FrameEntry{})
	r.CreateTable(SnapshotSegmentTable, SegmentEntry{})
	r.CreateTable(SnapshotPageTable, PageEntry{})

	return &SnapshotRecorder{recorder: r}
}

// Record takes a snapshot of m and buffers its rows. It returns the ID of the
// snapshot.
func (r *SnapshotRecorder) Record(m *mmu.Memory, label string) (string, error) {
	s := m.Snapshot()
	id := xid.New().String()

	r.recorder.InsertData(SnapshotTable, SnapshotEntry{
		ID:         id,
		Label:      label,
		Memory:     s.Name,
		FreeFrames: s.Stats.FreeFrames,
		Processes:  s.Stats.Processes,
		Faults:     s.Stats.Faults,
		Evictions:  s.Stats.Evictions,
		Cursor:     s.Stats.Cursor,
	})

	for _, f := range s.Frames {
		r.recorder.InsertData(SnapshotFrameTable, FrameEntry{
			Snapshot: id,
			Frame:    f.Frame,
			Free:     f.Free,
			PID:      uint32(f.PID),
			Segment:  f.Segment,
			Page:     f.Page,
		})
	}

	for _, p := range s.Processes {
		if err := r.recordProcess(id, p); err != nil {
			return "", err
		}
	}

	return id, nil
}

func (r *SnapshotRecorder) recordProcess(
	id string,
	p mmu.ProcessSnapshot,
) error {
	for _, seg := range p.Segments {
		packed, err := PackSegment(seg.SegmentDescriptor)
		if err != nil {
			return err
		}

		r.recorder.InsertData(SnapshotSegmentTable, SegmentEntry{
			Snapshot: id,
			PID:      uint32(p.PID),
			Segment:  seg.ID,
			Packed:   packed,
			Demand:   seg.Demand,
			Resident: seg.Resident,
		})
	}

	for page, e := range p.Pages {
		if e.Flags == 0 {
			continue
		}

		packed, err := PackPage(e)
		if err != nil {
			return err
		}

		r.recorder.InsertData(SnapshotPageTable, PageEntry{
			Snapshot: id,
			PID:      uint32(p.PID),
			Page:     uint32(page),
			Packed:   packed,
		})
	}

	return nil
}
