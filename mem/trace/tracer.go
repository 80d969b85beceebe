// Package trace provides hooks that trace the memory subsystem, either as
// text lines or as database records.
package trace

import (
	"log"

	"github.com/sarchlab/vmsim/datarecording"
	"github.com/sarchlab/vmsim/mem/vm"
)

// Table names of the records written by the database tracer.
const (
	AccessTable  = "memory_access"
	FaultTable   = "page_fault"
	EvictTable   = "page_evict"
	SegmentTable = "segment_event"
)

// AccessEntry is the record of one byte access.
type AccessEntry struct {
	Seq      uint64
	PID      uint32
	Segment  uint32
	Page     uint32
	InPage   uint32
	Linear   uint32
	Physical uint64
	Write    bool
	Value    uint8
}

// FaultEntry is the record of a served page fault.
type FaultEntry struct {
	Seq        uint64
	PID        uint32
	Page       uint32
	Frame      uint32
	FromFree   bool
	FaultCount uint64
}

// EvictEntry is the record of a page written out to swap.
type EvictEntry struct {
	Seq   uint64
	PID   uint32
	Page  uint32
	Frame uint32
}

// SegmentEntry is the record of a segment table change.
type SegmentEntry struct {
	Seq     uint64
	What    string
	PID     uint32
	Segment uint32
	Base    uint32
	Pages   uint32
	Flags   string
	Frames  int
}

// A tracer is a hook that prints the actions of the memory subsystem.
type tracer struct {
	logger *log.Logger
	access bool
}

// NewTracer creates a hook that logs page faults, evictions and segment
// changes. Byte accesses are logged too if withAccess is set.
func NewTracer(logger *log.Logger, withAccess bool) vm.Hook {
	return &tracer{logger: logger, access: withAccess}
}

// Func prints one line per event.
func (t *tracer) Func(ctx vm.HookCtx) {
	switch d := ctx.Detail.(type) {
	case vm.AccessDetail:
		if !t.access {
			return
		}

		kind := "read"
		if d.Write {
			kind = "write"
		}

		t.logger.Printf("%s, pid %d, %s, linear %d+%d, physical 0x%x, 0x%02x\n",
			kind, d.PID, d.Logical, d.Linear.Page, d.Linear.Offset,
			uint64(d.Physical), d.Value)
	case vm.FaultDetail:
		t.logger.Printf("fault, pid %d, page %d, frame %d, free %t, count %d\n",
			d.PID, d.Page, d.Frame, d.FromFree, d.FaultCount)
	case vm.EvictDetail:
		t.logger.Printf("evict, pid %d, page %d, frame %d\n",
			d.PID, d.Page, d.Frame)
	case vm.SegmentDetail:
		t.logger.Printf("%s, pid %d, segment %d, base %d, limit %d, %s, "+
			"frames %d\n", ctx.Pos.Name, d.PID, d.Segment,
			d.Descriptor.Base, d.Descriptor.Limit, d.Descriptor.Flags,
			d.Frames)
	}
}

// A dbTracer is a hook that records the actions of the memory subsystem into
// a database using the data recorder.
type dbTracer struct {
	dataRecorder datarecording.DataRecorder
	access       bool
	seq          uint64
}

// NewDBTracer creates a hook that records events into dataRecorder. Byte
// accesses are recorded too if withAccess is set.
func NewDBTracer(
	dataRecorder datarecording.DataRecorder,
	withAccess bool,
) vm.Hook {
	t := &dbTracer{
		dataRecorder: dataRecorder,
		access:       withAccess,
	}

	if withAccess {
		t.dataRecorder.CreateTable(AccessTable, AccessEntry{})
	}

	t.dataRecorder.CreateTable(FaultTable, FaultEntry{})
	t.dataRecorder.CreateTable(EvictTable, EvictEntry{})
	t.dataRecorder.CreateTable(SegmentTable, SegmentEntry{})

	return t
}

// Func inserts one record per event.
func (t *dbTracer) Func(ctx vm.HookCtx) {
	switch d := ctx.Detail.(type) {
	case vm.AccessDetail:
		if t.access {
			t.insert(AccessTable, t.accessEntry(d))
		}
	case vm.FaultDetail:
		t.insert(FaultTable, FaultEntry{
			Seq:        t.seq,
			PID:        uint32(d.PID),
			Page:       d.Page,
			Frame:      d.Frame,
			FromFree:   d.FromFree,
			FaultCount: d.FaultCount,
		})
	case vm.EvictDetail:
		t.insert(EvictTable, EvictEntry{
			Seq:   t.seq,
			PID:   uint32(d.PID),
			Page:  d.Page,
			Frame: d.Frame,
		})
	case vm.SegmentDetail:
		t.insert(SegmentTable, SegmentEntry{
			Seq:     t.seq,
			What:    ctx.Pos.Name,
			PID:     uint32(d.PID),
			Segment: d.Segment,
			Base:    d.Descriptor.Base,
			Pages:   d.Descriptor.Limit,
			Flags:   d.Descriptor.Flags.String(),
			Frames:  d.Frames,
		})
	}
}

func (t *dbTracer) accessEntry(d vm.AccessDetail) AccessEntry {
	return AccessEntry{
		Seq:      t.seq,
		PID:      uint32(d.PID),
		Segment:  d.Logical.Segment,
		Page:     d.Logical.Page,
		InPage:   d.Logical.Offset,
		Linear:   d.Linear.Page,
		Physical: uint64(d.Physical),
		Write:    d.Write,
		Value:    d.Value,
	}
}

func (t *dbTracer) insert(table string, entry any) {
	t.dataRecorder.InsertData(table, entry)
	t.seq++
}
