package vm

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Segment table", func() {
	var (
		table *SegmentTable
	)

	BeforeEach(func() {
		table = NewSegmentTable(4)
		table.Set(1, SegmentDescriptor{
			Base:  10,
			Limit: 3,
			Flags: SegmentValid | SegmentReadWrite,
		})
	})

	It("should add the base to the page number", func() {
		lin, err := table.Translate(LogicalAddress{Segment: 1, Page: 2, Offset: 9})

		Expect(err).NotTo(HaveOccurred())
		Expect(lin).To(Equal(LinearAddress{Page: 12, Offset: 9}))
	})

	It("should check the slot before the validity", func() {
		_, err := table.Translate(LogicalAddress{Segment: 4})
		Expect(err).To(MatchError(ErrSegmentOutOfRange))

		_, err = table.Translate(LogicalAddress{Segment: 0})
		Expect(err).To(MatchError(ErrInvalidSegment))
	})

	It("should check the limit", func() {
		_, err := table.Translate(LogicalAddress{Segment: 1, Page: 3})

		Expect(err).To(MatchError(ErrSegmentLimitExceeded))
	})

	It("should compute overlaps", func() {
		d, _ := table.Descriptor(1)

		Expect(d.Overlaps(12, 5)).To(BeTrue())
		Expect(d.Overlaps(13, 5)).To(BeFalse())
		Expect(d.Overlaps(0, 10)).To(BeFalse())
		Expect(d.Overlaps(0, 11)).To(BeTrue())
		Expect(d.Contains(12)).To(BeTrue())
		Expect(d.Contains(13)).To(BeFalse())
	})

	It("should copy the descriptors", func() {
		descriptors := table.Descriptors()
		descriptors[1].Limit = 100

		d, _ := table.Descriptor(1)
		Expect(d.Limit).To(Equal(uint32(3)))
	})
})

var _ = Describe("Page table", func() {
	It("should count resident pages", func() {
		pt := NewPageTable(8)
		for _, page := range []uint32{1, 2, 6} {
			e, err := pt.Entry(page)
			Expect(err).NotTo(HaveOccurred())
			e.Flags = PageValid
		}

		Expect(pt.CountResident(0, 8)).To(Equal(uint32(3)))
		Expect(pt.CountResident(2, 4)).To(Equal(uint32(1)))
	})

	It("should refuse pages out of range", func() {
		pt := NewPageTable(8)

		_, err := pt.Entry(8)
		Expect(err).To(MatchError(ErrPageOutOfRange))

		_, found := pt.Find(8)
		Expect(found).To(BeFalse())
	})
})

var _ = Describe("Addresses", func() {
	It("should compose a physical address", func() {
		pa := MakePhysicalAddress(3, 0x12, 12)

		Expect(pa).To(Equal(PhysicalAddress(0x3012)))
		Expect(pa.Frame(12)).To(Equal(uint32(3)))
		Expect(pa.Offset(12)).To(Equal(uint32(0x12)))
	})

	It("should print flags", func() {
		Expect(PageFlags(PageValid | PageWrite | PageSwapped).String()).
			To(Equal("V-W-S"))
		Expect(SegmentReadWrite.String()).To(Equal("-RW"))
		Expect(LogicalAddress{Segment: 1, Page: 2, Offset: 3}.String()).
			To(Equal("1:2+3"))
	})
})

var _ = Describe("Geometry", func() {
	It("should accept the default geometry", func() {
		g := DefaultGeometry()

		Expect(g.Validate()).To(Succeed())
		Expect(g.PageSize()).To(Equal(uint32(4096)))
		Expect(g.PhysicalSize()).To(Equal(uint64(1 << 20)))
		Expect(g.VirtualSize()).To(Equal(uint64(1 << 24)))
	})

	DescribeTable("should reject",
		func(g Geometry) {
			Expect(g.Validate()).NotTo(Succeed())
		},
		Entry("a zero page size", Geometry{0, 1, 1, 1}),
		Entry("a huge page size", Geometry{MaxLog2PageSize + 1, 1, 1, 1}),
		Entry("no frame", Geometry{12, 0, 1, 1}),
		Entry("no page", Geometry{12, 1, 0, 1}),
		Entry("no segment", Geometry{12, 1, 1, 0}),
	)
})

var _ = Describe("Error kinds", func() {
	DescribeTable("should classify wrapped errors",
		func(err error, kind ErrorKind) {
			wrapped := fmt.Errorf("creating segment: %w", err)

			Expect(KindOf(wrapped)).To(Equal(kind))
		},
		Entry("bounds", ErrSegmentLimitExceeded, KindBounds),
		Entry("capacity", ErrOverlapDetected, KindCapacity),
		Entry("exhausted", ErrNoFrameAvailable, KindExhausted),
		Entry("bookkeeping", Bookkeepingf("frame %d", 3), KindBookkeeping),
		Entry("io", ErrSwapIO, KindIO),
		Entry("unknown", errors.New("other"), KindUnknown),
	)

	It("should name the kinds", func() {
		Expect(KindCapacity.String()).To(Equal("capacity"))
		Expect(KindOf(nil)).To(Equal(KindUnknown))
	})
})

var _ = Describe("HookableBase", func() {
	It("should invoke hooks in order", func() {
		var (
			base  HookableBase
			names []string
		)

		for _, name := range []string{"a", "b"} {
			base.AcceptHook(HookFunc(func(ctx HookCtx) {
				names = append(names, name+ctx.Pos.Name)
			}))
		}

		base.InvokeHook(HookCtx{Pos: HookPosEvict})

		Expect(base.NumHooks()).To(Equal(2))
		Expect(names).To(Equal([]string{"aEvict", "bEvict"}))
	})
})
