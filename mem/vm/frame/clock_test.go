package frame

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/vmsim/mem/vm"
)

var _ = Describe("Second chance", func() {
	var (
		pool    *Pool
		entries []vm.PageTableEntry
		lookup  PageLookup
	)

	BeforeEach(func() {
		pool = NewPool(4)
		entries = make([]vm.PageTableEntry, 4)

		owners := make([]Owner, 4)
		for i := range owners {
			owners[i] = Owner{PID: 1, Page: uint32(i)}
		}

		frames, err := pool.Allocate(owners)
		Expect(err).NotTo(HaveOccurred())

		for i, f := range frames {
			entries[i] = vm.PageTableEntry{Frame: f, Flags: vm.PageValid}
		}

		lookup = func(f uint32, owner Owner) (*vm.PageTableEntry, error) {
			return &entries[owner.Page], nil
		}
	})

	It("should pick the frame at the cursor if unreferenced", func() {
		f, err := pool.SelectVictim(lookup)

		Expect(err).NotTo(HaveOccurred())
		Expect(f).To(Equal(uint32(0)))
		Expect(pool.Cursor()).To(Equal(uint32(1)))
	})

	It("should come back to the cursor after clearing every bit", func() {
		for i := range entries {
			entries[i].Flags |= vm.PageRead
		}

		f, err := pool.SelectVictim(lookup)

		Expect(err).NotTo(HaveOccurred())
		Expect(f).To(Equal(uint32(0)))
		Expect(pool.Cursor()).To(Equal(uint32(1)))
		for _, e := range entries {
			Expect(e.Flags & vm.PageRead).To(BeZero())
		}
	})

	It("should spare referenced frames once", func() {
		entries[1].Flags |= vm.PageRead
		pool.cursor = 1

		f, err := pool.SelectVictim(lookup)

		Expect(err).NotTo(HaveOccurred())
		Expect(f).To(Equal(uint32(2)))
		Expect(entries[1].Flags & vm.PageRead).To(BeZero())
	})

	It("should wrap around", func() {
		pool.cursor = 3
		entries[3].Flags |= vm.PageRead

		f, err := pool.SelectVictim(lookup)

		Expect(err).NotTo(HaveOccurred())
		Expect(f).To(Equal(uint32(0)))
		Expect(pool.Cursor()).To(Equal(uint32(1)))
	})

	It("should skip unswappable frames", func() {
		entries[0].Flags |= vm.PageUnswappable
		entries[1].Flags |= vm.PageUnswappable | vm.PageRead

		f, err := pool.SelectVictim(lookup)

		Expect(err).NotTo(HaveOccurred())
		Expect(f).To(Equal(uint32(2)))
		Expect(entries[1].Flags & vm.PageRead).NotTo(BeZero())
	})

	It("should report exhaustion when every frame is unswappable", func() {
		for i := range entries {
			entries[i].Flags |= vm.PageUnswappable
		}

		_, err := pool.SelectVictim(lookup)

		Expect(err).To(MatchError(vm.ErrNoFrameAvailable))
	})

	It("should report a free frame on the clock", func() {
		Expect(pool.Release(2, 1)).To(Succeed())
		entries[0].Flags |= vm.PageRead
		entries[1].Flags |= vm.PageRead

		_, err := pool.SelectVictim(lookup)

		Expect(err).To(MatchError(vm.ErrBookkeeping))
	})
})
