package dump

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/mmu"
)

var _ = Describe("CSV export", func() {
	var m *mmu.Memory

	BeforeEach(func() {
		m = mmu.MakeBuilder().
			WithLog2PageSize(4).
			WithNumFrames(4).
			WithNumPages(16).
			WithNumSegments(2).
			Build("Memory")

		Expect(m.AddProcess(1)).To(Succeed())

		_, err := m.CreateSegment(1, 0, 0, 2)
		Expect(err).NotTo(HaveOccurred())
	})

	write := func(f func(*csv.Writer, mmu.Snapshot) error) string {
		buf := new(bytes.Buffer)
		Expect(f(csv.NewWriter(buf), m.Snapshot())).To(Succeed())

		return buf.String()
	}

	It("should write segments", func() {
		Expect(write(WriteSegments)).To(Equal(
			"pid,segment,base,limit,flags,demand,resident\n" +
				"1,0,0,2,VRW,false,2\n"))
	})

	It("should write the pages that have flags", func() {
		Expect(write(WritePages)).To(Equal(
			"pid,page,frame,flags\n" +
				"1,0,0,V----\n" +
				"1,1,1,V----\n"))
	})

	It("should write frames", func() {
		Expect(write(WriteFrames)).To(Equal(
			"frame,free,pid,segment,page\n" +
				"0,false,1,0,0\n" +
				"1,false,1,0,1\n" +
				"2,true,,,\n" +
				"3,true,,,\n"))
	})

	It("should export three files", func() {
		dir := filepath.Join(GinkgoT().TempDir(), "export")

		Expect(ExportCSV(m, dir)).To(Succeed())

		for _, name := range []string{SegmentsFile, PagesFile, FramesFile} {
			content, err := os.ReadFile(filepath.Join(dir, name))
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Count(string(content), "\n")).To(BeNumerically(">", 1))
		}
	})
})

var _ = Describe("Process image", func() {
	var m *mmu.Memory

	BeforeEach(func() {
		m = mmu.MakeBuilder().
			WithLog2PageSize(4).
			WithNumFrames(2).
			WithNumPages(16).
			WithNumSegments(2).
			Build("Memory")

		Expect(m.AddProcess(1)).To(Succeed())

		_, err := m.ReserveSegment(1, 0, 2, 3)
		Expect(err).NotTo(HaveOccurred())

		for page, b := range []byte{0xa1, 0xb2, 0xc3} {
			addr := vm.LogicalAddress{
				Segment: 0,
				Page:    uint32(page),
				Offset:  uint32(page) + 1,
			}
			Expect(m.WriteByte(1, addr, b)).To(Succeed())
		}
	})

	It("should write resident and swapped pages without faulting", func() {
		faults := m.FaultCount()
		buf := new(bytes.Buffer)

		n, err := WriteProcessImage(buf, m, 1)

		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(48)))
		Expect(buf.Bytes()[1]).To(Equal(byte(0xa1)))
		Expect(buf.Bytes()[16+2]).To(Equal(byte(0xb2)))
		Expect(buf.Bytes()[32+3]).To(Equal(byte(0xc3)))
		Expect(m.FaultCount()).To(Equal(faults))
		Expect(m.CheckInvariants()).To(Succeed())
	})

	It("should write a dump file", func() {
		dir := GinkgoT().TempDir()

		path, err := WriteProcessFile(m, dir, 1)

		Expect(err).NotTo(HaveOccurred())
		Expect(filepath.Base(path)).To(HavePrefix("1-"))
		Expect(path).To(HaveSuffix(".dmp"))

		info, err := os.Stat(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Size()).To(Equal(int64(48)))
	})

	It("should refuse unknown processes", func() {
		_, err := WriteProcessImage(new(bytes.Buffer), m, 9)

		Expect(err).To(MatchError(vm.ErrProcessNotFound))
	})
})
