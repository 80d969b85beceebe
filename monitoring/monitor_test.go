package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/mmu"
)

var _ = Describe("Monitor", func() {
	var (
		memory  *mmu.Memory
		monitor *Monitor
	)

	BeforeEach(func() {
		memory = mmu.MakeBuilder().
			WithLog2PageSize(4).
			WithNumFrames(4).
			WithNumPages(16).
			WithNumSegments(2).
			Build("Memory")

		Expect(memory.AddProcess(1)).To(Succeed())
		Expect(memory.AddProcess(2)).To(Succeed())

		_, err := memory.CreateSegment(1, 0, 0, 2)
		Expect(err).NotTo(HaveOccurred())

		monitor = NewMonitor()
		monitor.RegisterMemory(memory)
	})

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)

		monitor.Router().ServeHTTP(rec, req)

		return rec
	}

	decode := func(rec *httptest.ResponseRecorder, v any) {
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Unmarshal(rec.Body.Bytes(), v)).To(Succeed())
	}

	It("should fall back to a random port below 1000", func() {
		Expect(NewMonitor().WithPortNumber(80).portNumber).To(Equal(0))
		Expect(NewMonitor().WithPortNumber(8080).portNumber).To(Equal(8080))
	})

	It("should report stats", func() {
		var stats mmu.Stats
		decode(get("/api/stats"), &stats)

		Expect(stats).To(Equal(mmu.Stats{
			TotalFrames: 4,
			FreeFrames:  2,
			Processes:   2,
		}))
	})

	It("should list frames", func() {
		var frames []mmu.FrameInfo
		decode(get("/api/frames"), &frames)

		Expect(frames).To(HaveLen(4))
		Expect(frames[1]).To(Equal(mmu.FrameInfo{Frame: 1, PID: 1, Page: 1}))
		Expect(frames[2].Free).To(BeTrue())
	})

	It("should filter and page frames", func() {
		var frames []mmu.FrameInfo
		decode(get("/api/frames?owned=true&offset=1&limit=5"), &frames)

		Expect(frames).To(Equal([]mmu.FrameInfo{{Frame: 1, PID: 1, Page: 1}}))
	})

	It("should reject a bad limit", func() {
		rec := get("/api/frames?limit=x")

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should list processes", func() {
		var stats []mmu.ProcessStats
		decode(get("/api/processes"), &stats)

		Expect(stats).To(Equal([]mmu.ProcessStats{
			{PID: 1, Segments: 1, Frames: 2},
			{PID: 2},
		}))
	})

	It("should report one process", func() {
		var stats mmu.ProcessStats
		decode(get("/api/process/1"), &stats)

		Expect(stats.PID).To(Equal(vm.PID(1)))
		Expect(stats.Frames).To(Equal(uint32(2)))
	})

	It("should report unknown processes", func() {
		Expect(get("/api/process/7").Code).To(Equal(http.StatusNotFound))
		Expect(get("/api/process/x").Code).To(Equal(http.StatusBadRequest))
	})

	It("should list segments", func() {
		var segments []mmu.SegmentInfo
		decode(get("/api/process/1/segments"), &segments)

		Expect(segments).To(HaveLen(1))
		Expect(segments[0].Limit).To(Equal(uint32(2)))
		Expect(segments[0].Resident).To(Equal(uint32(2)))
	})

	It("should list the pages that have flags", func() {
		var pages []pageRsp
		decode(get("/api/process/1/pages"), &pages)

		Expect(pages).To(Equal([]pageRsp{
			{Page: 0, Frame: 0, Flags: "V----"},
			{Page: 1, Frame: 1, Flags: "V----"},
		}))
	})

	It("should serialize the snapshot", func() {
		rec := get("/api/snapshot")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).To(BeNumerically(">", 0))
	})

	It("should reject malformed field requests", func() {
		rec := get("/api/field/" + url.PathEscape("{"))

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should check invariants", func() {
		var rsp invariantsRsp
		decode(get("/api/invariants"), &rsp)

		Expect(rsp).To(Equal(invariantsRsp{OK: true}))
	})

	It("should report progress bars", func() {
		bar := monitor.CreateProgressBar("copy", 10)
		bar.IncrementInProgress(3)
		bar.MoveInProgressToFinished(2)

		var bars []progressRsp
		decode(get("/api/progress"), &bars)

		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("copy"))
		Expect(bars[0].Finished).To(Equal(uint64(2)))
		Expect(bars[0].InProgress).To(Equal(uint64(1)))

		monitor.CompleteProgressBar(bar)
		decode(get("/api/progress"), &bars)

		Expect(bars).To(BeEmpty())
	})
})
