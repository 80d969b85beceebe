// Package monitoring serves the state of a running simulation over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/rs/xid"
	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/mmu"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Monitor turns a simulation into a server that reports the state of the
// simulated memory.
type Monitor struct {
	memory      *mmu.Memory
	portNumber  int
	openBrowser bool

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the monitoring page in a browser.
func (m *Monitor) WithBrowser() *Monitor {
	m.openBrowser = true
	return m
}

// RegisterMemory registers the memory to report.
func (m *Monitor) RegisterMemory(memory *mmu.Memory) {
	m.memory = memory
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the handler of all the monitoring endpoints.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/stats", m.stats)
	r.HandleFunc("/api/frames", m.listFrames)
	r.HandleFunc("/api/processes", m.listProcesses)
	r.HandleFunc("/api/process/{pid}", m.processDetails)
	r.HandleFunc("/api/process/{pid}/segments", m.processSegments)
	r.HandleFunc("/api/process/{pid}/pages", m.processPages)
	r.HandleFunc("/api/snapshot", m.snapshot)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/invariants", m.checkInvariants)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	return r
}

// StartServer starts the monitor as a web server with a custom port if
// wanted. It returns the port that the server listens on.
func (m *Monitor) StartServer() int {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	port := listener.Addr().(*net.TCPAddr).Port
	url := fmt.Sprintf("http://localhost:%d/api/stats", port)

	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func() {
		err := http.Serve(listener, m.Router())
		dieOnErr(err)
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			log.Printf("cannot open browser: %v", err)
		}
	}

	return port
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	fmt.Fprintf(w, "Error: %s", err)
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.memory.Stats())
}

func (*Monitor) framesParseParams(
	r *http.Request,
) (owned bool, limit, offset int, err error) {
	owned = r.URL.Query().Get("owned") == "true"

	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		limitStr = "0"
	}
	limit, err = strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		return owned, 0, 0, fmt.Errorf("invalid limit %q", limitStr)
	}

	offsetStr := r.URL.Query().Get("offset")
	if offsetStr == "" {
		offsetStr = "0"
	}
	offset, err = strconv.Atoi(offsetStr)
	if err != nil || offset < 0 {
		return owned, limit, 0, fmt.Errorf("invalid offset %q", offsetStr)
	}

	return owned, limit, offset, nil
}

func (m *Monitor) listFrames(w http.ResponseWriter, r *http.Request) {
	owned, limit, offset, err := m.framesParseParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	frames := make([]mmu.FrameInfo, 0)
	for _, f := range m.memory.Frames() {
		if owned && f.Free {
			continue
		}

		frames = append(frames, f)
	}

	writeJSON(w, selectRange(frames, limit, offset))
}

func selectRange[T any](items []T, limit, offset int) []T {
	if offset > len(items) {
		offset = len(items)
	}

	items = items[offset:]

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}

func (m *Monitor) listProcesses(w http.ResponseWriter, _ *http.Request) {
	stats := make([]mmu.ProcessStats, 0)

	for _, pid := range m.memory.PIDs() {
		s, err := m.memory.ProcessStats(pid)
		if err != nil {
			// Destroyed since PIDs was called.
			continue
		}

		stats = append(stats, s)
	}

	writeJSON(w, stats)
}

func (m *Monitor) findProcessOr404(
	w http.ResponseWriter,
	r *http.Request,
) (vm.PID, bool) {
	str := mux.Vars(r)["pid"]

	pid, err := strconv.ParseUint(str, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid pid %q", str))
		return 0, false
	}

	if !m.memory.HasProcess(vm.PID(pid)) {
		writeError(w, http.StatusNotFound, vm.ErrProcessNotFound)
		return 0, false
	}

	return vm.PID(pid), true
}

func (m *Monitor) processDetails(w http.ResponseWriter, r *http.Request) {
	pid, ok := m.findProcessOr404(w, r)
	if !ok {
		return
	}

	stats, err := m.memory.ProcessStats(pid)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	writeJSON(w, stats)
}

func (m *Monitor) processSegments(w http.ResponseWriter, r *http.Request) {
	pid, ok := m.findProcessOr404(w, r)
	if !ok {
		return
	}

	segments, err := m.memory.Segments(pid)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	writeJSON(w, segments)
}

type pageRsp struct {
	Page  uint32 `json:"page"`
	Frame uint32 `json:"frame"`
	Flags string `json:"flags"`
}

func (m *Monitor) processPages(w http.ResponseWriter, r *http.Request) {
	pid, ok := m.findProcessOr404(w, r)
	if !ok {
		return
	}

	pages, err := m.memory.Pages(pid)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	rsp := make([]pageRsp, 0)
	for page, e := range pages {
		if e.Flags == 0 {
			continue
		}

		rsp = append(rsp, pageRsp{
			Page:  uint32(page),
			Frame: e.Frame,
			Flags: e.Flags.String(),
		})
	}

	writeJSON(w, rsp)
}

func (m *Monitor) snapshot(w http.ResponseWriter, r *http.Request) {
	depth := 2

	if str := r.URL.Query().Get("depth"); str != "" {
		d, err := strconv.Atoi(str)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		depth = d
	}

	s := m.memory.Snapshot()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&s)
	serializer.SetMaxDepth(depth)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	fields := strings.Split(req.FieldName, ".")
	s := m.memory.Snapshot()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&s)
	serializer.SetMaxDepth(1)

	if err := serializer.SetEntryPoint(fields); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

type invariantsRsp struct {
	OK    bool   `json:"ok"`
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
}

func (m *Monitor) checkInvariants(w http.ResponseWriter, _ *http.Request) {
	rsp := invariantsRsp{OK: true}

	if err := m.memory.CheckInvariants(); err != nil {
		rsp = invariantsRsp{
			Kind:  vm.KindOf(err).String(),
			Error: err.Error(),
		}
	}

	writeJSON(w, rsp)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	rsp := make([]progressRsp, len(m.progressBars))
	for i, b := range m.progressBars {
		rsp[i] = b.rsp()
	}

	writeJSON(w, rsp)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		writeError(w, http.StatusConflict, errors.New("profiling in progress"))
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
