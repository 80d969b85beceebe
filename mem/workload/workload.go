// Package workload drives a Memory with the access pattern of an array copy:
// dest[i] = src[i] for every element, visited in sequence or in a shuffled
// order, for a number of rounds.
package workload

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/mmu"
)

// The segments that hold the two arrays.
const (
	SourceSegment      = 0
	DestinationSegment = 1
)

// Config describes a copy workload.
type Config struct {
	PID         vm.PID
	Elements    int
	Rounds      int
	ElementSize uint32
	Sequential  bool
	Seed        int64

	// Keep leaves the process and its segments in memory after a
	// successful run.
	Keep bool
}

// Result reports what a copy workload cost. Faults and Evictions only count
// the copy rounds, not the initialization of the source array.
type Result struct {
	Elements   int
	Rounds     int
	Pages      uint32
	Faults     uint64
	Evictions  uint64
	Duration   time.Duration
	Mismatches int
}

// PerRound returns the average duration of a round.
func (r Result) PerRound() time.Duration {
	if r.Rounds == 0 {
		return 0
	}

	return r.Duration / time.Duration(r.Rounds)
}

func (r Result) String() string {
	return fmt.Sprintf(
		"time: %s, time/round: %s, faults: %d, evictions: %d",
		r.Duration, r.PerRound(), r.Faults, r.Evictions)
}

// Progress receives one step per finished round.
type Progress interface {
	IncrementFinished(amount uint64)
}

// A Copy runs a copy workload in its own process.
type Copy struct {
	memory   *mmu.Memory
	cfg      Config
	progress Progress
	rand     *rand.Rand

	pageSize uint32
	pages    uint32
}

// NewCopy prepares a copy workload. The process cfg.PID must not exist yet.
func NewCopy(memory *mmu.Memory, cfg Config) (*Copy, error) {
	if cfg.ElementSize == 0 {
		cfg.ElementSize = 4
	}

	if cfg.Elements <= 0 || cfg.Rounds < 0 {
		return nil, fmt.Errorf("invalid workload: %d elements, %d rounds",
			cfg.Elements, cfg.Rounds)
	}

	g := memory.Geometry()
	pageSize := g.PageSize()
	size := uint64(cfg.Elements) * uint64(cfg.ElementSize)
	pages := (size + uint64(pageSize) - 1) / uint64(pageSize)

	if g.NumSegments < 2 || 2*pages > uint64(g.NumPages) {
		return nil, fmt.Errorf(
			"%w: two arrays of %d pages do not fit %d pages",
			vm.ErrPageOutOfRange, pages, g.NumPages)
	}

	return &Copy{
		memory:   memory,
		cfg:      cfg,
		rand:     rand.New(rand.NewSource(cfg.Seed)),
		pageSize: pageSize,
		pages:    uint32(pages),
	}, nil
}

// WithProgress reports finished rounds to p.
func (c *Copy) WithProgress(p Progress) *Copy {
	c.progress = p
	return c
}

// Run admits the process, fills the source array, copies it the configured
// number of rounds and verifies the destination. The process is destroyed
// before Run returns unless the run succeeds with Keep set.
func (c *Copy) Run(ctx context.Context) (res Result, err error) {
	pid := c.cfg.PID

	if err := c.memory.AddProcess(pid); err != nil {
		return Result{}, err
	}

	defer func() {
		if c.cfg.Keep && err == nil {
			return
		}

		if dErr := c.memory.DestroyProcess(pid); err == nil {
			err = dErr
		}
	}()

	if err := c.reserve(); err != nil {
		return Result{}, err
	}

	src := make([]byte, uint64(c.cfg.Elements)*uint64(c.cfg.ElementSize))
	c.rand.Read(src)

	if _, err := c.memory.Write(pid, c.addr(SourceSegment, 0), src); err != nil {
		return Result{}, err
	}

	picks := c.picks()
	before, err := c.memory.ProcessStats(pid)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()

	for round := 0; round < c.cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		if err := c.copyRound(picks); err != nil {
			return Result{}, err
		}

		if c.progress != nil {
			c.progress.IncrementFinished(1)
		}
	}

	res = Result{
		Elements: c.cfg.Elements,
		Rounds:   c.cfg.Rounds,
		Pages:    c.pages,
		Duration: time.Since(start),
	}

	after, err := c.memory.ProcessStats(pid)
	if err != nil {
		return Result{}, err
	}

	res.Faults = after.Faults - before.Faults
	res.Evictions = after.Evictions - before.Evictions

	if c.cfg.Rounds > 0 {
		res.Mismatches, err = c.verify(src)
		if err != nil {
			return Result{}, err
		}
	}

	return res, nil
}

func (c *Copy) reserve() error {
	_, err := c.memory.ReserveSegment(c.cfg.PID, SourceSegment, 0, c.pages)
	if err != nil {
		return err
	}

	_, err = c.memory.ReserveSegment(
		c.cfg.PID, DestinationSegment, c.pages, c.pages)

	return err
}

// picks returns the visiting order of the elements. The shuffled order swaps
// as many random pairs as there are elements.
func (c *Copy) picks() []int {
	n := c.cfg.Elements
	picks := make([]int, n)

	for i := range picks {
		picks[i] = i
	}

	if c.cfg.Sequential {
		return picks
	}

	for i := 0; i < n; i++ {
		a, b := c.rand.Intn(n), c.rand.Intn(n)
		picks[a], picks[b] = picks[b], picks[a]
	}

	return picks
}

func (c *Copy) copyRound(picks []int) error {
	buf := make([]byte, c.cfg.ElementSize)

	for _, idx := range picks {
		offset := uint32(idx) * c.cfg.ElementSize

		_, err := c.memory.Read(c.cfg.PID, c.addr(SourceSegment, offset), buf)
		if err != nil {
			return err
		}

		_, err = c.memory.Write(c.cfg.PID,
			c.addr(DestinationSegment, offset), buf)
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *Copy) verify(src []byte) (int, error) {
	dest := make([]byte, len(src))

	_, err := c.memory.Read(c.cfg.PID, c.addr(DestinationSegment, 0), dest)
	if err != nil {
		return 0, err
	}

	if bytes.Equal(src, dest) {
		return 0, nil
	}

	mismatches := 0
	size := int(c.cfg.ElementSize)

	for i := 0; i < len(src); i += size {
		if !bytes.Equal(src[i:i+size], dest[i:i+size]) {
			mismatches++
		}
	}

	return mismatches, nil
}

func (c *Copy) addr(segment, offset uint32) vm.LogicalAddress {
	return vm.LogicalAddress{
		Segment: segment,
		Page:    offset / c.pageSize,
		Offset:  offset % c.pageSize,
	}
}
