package cmd

import (
	"fmt"
	"io"
	"log"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/mmu"
	"github.com/spf13/cobra"
)

// scenarios replay the reference behaviors of the memory. Each one builds
// its own processes and leaves the memory empty when it succeeds.
var scenarios = map[string]func(m *mmu.Memory, w io.Writer) error{
	"abcd":     abcdScenario,
	"overflow": overflowScenario,
}

var scenarioCmd = &cobra.Command{
	Use:       "scenario [abcd|overflow]...",
	Short:     "Replay reference scenarios.",
	Long:      "`scenario` replays the named scenarios, or all of them.",
	ValidArgs: []string{"abcd", "overflow"},
	Args:      cobra.OnlyValidArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runScenarios(cmd, args); err != nil {
			log.Fatalf("Error: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(scenarioCmd)
}

func runScenarios(cmd *cobra.Command, names []string) error {
	if len(names) == 0 {
		names = []string{"abcd", "overflow"}
	}

	s, err := newSimulation(cmd, "Memory")
	if err != nil {
		return err
	}

	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "scenario %s\n", name)

		if err := scenarios[name](s.memory, cmd.OutOrStdout()); err != nil {
			s.Close()
			return fmt.Errorf("scenario %s: %w", name, err)
		}

		if err := s.memory.CheckInvariants(); err != nil {
			s.Close()
			return fmt.Errorf("scenario %s: %w", name, err)
		}
	}

	return s.Close()
}

// abcdScenario writes A, B, C and D to the first byte of four eagerly backed
// pages and reads them back.
func abcdScenario(m *mmu.Memory, w io.Writer) error {
	const pid = vm.PID(1)

	if err := m.AddProcess(pid); err != nil {
		return err
	}

	if _, err := m.CreateSegment(pid, 0, 0, 4); err != nil {
		return err
	}

	data := []byte("ABCD")

	for page, b := range data {
		addr := vm.LogicalAddress{Page: uint32(page)}
		if err := m.WriteByte(pid, addr, b); err != nil {
			return err
		}
	}

	for page, want := range data {
		addr := vm.LogicalAddress{Page: uint32(page)}

		got, err := m.ReadByte(pid, addr)
		if err != nil {
			return err
		}

		if got != want {
			return fmt.Errorf("page %d holds %q, want %q", page, got, want)
		}

		fmt.Fprintf(w, "%s: %c\n", addr, got)
	}

	return m.DestroyProcess(pid)
}

// overflowScenario touches one page more than there are frames, then reads
// the first page again. That read must fault exactly once and return the
// byte that was written before the page was evicted.
func overflowScenario(m *mmu.Memory, w io.Writer) error {
	const pid = vm.PID(1)

	frames := m.Geometry().NumFrames

	if err := m.AddProcess(pid); err != nil {
		return err
	}

	if _, err := m.ReserveSegment(pid, 0, 0, frames+1); err != nil {
		return err
	}

	for page := uint32(0); page <= frames; page++ {
		addr := vm.LogicalAddress{Page: page}
		if err := m.WriteByte(pid, addr, byte('a'+page%26)); err != nil {
			return err
		}
	}

	before := m.FaultCount()

	got, err := m.ReadByte(pid, vm.LogicalAddress{})
	if err != nil {
		return err
	}

	faults := m.FaultCount() - before
	if faults != 1 || got != 'a' {
		return fmt.Errorf("read %q with %d faults, want 'a' with 1 fault",
			got, faults)
	}

	stats := m.Stats()
	fmt.Fprintf(w, "frames: %d, faults: %d, evictions: %d\n",
		frames, stats.Faults, stats.Evictions)

	return m.DestroyProcess(pid)
}
