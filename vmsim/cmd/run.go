package cmd

import (
	"fmt"
	"log"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/dump"
	"github.com/sarchlab/vmsim/mem/workload"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a copy workload.",
	Long: "`run --elements N --rounds R [--sequential]` copies an array of N " +
		"elements into another one R times through the simulated memory " +
		"and reports the time, the page faults and the evictions.",
	Run: func(cmd *cobra.Command, _ []string) {
		if err := runWorkload(cmd); err != nil {
			log.Fatalf("Error running workload: %v", err)
		}
	},
}

func init() {
	flags := runCmd.Flags()

	flags.Int("elements", 1024, "Number of elements of each array.")
	flags.Int("rounds", 1, "Number of copy rounds.")
	flags.Uint32("element-size", 4, "Size of an element in bytes.")
	flags.Bool("sequential", false, "Visit the elements in order.")
	flags.Int64("seed", 1, "Seed of the shuffled order and of the data.")
	flags.Uint32("pid", 1, "Process ID of the workload.")
	flags.String("csv", "", "Export segments, pages and frames to this "+
		"directory after the run.")
	flags.String("dump", "", "Write the process image to this directory "+
		"after the run.")
	flags.Bool("snapshot", false, "Record a snapshot of the memory after "+
		"the run. Needs --record.")

	rootCmd.AddCommand(runCmd)
}

func runWorkload(cmd *cobra.Command) error {
	flags := cmd.Flags()

	cfg := workload.Config{}
	cfg.Elements, _ = flags.GetInt("elements")
	cfg.Rounds, _ = flags.GetInt("rounds")
	cfg.ElementSize, _ = flags.GetUint32("element-size")
	cfg.Sequential, _ = flags.GetBool("sequential")
	cfg.Seed, _ = flags.GetInt64("seed")
	pid, _ := flags.GetUint32("pid")
	cfg.PID = vm.PID(pid)
	csvDir, _ := flags.GetString("csv")
	dumpDir, _ := flags.GetString("dump")
	snapshot, _ := flags.GetBool("snapshot")
	cfg.Keep = csvDir != "" || dumpDir != "" || snapshot

	s, err := newSimulation(cmd, "Memory")
	if err != nil {
		return err
	}

	copyWorkload, err := workload.NewCopy(s.memory, cfg)
	if err != nil {
		s.Close()
		return err
	}

	if s.monitor != nil {
		bar := s.monitor.CreateProgressBar("copy", uint64(cfg.Rounds))
		defer s.monitor.CompleteProgressBar(bar)

		copyWorkload.WithProgress(bar)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "num_elements: %d, num_rounds: %d, sequential: %t\n",
		cfg.Elements, cfg.Rounds, cfg.Sequential)

	res, err := copyWorkload.Run(cmd.Context())
	if err != nil {
		s.Close()
		return err
	}

	fmt.Fprintln(out, res)

	if err := exportState(s, cfg.PID, csvDir, dumpDir, snapshot); err != nil {
		s.Close()
		return err
	}

	return s.Close()
}

func exportState(
	s *simulation,
	pid vm.PID,
	csvDir, dumpDir string,
	snapshot bool,
) error {
	if csvDir != "" {
		if err := dump.ExportCSV(s.memory, csvDir); err != nil {
			return err
		}
	}

	if dumpDir != "" {
		if _, err := dump.WriteProcessFile(s.memory, dumpDir, pid); err != nil {
			return err
		}
	}

	if snapshot {
		if s.recorder == nil {
			return fmt.Errorf("--snapshot needs a recorder")
		}

		recorder := dump.NewSnapshotRecorder(s.recorder)
		if _, err := recorder.Record(s.memory, "after run"); err != nil {
			return err
		}
	}

	return nil
}
