// Package cmd provides the command-line interface of vmsim.
package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/sarchlab/vmsim/config"
	"github.com/sarchlab/vmsim/datarecording"
	"github.com/sarchlab/vmsim/mem/trace"
	"github.com/sarchlab/vmsim/mem/vm/mmu"
	"github.com/sarchlab/vmsim/mem/vm/swap"
	"github.com/sarchlab/vmsim/monitoring"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vmsim",
	Short: "vmsim simulates a segmented, demand-paged memory.",
	Long: `vmsim simulates a segmented, demand-paged memory shared by ` +
		`several processes. It can replay reference scenarios and run ` +
		`copy workloads while tracing, recording and monitoring the memory.`,
	SilenceUsage: true,
}

var envFile string

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&envFile, "env", "",
		"The .env file to read. Defaults to .env if it exists.")
	flags.Uint32("log2-page-size", 0, "Log2 of the page size in bytes.")
	flags.Uint32("frames", 0, "Number of physical frames.")
	flags.Uint32("pages", 0, "Number of virtual pages per process.")
	flags.Uint32("segments", 0, "Number of segment slots per process.")
	flags.String("swap", "", "Swap store: memory, file or sqlite.")
	flags.String("swap-path", "", "Directory or database of the swap store.")
	flags.Bool("trace", false, "Log every memory event to stderr.")
	flags.String("record", "",
		"Record memory events into this SQLite database (no extension).")
	flags.Int("monitor-port", 0, "Serve the HTTP monitor on this port.")
	flags.Bool("open", false, "Open the monitor in a browser.")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}
}

// loadConfig reads the configuration and applies the flags that were set on
// the command line.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	c, err := config.Load(envFile)
	if err != nil {
		return c, err
	}

	flags := cmd.Flags()

	uints := map[string]*uint32{
		"log2-page-size": &c.Geometry.Log2PageSize,
		"frames":         &c.Geometry.NumFrames,
		"pages":          &c.Geometry.NumPages,
		"segments":       &c.Geometry.NumSegments,
	}
	for name, dst := range uints {
		if flags.Changed(name) {
			*dst, _ = flags.GetUint32(name)
		}
	}

	if flags.Changed("swap") {
		kind, _ := flags.GetString("swap")
		c.Swap = swap.Kind(kind)
	}

	if flags.Changed("swap-path") {
		c.SwapPath, _ = flags.GetString("swap-path")
	}

	if flags.Changed("trace") {
		c.Trace, _ = flags.GetBool("trace")
	}

	if flags.Changed("record") {
		c.Record, _ = flags.GetString("record")
	}

	if flags.Changed("monitor-port") {
		c.MonitorPort, _ = flags.GetInt("monitor-port")
	}

	return c, c.Validate()
}

// simulation is a memory together with the tools attached to it.
type simulation struct {
	memory   *mmu.Memory
	recorder datarecording.DataRecorder
	monitor  *monitoring.Monitor
}

func newSimulation(cmd *cobra.Command, name string) (*simulation, error) {
	c, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	builder, err := c.Builder()
	if err != nil {
		return nil, err
	}

	s := &simulation{}

	if c.Trace {
		logger := log.New(os.Stderr, "", 0)
		builder = builder.WithHook(trace.NewTracer(logger, true))
	}

	s.recorder, err = c.Recorder()
	if err != nil {
		return nil, err
	}

	if s.recorder != nil {
		builder = builder.WithHook(trace.NewDBTracer(s.recorder, true))
	}

	s.memory = builder.Build(name)

	if c.MonitorPort != 0 {
		s.monitor = monitoring.NewMonitor().WithPortNumber(c.MonitorPort)
		if open, _ := cmd.Flags().GetBool("open"); open {
			s.monitor.WithBrowser()
		}

		s.monitor.RegisterMemory(s.memory)
		s.monitor.StartServer()
	}

	return s, nil
}

// Close shuts the memory down and flushes the recorder.
func (s *simulation) Close() error {
	err := s.memory.Close()

	if s.recorder != nil {
		if rErr := s.recorder.Close(); err == nil {
			err = rErr
		}
	}

	if err != nil {
		return fmt.Errorf("closing simulation: %w", err)
	}

	return nil
}
