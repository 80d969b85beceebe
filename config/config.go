// Package config reads the settings of a simulation from a .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sarchlab/vmsim/datarecording"
	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/mmu"
	"github.com/sarchlab/vmsim/mem/vm/swap"
)

// DefaultEnvFile is read by Load when no file is named.
const DefaultEnvFile = ".env"

// The recognized environment variables.
const (
	EnvLog2PageSize = "VMSIM_LOG2_PAGE_SIZE"
	EnvNumFrames    = "VMSIM_NUM_FRAMES"
	EnvNumPages     = "VMSIM_NUM_PAGES"
	EnvNumSegments  = "VMSIM_NUM_SEGMENTS"
	EnvSwap         = "VMSIM_SWAP"
	EnvSwapPath     = "VMSIM_SWAP_PATH"
	EnvMonitorPort  = "VMSIM_MONITOR_PORT"
	EnvTrace        = "VMSIM_TRACE"
	EnvRecord       = "VMSIM_RECORD"

	EnvClickHouseAddr     = "VMSIM_CLICKHOUSE_ADDR"
	EnvClickHouseDatabase = "VMSIM_CLICKHOUSE_DATABASE"
	EnvClickHouseUser     = "VMSIM_CLICKHOUSE_USER"
	EnvClickHousePassword = "VMSIM_CLICKHOUSE_PASSWORD"
)

// Config holds everything needed to set up a simulated memory.
type Config struct {
	Geometry vm.Geometry
	Swap     swap.Kind
	SwapPath string

	// MonitorPort enables the HTTP monitor when it is not zero.
	MonitorPort int

	// Trace logs every memory event to stderr.
	Trace bool

	// Record is the SQLite file (without extension) that receives the
	// trace tables. Empty disables recording unless ClickHouse is set.
	Record     string
	ClickHouse datarecording.ClickHouseOptions
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Geometry: vm.DefaultGeometry(),
		Swap:     swap.KindMemory,
		SwapPath: "swap",
	}
}

// Load reads the variables of envFile, or of DefaultEnvFile if envFile is
// empty, and then those of the process environment, which take precedence.
// A missing default file is not an error.
func Load(envFile string) (Config, error) {
	path := envFile
	if path == "" {
		path = DefaultEnvFile
	}

	vars, err := godotenv.Read(path)
	if err != nil {
		if envFile != "" || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}

		vars = make(map[string]string)
	}

	for _, kv := range os.Environ() {
		key, value, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "VMSIM_") {
			vars[key] = value
		}
	}

	return Parse(vars)
}

// Parse builds a configuration from a set of variables. Unset variables keep
// their default value.
func Parse(vars map[string]string) (Config, error) {
	c := Default()
	p := parser{vars: vars}

	p.uint(EnvLog2PageSize, &c.Geometry.Log2PageSize)
	p.uint(EnvNumFrames, &c.Geometry.NumFrames)
	p.uint(EnvNumPages, &c.Geometry.NumPages)
	p.uint(EnvNumSegments, &c.Geometry.NumSegments)
	p.integer(EnvMonitorPort, &c.MonitorPort)
	p.flag(EnvTrace, &c.Trace)
	p.text(EnvSwapPath, &c.SwapPath)
	p.text(EnvRecord, &c.Record)
	p.text(EnvClickHouseAddr, &c.ClickHouse.Addr)
	p.text(EnvClickHouseDatabase, &c.ClickHouse.Database)
	p.text(EnvClickHouseUser, &c.ClickHouse.Username)
	p.text(EnvClickHousePassword, &c.ClickHouse.Password)

	if v, ok := vars[EnvSwap]; ok {
		c.Swap = swap.Kind(strings.ToLower(v))
	}

	if p.err != nil {
		return Config{}, p.err
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Validate checks the geometry and the swap kind.
func (c Config) Validate() error {
	if err := c.Geometry.Validate(); err != nil {
		return err
	}

	switch c.Swap {
	case swap.KindMemory, swap.KindFile, swap.KindSQLite:
	default:
		return fmt.Errorf("%s: unknown swap store kind %q", EnvSwap, c.Swap)
	}

	return nil
}

// OpenSwap opens the swap store of the configuration.
func (c Config) OpenSwap() (swap.Store, error) {
	return swap.Open(c.Swap, c.SwapPath, c.Geometry)
}

// Builder returns a memory builder with the configured geometry and swap
// store.
func (c Config) Builder() (mmu.Builder, error) {
	store, err := c.OpenSwap()
	if err != nil {
		return mmu.Builder{}, err
	}

	return mmu.MakeBuilder().
		WithGeometry(c.Geometry).
		WithSwapStore(store), nil
}

// Recorder opens the data recorder of the configuration. It returns nil if
// recording is disabled.
func (c Config) Recorder() (datarecording.DataRecorder, error) {
	switch {
	case c.ClickHouse.Addr != "":
		return datarecording.NewClickHouse(c.ClickHouse)
	case c.Record != "":
		return datarecording.New(c.Record), nil
	default:
		return nil, nil
	}
}

type parser struct {
	vars map[string]string
	err  error
}

func (p *parser) lookup(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}

	v, ok := p.vars[key]

	return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
}

func (p *parser) fail(key, value string, err error) {
	p.err = fmt.Errorf("%s=%q: %w", key, value, err)
}

func (p *parser) uint(key string, dst *uint32) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}

	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = uint32(n)
}

func (p *parser) integer(key string, dst *int) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = n
}

func (p *parser) flag(key string, dst *bool) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = b
}

func (p *parser) text(key string, dst *string) {
	if v, ok := p.lookup(key); ok {
		*dst = v
	}
}
