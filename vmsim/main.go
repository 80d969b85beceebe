// Command vmsim runs workloads and scenarios on a simulated segmented and
// paged memory.
package main

import (
	"github.com/sarchlab/vmsim/vmsim/cmd"
	"github.com/tebeka/atexit"
)

func main() {
	cmd.Execute()
	atexit.Exit(0)
}
