package datarecording

import (
	"os"
	"strings"
	"time"
)

const execTableName = "exec_info"

const timeLayout = "2006-01-02 15:04:05.000000000"

// execInfo is a property of the program execution.
type execInfo struct {
	Property string
	Value    string
}

// execRecorder records when and how the program was started and when it
// ended.
type execRecorder struct {
	recorder DataRecorder
	entries  []execInfo
}

func newExecRecorder(recorder DataRecorder) *execRecorder {
	recorder.CreateTable(execTableName, execInfo{})

	return &execRecorder{recorder: recorder}
}

// Start collects the properties known when the program starts.
func (e *execRecorder) Start() {
	e.entries = append(e.entries,
		execInfo{"Start Time", time.Now().Format(timeLayout)},
		execInfo{"Command", strings.Join(os.Args, " ")},
	)

	if cwd, err := os.Getwd(); err == nil {
		e.entries = append(e.entries, execInfo{"Working Directory", cwd})
	}
}

// End writes the collected properties along with the exit time.
func (e *execRecorder) End() {
	for _, entry := range e.entries {
		e.recorder.InsertData(execTableName, entry)
	}

	e.recorder.InsertData(execTableName,
		execInfo{"End Time", time.Now().Format(timeLayout)})

	e.entries = nil
}
