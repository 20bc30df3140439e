package metrics

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// ResourceMonitor samples the resource usage of the current process
type ResourceMonitor struct {
	process *process.Process
}

// NewResourceMonitor attaches to the current process
func NewResourceMonitor() (*ResourceMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pids fit in int32
	if err != nil {
		return nil, err
	}
	return &ResourceMonitor{process: proc}, nil
}

// RSS returns the resident set size in bytes and records it for job
func (rm *ResourceMonitor) RSS(job string) (uint64, error) {
	memInfo, err := rm.process.MemoryInfo()
	if err != nil {
		return 0, err
	}
	ResidentMemory.WithLabelValues(job).Set(float64(memInfo.RSS))
	return memInfo.RSS, nil
}

// HumanBytes renders a byte count in MiB for log lines
func HumanBytes(n uint64) float64 {
	return float64(n) / (1 << 20)
}
