package memserver

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/process"
)

const selfProcessKey = ""

type ProcessStats struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	CPUTimeSec float64 `json:"cpu_time_sec"`     // total CPU time in seconds
	MemoryRSS  uint64  `json:"memory_rss_bytes"` // resident memory usage
	MemoryVMS  uint64  `json:"memory_vms_bytes"`
}

// findProcessByName searches for a process by name using gopsutil
func findProcessByName(name string) (*process.Process, error) {
	processes, err := process.Processes()
	if err != nil {
		return nil, err
	}

	for _, proc := range processes {
		pname, err := proc.Name()
		if err == nil && pname == name {
			return proc, nil
		}
	}
	return nil, fmt.Errorf("process %s not found", name)
}

// GetProcessStats extracts CPU and memory usage from a gopsutil Process
func GetProcessStats(proc *process.Process) (*ProcessStats, error) {
	times, err := proc.Times()
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU times: %w", err)
	}

	mem, err := proc.MemoryInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get memory info: %w", err)
	}

	name, _ := proc.Name()
	return &ProcessStats{
		PID:        proc.Pid,
		Name:       name,
		CPUTimeSec: times.User + times.System,
		MemoryRSS:  mem.RSS,
		MemoryVMS:  mem.VMS,
	}, nil
}

// monitoredProcess resolves the configured process, reusing a cached handle
// while it is still running.
func (s *Server) monitoredProcess() (*process.Process, error) {
	key := s.cfg.ProcessName

	if item := s.processes.Get(key); item != nil {
		if running, err := item.Value().IsRunning(); err == nil && running {
			return item.Value(), nil
		}
		s.processes.Delete(key)
	}

	var (
		proc *process.Process
		err  error
	)
	if key == selfProcessKey {
		proc, err = process.NewProcess(int32(os.Getpid()))
	} else {
		proc, err = findProcessByName(key)
	}
	if err != nil {
		return nil, err
	}

	s.processes.Set(key, proc, s.cfg.ProcessTTL)
	return proc, nil
}
