// Package performance samples process and system resources. The ingestion
// pipeline reads the process's resident memory to drive the segment seal
// trigger; the rest feeds logs and metrics.
package performance

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Usage is one resource snapshot.
type Usage struct {
	CPUPercent            float64 `json:"cpu_percent"`
	MemoryRSS             uint64  `json:"memory_rss"`
	MemoryVMS             uint64  `json:"memory_vms"`
	SystemMemoryPercent   float64 `json:"system_memory_percent"`
	SystemMemoryAvailable uint64  `json:"system_memory_available"`
	HeapAllocBytes        uint64  `json:"heap_alloc_bytes"`
	GoroutineCount        int     `json:"goroutine_count"`
}

// Monitor samples the current process. Safe for concurrent use; every call
// takes a fresh snapshot.
type Monitor struct {
	process      *process.Process
	startCPUTime float64
	startTime    time.Time
}

// NewMonitor attaches to the current process.
func NewMonitor() *Monitor {
	proc, _ := process.NewProcess(int32(os.Getpid()))

	m := &Monitor{
		process:   proc,
		startTime: time.Now(),
	}
	if proc != nil {
		if cpuTime, err := proc.Times(); err == nil {
			m.startCPUTime = cpuTime.Total()
		}
	}
	return m
}

// Usage snapshots resource consumption. Fields whose sampling fails stay
// zero; the snapshot itself never fails.
func (m *Monitor) Usage() Usage {
	var u Usage

	if m.process != nil {
		if cpuTime, err := m.process.Times(); err == nil {
			elapsed := time.Since(m.startTime).Seconds()
			if elapsed > 0 {
				u.CPUPercent = (cpuTime.Total() - m.startCPUTime) / elapsed * 100
			}
		}
		if memInfo, err := m.process.MemoryInfo(); err == nil {
			u.MemoryRSS = memInfo.RSS
			u.MemoryVMS = memInfo.VMS
		}
	}

	if vmStat, err := mem.VirtualMemory(); err == nil {
		u.SystemMemoryPercent = vmStat.UsedPercent
		u.SystemMemoryAvailable = vmStat.Available
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	u.HeapAllocBytes = memStats.HeapAlloc
	u.GoroutineCount = runtime.NumGoroutine()

	return u
}

// RSS returns the process's resident memory, the input to the segment seal
// trigger. Returns 0 when sampling fails.
func (m *Monitor) RSS() uint64 {
	if m.process == nil {
		return 0
	}
	memInfo, err := m.process.MemoryInfo()
	if err != nil {
		return 0
	}
	return memInfo.RSS
}
