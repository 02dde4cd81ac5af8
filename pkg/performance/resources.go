// Package performance reports process resource usage around a load so the
// CLI can show what a table costs beyond its column buffers.
package performance

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// MemorySnapshot is the process and Go heap state at one instant
type MemorySnapshot struct {
	Timestamp             time.Time `json:"timestamp"`
	RSSBytes              uint64    `json:"rss_bytes"`
	VMSBytes              uint64    `json:"vms_bytes"`
	HeapAllocBytes        uint64    `json:"heap_alloc_bytes"`
	HeapSysBytes          uint64    `json:"heap_sys_bytes"`
	NumGC                 uint32    `json:"num_gc"`
	Goroutines            int       `json:"goroutines"`
	CPUPercent            float64   `json:"cpu_percent"`
	SystemMemoryPercent   float64   `json:"system_memory_percent"`
	SystemMemoryAvailable uint64    `json:"system_memory_available"`
}

// HeapDelta returns how much the Go heap grew from before to s
func (s *MemorySnapshot) HeapDelta(before *MemorySnapshot) int64 {
	return int64(s.HeapAllocBytes) - int64(before.HeapAllocBytes) //nolint:gosec // G115: heap sizes fit in int64
}

// ResourceMonitor samples the current process. CPU percent is averaged
// since the monitor was created.
type ResourceMonitor struct {
	process      *process.Process
	startCPUTime float64
	startTime    time.Time
	mu           sync.Mutex
}

// NewResourceMonitor attaches to the current process
func NewResourceMonitor() (*ResourceMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // G115: pids fit in int32
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to inspect process")
	}
	rm := &ResourceMonitor{process: proc, startTime: time.Now()}
	if t, err := proc.Times(); err == nil {
		rm.startCPUTime = t.User + t.System
	}
	return rm, nil
}

// Snapshot samples memory and CPU. Fields the platform cannot report are
// left zero.
func (rm *ResourceMonitor) Snapshot() *MemorySnapshot {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s := &MemorySnapshot{
		Timestamp:      time.Now(),
		HeapAllocBytes: ms.HeapAlloc,
		HeapSysBytes:   ms.HeapSys,
		NumGC:          ms.NumGC,
		Goroutines:     runtime.NumGoroutine(),
	}

	if info, err := rm.process.MemoryInfo(); err == nil {
		s.RSSBytes = info.RSS
		s.VMSBytes = info.VMS
	}
	if t, err := rm.process.Times(); err == nil {
		if elapsed := s.Timestamp.Sub(rm.startTime).Seconds(); elapsed > 0 {
			s.CPUPercent = (t.User + t.System - rm.startCPUTime) / elapsed * 100
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.SystemMemoryPercent = vm.UsedPercent
		s.SystemMemoryAvailable = vm.Available
	}
	return s
}

// TakeMemorySnapshot samples the current process once
func TakeMemorySnapshot() (*MemorySnapshot, error) {
	rm, err := NewResourceMonitor()
	if err != nil {
		return nil, err
	}
	return rm.Snapshot(), nil
}
