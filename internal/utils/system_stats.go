package utils

import (
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	log "github.com/sirupsen/logrus"
)

var (
	lastCPUTime        time.Time
	lastCPUUsage       float64
	cpuUsageMutex      sync.Mutex
	cpuUsageSampleRate = 500 * time.Millisecond

	startTime = time.Now()
)

// SystemStats holds current process and host statistics for the health endpoint.
type SystemStats struct {
	NumCPU        int     `json:"num_cpu"`
	GoRoutines    int     `json:"go_routines"`
	CPUUsage      float64 `json:"cpu_usage"`
	MemoryAlloc   uint64  `json:"memory_alloc"`
	MemorySys     uint64  `json:"memory_sys"`
	UptimeSeconds float64 `json:"uptime_seconds"`

	Timestamp time.Time `json:"timestamp"`
}

// GetCPUUsage measures host CPU usage via gopsutil, cached for 500ms so
// frequent health checks stay cheap.
func GetCPUUsage() float64 {
	cpuUsageMutex.Lock()
	defer cpuUsageMutex.Unlock()

	if time.Since(lastCPUTime) < cpuUsageSampleRate && lastCPUTime.Unix() > 0 {
		return lastCPUUsage
	}

	percentages, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil {
		log.Warnf("Failed to measure CPU usage: %v", err)
		return 0.0
	}

	var usage float64
	if len(percentages) > 0 {
		usage = percentages[0]
	}

	lastCPUTime = time.Now()
	lastCPUUsage = usage

	return usage
}

// CollectSystemStats gathers a snapshot of process and host statistics.
func CollectSystemStats() SystemStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return SystemStats{
		NumCPU:        runtime.NumCPU(),
		GoRoutines:    runtime.NumGoroutine(),
		CPUUsage:      GetCPUUsage(),
		MemoryAlloc:   mem.Alloc,
		MemorySys:     mem.Sys,
		UptimeSeconds: time.Since(startTime).Seconds(),
		Timestamp:     time.Now(),
	}
}
