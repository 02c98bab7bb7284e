package monitoring

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type StorageUsage struct {
	Path        string  `json:"path"`
	TotalGB     float64 `json:"totalGb"`
	UsedGB      float64 `json:"usedGb"`
	UsedPercent float64 `json:"usedPercent"`
}

type ResourceUsage struct {
	CPUPercent    float64      `json:"cpu"`
	MemoryUsedMB  float64      `json:"memoryUsedMb"`
	MemoryTotalMB float64      `json:"memoryTotalMb"`
	MemoryPercent float64      `json:"memoryPercent"`
	NumGoroutines int          `json:"goroutines"`
	Storage       StorageUsage `json:"storage"`
}

// GetCurrentResourceUsage samples process CPU/memory plus disk usage of the
// HLS output root
func GetCurrentResourceUsage(hlsRoot string) (ResourceUsage, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("error getting process: %v", err)
	}
	usage, err := getResourceUsage(proc)
	if err != nil {
		return usage, err
	}

	if du, err := disk.Usage(hlsRoot); err == nil {
		usage.Storage = StorageUsage{
			Path:        hlsRoot,
			TotalGB:     float64(du.Total) / 1024 / 1024 / 1024,
			UsedGB:      float64(du.Used) / 1024 / 1024 / 1024,
			UsedPercent: du.UsedPercent,
		}
	}
	return usage, nil
}

// StartMonitoring logs resource usage on a fixed interval
func StartMonitoring(interval time.Duration, hlsRoot string) {
	go func() {
		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			log.Printf("Error getting process: %v", err)
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			usage, err := getResourceUsage(proc)
			if err != nil {
				log.Printf("Error getting resource usage: %v", err)
				continue
			}

			storagePct := 0.0
			if du, err := disk.Usage(hlsRoot); err == nil {
				storagePct = du.UsedPercent
			}

			log.Printf("Resource Usage - CPU: %.2f%%, Memory: %.2f/%.2f MB (%.2f%%), Goroutines: %d, HLS disk: %.1f%%",
				usage.CPUPercent,
				usage.MemoryUsedMB,
				usage.MemoryTotalMB,
				usage.MemoryPercent,
				usage.NumGoroutines,
				storagePct)
		}
	}()
}

func getResourceUsage(proc *process.Process) (ResourceUsage, error) {
	var usage ResourceUsage

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		return usage, fmt.Errorf("error getting CPU usage: %v", err)
	}
	usage.CPUPercent = cpuPercent

	virtualMem, err := mem.VirtualMemory()
	if err != nil {
		return usage, fmt.Errorf("error getting memory info: %v", err)
	}

	procMem, err := proc.MemoryInfo()
	if err != nil {
		return usage, fmt.Errorf("error getting process memory: %v", err)
	}

	usage.MemoryUsedMB = float64(procMem.RSS) / 1024 / 1024
	usage.MemoryTotalMB = float64(virtualMem.Total) / 1024 / 1024
	usage.MemoryPercent = float64(procMem.RSS) / float64(virtualMem.Total) * 100
	usage.NumGoroutines = runtime.NumGoroutine()

	return usage, nil
}
