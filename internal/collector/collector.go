package collector

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// CPUTimes holds cumulative CPU time counters in seconds, summed over all cores
type CPUTimes struct {
	Busy float64
	Idle float64
}

// Total returns busy plus idle time
func (t CPUTimes) Total() float64 {
	return t.Busy + t.Idle
}

// MemoryInfo holds OS memory totals in bytes
type MemoryInfo struct {
	Total     uint64
	Available uint64
}

// SystemSampler reads OS-level primitives
type SystemSampler interface {
	// CPUTimes returns the cumulative CPU counters at call time
	CPUTimes(ctx context.Context) (CPUTimes, error)

	Memory(ctx context.Context) (MemoryInfo, error)

	// Uptime returns the OS uptime in seconds
	Uptime(ctx context.Context) (uint64, error)
}

// HostSampler samples the local host via gopsutil
type HostSampler struct{}

func NewHostSampler() *HostSampler {
	return &HostSampler{}
}

func (s *HostSampler) CPUTimes(ctx context.Context) (CPUTimes, error) {
	stats, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return CPUTimes{}, err
	}
	var out CPUTimes
	for _, st := range stats {
		out.Idle += st.Idle + st.Iowait
		out.Busy += st.User + st.Nice + st.System + st.Irq + st.Softirq + st.Steal
	}
	return out, nil
}

func (s *HostSampler) Memory(ctx context.Context) (MemoryInfo, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryInfo{}, err
	}
	return MemoryInfo{Total: vm.Total, Available: vm.Available}, nil
}

func (s *HostSampler) Uptime(ctx context.Context) (uint64, error) {
	return host.UptimeWithContext(ctx)
}
