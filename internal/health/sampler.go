package health

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/hearken/internal/errors"
)

// Sampler reads system resource usage.
type Sampler interface {
	Sample(ctx context.Context) (Resources, error)
}

// SystemSampler samples the host with gopsutil. DiskPath selects the
// filesystem whose usage is reported.
type SystemSampler struct {
	DiskPath string
}

// Sample returns CPU usage since the previous call, memory usage and the
// disk usage of DiskPath. Partial results are returned with the first error.
func (s SystemSampler) Sample(ctx context.Context) (Resources, error) {
	var res Resources
	var errs []error

	if cpuPercent, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		errs = append(errs, err)
	} else if len(cpuPercent) > 0 {
		res.CPUPercent = cpuPercent[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, err)
	} else {
		res.MemoryPercent = vm.UsedPercent
	}

	path := s.DiskPath
	if path == "" {
		path = "."
	}
	if usage, err := disk.UsageWithContext(ctx, path); err != nil {
		errs = append(errs, err)
	} else {
		res.DiskPercent = usage.UsedPercent
	}

	if len(errs) > 0 {
		return res, errors.New(errs[0]).
			Component("health").
			Category(errors.CategorySystem).
			Context("operation", "sample_resources").
			Context("failures", len(errs)).
			Build()
	}
	return res, nil
}
