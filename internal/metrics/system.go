package metrics

import (
	"os"
	"strconv"
	"strings"

	"github.com/gravitational/trace"
)

// SystemMetrics holds one host-wide collection sample
type SystemMetrics struct {
	Load1      float64
	Load5      float64
	Load15     float64
	TotalRAMKB int64
	FreeRAMKB  int64
}

// CollectSystemMetrics samples load average and memory from procfs
func CollectSystemMetrics() (SystemMetrics, error) {
	var sm SystemMetrics

	if err := readLoadAvg(&sm); err != nil {
		return sm, trace.Wrap(err)
	}
	if err := readMemInfo(&sm); err != nil {
		return sm, trace.Wrap(err)
	}
	return sm, nil
}

func readLoadAvg(sm *SystemMetrics) error {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return trace.BadParameter("unexpected /proc/loadavg format: %q", string(data))
	}
	if sm.Load1, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return trace.Wrap(err)
	}
	if sm.Load5, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return trace.Wrap(err)
	}
	if sm.Load15, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return trace.Wrap(err)
	}
	return nil
}

func readMemInfo(sm *SystemMetrics) error {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			sm.TotalRAMKB, _ = strconv.ParseInt(fields[1], 10, 64)
		case "MemAvailable:":
			sm.FreeRAMKB, _ = strconv.ParseInt(fields[1], 10, 64)
		}
	}
	if sm.TotalRAMKB == 0 {
		return trace.BadParameter("MemTotal not found in /proc/meminfo")
	}
	return nil
}
