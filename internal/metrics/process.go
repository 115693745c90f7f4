package metrics

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ProcessMetrics holds one collection sample for a single OS process
type ProcessMetrics struct {
	// PID is the sampled process id
	PID int
	// RSSKB is resident set size in kilobytes; negative when unknown
	RSSKB int64
	// CPUPercent is the ps-reported CPU usage; negative when unknown
	CPUPercent float64
	// Alive reports whether the process still exists
	Alive bool
}

// ProcessMetricMap maps PID to its latest sample
type ProcessMetricMap map[int]ProcessMetrics

// ProcessAlive polls the OS for process existence with a zero signal
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	// EPERM means the process exists but belongs to someone else.
	return err == nil || err == unix.EPERM
}

// CollectProcessMetrics samples RSS and CPU for each pid. Collection
// failures for individual processes degrade to an Alive-only sample; they
// never fail the whole sweep.
func CollectProcessMetrics(pids []int) ProcessMetricMap {
	result := make(ProcessMetricMap, len(pids))
	for _, pid := range pids {
		m := ProcessMetrics{PID: pid, RSSKB: -1, CPUPercent: -1, Alive: ProcessAlive(pid)}
		if !m.Alive {
			result[pid] = m
			continue
		}
		if rss, err := readRSSFromProcfs(pid); err == nil {
			m.RSSKB = rss
		}
		if rss, cpu, err := readPsMetrics(pid); err == nil {
			m.CPUPercent = cpu
			if m.RSSKB < 0 {
				m.RSSKB = rss
			}
		}
		result[pid] = m
	}
	return result
}

// readRSSFromProcfs reads resident pages from /proc/<pid>/statm
func readRSSFromProcfs(pid int) (int64, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/statm", pid))
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, fmt.Errorf("unexpected statm format for pid %d", pid)
	}
	pages, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, err
	}
	pageKB := int64(os.Getpagesize() / 1024)
	if pageKB == 0 {
		pageKB = 4
	}
	return pages * pageKB, nil
}

// readPsMetrics shells out to ps for rss and pcpu. This is the fallback
// path on hosts without procfs and the only source for CPU percentage.
func readPsMetrics(pid int) (rssKB int64, cpuPercent float64, err error) {
	out, err := exec.Command("ps", "-o", "rss=,pcpu=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(string(out))
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("unexpected ps output for pid %d: %q", pid, string(out))
	}
	rssKB, err = strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err = strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, err
	}
	return rssKB, cpuPercent, nil
}
