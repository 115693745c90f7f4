package pool

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Inspect renders a human-readable status report in the style request
// handlers and operators see from the status tool
func (p *Pool) Inspect() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	now := p.clock.Now()

	fmt.Fprintf(&b, "----------- General information -----------\n")
	fmt.Fprintf(&b, "Max pool size : %d\n", p.max)
	fmt.Fprintf(&b, "App groups    : %d\n", len(p.groups))
	processCount := 0
	for _, g := range p.groups {
		processCount += g.processCount()
	}
	fmt.Fprintf(&b, "Processes     : %d\n", processCount)
	fmt.Fprintf(&b, "Requests in top-level queue : %d\n", len(p.getWaitlist))
	fmt.Fprintf(&b, "\n----------- Application groups -----------\n")

	for _, name := range p.sortedGroupNames() {
		g := p.groups[name]
		fmt.Fprintf(&b, "%s:\n", g.name)
		fmt.Fprintf(&b, "  App root: %s\n", g.options.AppRoot)
		fmt.Fprintf(&b, "  Requests in queue: %d\n", len(g.getWaitlist))
		if g.restartInProgress {
			fmt.Fprintf(&b, "  (restarting, generation %d...)\n", g.generation)
		}
		if g.processesBeingSpawned > 0 {
			fmt.Fprintf(&b, "  (spawning %s...)\n",
				maybePluralize(g.processesBeingSpawned, "new process", "new processes"))
		}
		p.inspectProcessList(&b, now, g.enabled.all())
		p.inspectProcessList(&b, now, g.disabling)
		p.inspectProcessList(&b, now, g.detached)
		b.WriteString("\n")
	}
	return b.String()
}

// inspectProcessList renders one process collection
func (p *Pool) inspectProcessList(b *strings.Builder, now time.Time, procs []*Process) {
	for _, proc := range procs {
		fmt.Fprintf(b, "  * PID: %-6d  Sessions: %-3d  Processed: %-6d  Uptime: %s\n",
			proc.pid, proc.sessionCount, proc.processed,
			formatDuration(now.Sub(proc.spawnEndTime)))
		extras := make([]string, 0, 3)
		if proc.metrics.RSSKB >= 0 {
			extras = append(extras, fmt.Sprintf("Memory: %dM", proc.metrics.RSSKB/1024))
		}
		if proc.metrics.CPUPercent >= 0 {
			extras = append(extras, fmt.Sprintf("CPU: %.0f%%", proc.metrics.CPUPercent))
		}
		if proc.state != ProcessEnabled {
			extras = append(extras, "Status: "+proc.state.String())
		}
		if len(extras) > 0 {
			fmt.Fprintf(b, "      %s\n", strings.Join(extras, "   "))
		}
	}
}

// sortedGroupNames returns group names in stable order. Caller holds the
// pool lock.
func (p *Pool) sortedGroupNames() []string {
	names := make([]string, 0, len(p.groups))
	for name := range p.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// maybePluralize picks the word form for count
func maybePluralize(count int, singular, plural string) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, singular)
	}
	return fmt.Sprintf("%d %s", count, plural)
}

// formatDuration renders a duration as "1h 2m 3s"
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

type xmlInfo struct {
	XMLName         xml.Name   `xml:"info"`
	Version         int        `xml:"version,attr"`
	ProcessCount    int        `xml:"process_count"`
	Max             int        `xml:"max"`
	CapacityUsed    int        `xml:"capacity_used"`
	GetWaitListSize int        `xml:"get_wait_list_size"`
	Groups          []xmlGroup `xml:"supergroups>supergroup"`
}

type xmlGroup struct {
	Name                  string       `xml:"name"`
	State                 string       `xml:"state"`
	Secret                string       `xml:"secret,omitempty"`
	AppRoot               string       `xml:"app_root"`
	Environment           string       `xml:"environment"`
	EnabledProcessCount   int          `xml:"enabled_process_count"`
	DisablingProcessCount int          `xml:"disabling_process_count"`
	DetachedProcessCount  int          `xml:"detached_process_count"`
	ProcessesBeingSpawned int          `xml:"processes_being_spawned"`
	GetWaitListSize       int          `xml:"get_wait_list_size"`
	Generation            int          `xml:"generation"`
	Processes             []xmlProcess `xml:"processes>process"`
}

type xmlProcess struct {
	PID             int    `xml:"pid"`
	Gupid           string `xml:"gupid"`
	Sessions        int    `xml:"sessions"`
	Busyness        int    `xml:"busyness"`
	Processed       int64  `xml:"processed"`
	SpawnStartTime  int64  `xml:"spawn_start_time"`
	LastUsed        int64  `xml:"last_used"`
	Enabled         string `xml:"enabled"`
	StickySessionID uint32 `xml:"sticky_session_id"`
	RSS             int64  `xml:"rss"`
	CPU             int    `xml:"cpu"`
}

// ToXML renders a structured dump of the whole pool. Administrative
// secrets are included only when asked for.
func (p *Pool) ToXML(includeSecrets bool) string {
	p.mu.Lock()

	info := xmlInfo{Version: 3, Max: p.max}
	info.CapacityUsed = p.capacityUsedUnlocked()
	info.GetWaitListSize = len(p.getWaitlist)

	for _, name := range p.sortedGroupNames() {
		g := p.groups[name]
		info.ProcessCount += g.processCount()
		xg := xmlGroup{
			Name:                  g.name,
			State:                 strings.ToUpper(g.lifeStatus.String()),
			AppRoot:               g.options.AppRoot,
			Environment:           g.options.Environment,
			EnabledProcessCount:   g.enabledCount(),
			DisablingProcessCount: len(g.disabling),
			DetachedProcessCount:  len(g.detached),
			ProcessesBeingSpawned: g.processesBeingSpawned,
			GetWaitListSize:       len(g.getWaitlist),
			Generation:            g.generation,
		}
		if includeSecrets {
			xg.Secret = g.secret
		}
		for _, proc := range g.allProcesses() {
			xg.Processes = append(xg.Processes, xmlProcess{
				PID:             proc.pid,
				Gupid:           proc.gupid,
				Sessions:        proc.sessionCount,
				Busyness:        proc.busyness(),
				Processed:       proc.processed,
				SpawnStartTime:  proc.spawnStartTime.Unix(),
				LastUsed:        proc.lastUsed.Unix(),
				Enabled:         proc.state.String(),
				StickySessionID: proc.stickySessionID,
				RSS:             proc.metrics.RSSKB,
				CPU:             int(proc.metrics.CPUPercent),
			})
		}
		info.Groups = append(info.Groups, xg)
	}
	p.mu.Unlock()

	out, err := xml.MarshalIndent(info, "", "  ")
	if err != nil {
		return "<info/>"
	}
	return xml.Header + string(out)
}
