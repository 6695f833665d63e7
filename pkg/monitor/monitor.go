package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/switchyard-net/switchyard/pkg/config"
	"github.com/switchyard-net/switchyard/pkg/notify"
	"github.com/switchyard-net/switchyard/pkg/registry"
	"github.com/switchyard-net/switchyard/pkg/store"
	"github.com/switchyard-net/switchyard/pkg/util"
)

// failedCPU is the sentinel sample recorded when a poll cannot reach the
// device at all.
const failedCPU = -1.0

// maxCyclesPerRun caps how many loop alerts one cycle can raise.
const maxCyclesPerRun = 5

// Executor runs a batch of commands over one connection to a device.
// Satisfied by *connect.Engine.
type Executor interface {
	ExecuteBatch(ctx context.Context, rec *registry.DeviceRecord, commands []string) ([]string, error)
}

// Monitor owns all hysteresis counters and the per-cycle neighbor graph on
// its single control goroutine; workers only return poll results.
type Monitor struct {
	cfg      *config.Config
	reg      *registry.Registry
	executor Executor
	store    store.Store
	notifier notify.Notifier
	commands Commands

	highCounts     map[string]int
	lowCounts      map[string]int
	lastCPUAlertAt map[string]time.Time
	lastLoopSigAt  map[string]time.Time

	now func() time.Time
}

func New(cfg *config.Config, reg *registry.Registry, executor Executor, st store.Store, notifier notify.Notifier, commands Commands) *Monitor {
	if commands == nil {
		commands = DefaultCommands()
	}
	return &Monitor{
		cfg:            cfg,
		reg:            reg,
		executor:       executor,
		store:          st,
		notifier:       notifier,
		commands:       commands,
		highCounts:     map[string]int{},
		lowCounts:      map[string]int{},
		lastCPUAlertAt: map[string]time.Time{},
		lastLoopSigAt:  map[string]time.Time{},
		now:            time.Now,
	}
}

// Run executes cycles until the context is cancelled, sleeping the
// configured interval between them. Cycles never overlap.
func (m *Monitor) Run(ctx context.Context) error {
	util.WithFields(map[string]interface{}{
		"devices":   m.reg.Len(),
		"interval":  m.cfg.PollInterval.String(),
		"threshold": m.cfg.CPUAlertThreshold,
		"workers":   m.cfg.MaxWorkers,
	}).Info("health monitor started")

	for {
		m.RunCycle(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.PollInterval):
		}
	}
}

type pollResult struct {
	alias     string
	cpu       float64
	raw       string
	neighbors []string
}

// RunCycle polls every device with a bounded worker pool, drains all
// results, then applies sample persistence, hysteresis, and loop detection
// from the complete snapshot.
func (m *Monitor) RunCycle(ctx context.Context) {
	type entry struct {
		alias string
		rec   *registry.DeviceRecord
	}
	var entries []entry
	m.reg.Each(func(alias string, rec *registry.DeviceRecord) {
		entries = append(entries, entry{alias, rec})
	})

	workers := m.cfg.MaxWorkers
	if workers <= 0 {
		workers = 4
	}
	sem := make(chan struct{}, workers)
	results := make(chan pollResult, len(entries))
	var wg sync.WaitGroup

	for _, e := range entries {
		wg.Add(1)
		go func(alias string, rec *registry.DeviceRecord) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- m.poll(ctx, alias, rec)
		}(e.alias, e.rec)
	}
	wg.Wait()
	close(results)

	graph := Graph{}
	for res := range results {
		m.persistSample(ctx, res)
		m.applyHysteresis(ctx, res)
		for _, n := range res.neighbors {
			graph.AddEdge(res.alias, n)
		}
	}

	m.detectAndAlertLoops(ctx, graph)
}

// poll gathers one device's CPU and neighbor data over a single
// connection. Failures never raise: they produce the sentinel sample and
// an empty neighbor set.
func (m *Monitor) poll(ctx context.Context, alias string, rec *registry.DeviceRecord) pollResult {
	cmds := m.commands.ForVendor(rec.VendorKey())

	outs, err := m.executor.ExecuteBatch(ctx, rec, []string{cmds.CPU, cmds.Neighbors})
	if err != nil {
		perr := &util.PollError{Alias: alias, Err: err}
		util.WithDevice(alias).Warnf("poll failed: %v", perr)
		return pollResult{alias: alias, cpu: failedCPU, raw: "ERR: " + err.Error()}
	}

	cpu, ok := ParseCPU(rec.VendorKey(), outs[0])
	if !ok {
		cpu = 0
	}

	var neighbors []string
	if outs[1] != "" {
		neighbors = MapToKnownAliases(ParseNeighborNames(outs[1]), m.reg)
	}

	return pollResult{
		alias:     alias,
		cpu:       cpu,
		raw:       util.Truncate(outs[0], store.RawPreviewLimit),
		neighbors: neighbors,
	}
}

func (m *Monitor) persistSample(ctx context.Context, res pollResult) {
	if res.cpu < 0 && res.raw == "" {
		return
	}
	cpu := res.cpu
	if cpu < 0 {
		cpu = 0
	}
	if err := m.store.StoreSample(ctx, res.alias, cpu, res.raw, m.now()); err != nil {
		util.WithDevice(res.alias).Warnf("storing sample: %v", err)
	}
}

// applyHysteresis updates the per-alias counters and raises or clears CPU
// alerts. A failed poll counts as a low observation but can never clear an
// active alert, since the clear condition requires a real in-band sample.
func (m *Monitor) applyHysteresis(ctx context.Context, res pollResult) {
	alias, cpu := res.alias, res.cpu
	switch {
	case cpu < 0:
		m.lowCounts[alias]++
		m.highCounts[alias] = 0
	case cpu >= m.cfg.CPUAlertThreshold:
		m.highCounts[alias]++
		m.lowCounts[alias] = 0
	default:
		m.lowCounts[alias]++
		m.highCounts[alias] = 0
	}

	if m.highCounts[alias] >= m.cfg.CPUBreachConsecutive && cpu >= m.cfg.CPUAlertThreshold {
		m.raiseCPUAlert(ctx, alias, cpu)
	}

	if m.lowCounts[alias] >= m.cfg.CPUClearConsecutive && cpu >= 0 && cpu <= m.cfg.CPUClearThreshold {
		m.clearCPUAlert(ctx, alias, cpu)
	}
}

func (m *Monitor) raiseCPUAlert(ctx context.Context, alias string, cpu float64) {
	now := m.now()
	active, err := m.store.FindActiveAlert(ctx, alias, store.CategoryCPU)
	if err != nil {
		util.WithDevice(alias).Warnf("looking up active cpu alert: %v", err)
		return
	}

	lastAt, hasLast := m.lastCPUAlertAt[alias]
	cooled := (hasLast && now.Sub(lastAt) >= m.cfg.AlertCooldown) ||
		(active != nil && now.Sub(active.CreatedAt) >= m.cfg.AlertCooldown)
	if active != nil && !cooled {
		return
	}

	msg := fmt.Sprintf("CPU %.1f%% on %s (>= %.1f%%)", cpu, alias, m.cfg.CPUAlertThreshold)
	if _, err := m.store.CreateAlert(ctx, alias, store.CategoryCPU, store.SeverityWarn, msg, ""); err != nil {
		util.WithDevice(alias).Warnf("creating cpu alert: %v", err)
	} else {
		util.WithFields(map[string]interface{}{
			"device":  alias,
			"cpu_pct": cpu,
			"streak":  m.highCounts[alias],
		}).Warn("cpu alert raised")
	}
	m.lastCPUAlertAt[alias] = now

	if err := m.notifier.Notify("[switchyard] CPU spike on "+alias, msg); err != nil {
		util.WithDevice(alias).Debugf("alert notification failed: %v", err)
	}
}

func (m *Monitor) clearCPUAlert(ctx context.Context, alias string, cpu float64) {
	active, err := m.store.FindActiveAlert(ctx, alias, store.CategoryCPU)
	if err != nil || active == nil {
		return
	}
	if err := m.store.ClearAlert(ctx, active.ID, m.now()); err != nil {
		util.WithDevice(alias).Warnf("clearing cpu alert: %v", err)
		return
	}
	util.WithFields(map[string]interface{}{
		"device":  alias,
		"cpu_pct": cpu,
	}).Info("cpu alert cleared")

	if m.cfg.EmailOnClear {
		msg := fmt.Sprintf("CPU back to %.1f%% on %s (<= %.1f%%)", cpu, alias, m.cfg.CPUClearThreshold)
		if err := m.notifier.Notify("[switchyard] CPU cleared on "+alias, msg); err != nil {
			util.WithDevice(alias).Debugf("clear notification failed: %v", err)
		}
	}
}

// detectAndAlertLoops runs cycle detection over this cycle's graph. Alerts
// dedupe on the direction-independent signature within the loop cooldown.
// When a meaningful graph produces zero cycles, all active loop alerts are
// cleared; an empty graph is insufficient evidence and clears nothing.
func (m *Monitor) detectAndAlertLoops(ctx context.Context, graph Graph) {
	if len(graph) < 3 {
		return
	}

	cycles := DetectLoops(graph)
	now := m.now()

	if len(cycles) == 0 {
		m.clearLoopAlerts(ctx, now)
		return
	}
	if len(cycles) > maxCyclesPerRun {
		cycles = cycles[:maxCyclesPerRun]
	}

	for _, c := range cycles {
		sig := c.Signature()
		if lastAt, ok := m.lastLoopSigAt[sig]; ok && now.Sub(lastAt) < m.cfg.LoopAlertCooldown {
			continue
		}
		msg := "Potential loop via: " + strings.Join(c.Path, " -> ")
		meta := strings.Join(c.Path, ",")
		if _, err := m.store.CreateAlert(ctx, c.Path[0], store.CategoryLoop, store.SeverityWarn, msg, meta); err != nil {
			util.WithDevice(c.Path[0]).Warnf("creating loop alert: %v", err)
		} else {
			util.WithFields(map[string]interface{}{
				"device":    c.Path[0],
				"path":      c.Path,
				"signature": sig,
			}).Warn("loop alert raised")
		}
		m.lastLoopSigAt[sig] = now

		if err := m.notifier.Notify("[switchyard] Possible loop detected", msg); err != nil {
			util.WithDevice(c.Path[0]).Debugf("loop notification failed: %v", err)
		}
	}
}

func (m *Monitor) clearLoopAlerts(ctx context.Context, now time.Time) {
	actives, err := m.store.ActiveAlerts(ctx, store.CategoryLoop)
	if err != nil {
		util.Warnf("listing active loop alerts: %v", err)
		return
	}
	cleared := 0
	for _, a := range actives {
		if err := m.store.ClearAlert(ctx, a.ID, now); err != nil {
			util.Warnf("clearing loop alert %s: %v", a.ID, err)
			continue
		}
		cleared++
	}
	if cleared > 0 {
		util.WithField("cleared", cleared).Info("loop alerts auto-cleared")
	}
}
