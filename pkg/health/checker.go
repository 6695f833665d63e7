// Package health provides preflight checks for the monitoring daemon:
// quick verification that the registry, persistence, notification, and
// command configuration are usable before the poll loop starts.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/switchyard-net/switchyard/pkg/config"
	"github.com/switchyard-net/switchyard/pkg/monitor"
	"github.com/switchyard-net/switchyard/pkg/registry"
)

// Status of one check.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Result is the outcome of one check.
type Result struct {
	Check    string        `json:"check"`
	Status   Status        `json:"status"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

// Report aggregates all check results; Overall is worst-wins.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	Overall   Status    `json:"overall"`
	Results   []Result  `json:"results"`
}

// Check is one preflight verification.
type Check interface {
	Name() string
	Run(ctx context.Context) Result
}

// Checker runs a fixed list of checks.
type Checker struct {
	checks []Check
}

func NewChecker(checks ...Check) *Checker {
	return &Checker{checks: checks}
}

// Run executes every check and aggregates the worst status.
func (c *Checker) Run(ctx context.Context) *Report {
	report := &Report{
		Timestamp: time.Now().UTC(),
		Overall:   StatusOK,
		Results:   make([]Result, 0, len(c.checks)),
	}
	for _, check := range c.checks {
		start := time.Now()
		result := check.Run(ctx)
		result.Check = check.Name()
		result.Duration = time.Since(start)
		report.Results = append(report.Results, result)

		if result.Status == StatusCritical {
			report.Overall = StatusCritical
		} else if result.Status == StatusWarning && report.Overall == StatusOK {
			report.Overall = StatusWarning
		}
	}
	return report
}

// RegistryCheck verifies the device registry loads and is not degenerate.
type RegistryCheck struct {
	Path string
}

func (c *RegistryCheck) Name() string { return "registry" }

func (c *RegistryCheck) Run(ctx context.Context) Result {
	reg, err := registry.New(c.Path, false)
	if err != nil {
		return Result{Status: StatusCritical, Message: fmt.Sprintf("load failed: %v", err)}
	}
	if reg.Len() == 0 {
		return Result{Status: StatusCritical, Message: "registry contains no devices"}
	}

	hosts := map[string]string{}
	dupes := 0
	reg.Each(func(alias string, rec *registry.DeviceRecord) {
		for _, h := range rec.Hosts() {
			if other, ok := hosts[h]; ok && other != alias {
				dupes++
			}
			hosts[h] = alias
		}
	})
	if dupes > 0 {
		return Result{Status: StatusWarning, Message: fmt.Sprintf("%d devices, %d duplicate host entries", reg.Len(), dupes)}
	}
	return Result{Status: StatusOK, Message: fmt.Sprintf("%d devices", reg.Len())}
}

// CommandsCheck verifies the vendor command registry parses.
type CommandsCheck struct {
	Path string
}

func (c *CommandsCheck) Name() string { return "commands" }

func (c *CommandsCheck) Run(ctx context.Context) Result {
	cmds, err := monitor.LoadCommands(c.Path)
	if err != nil {
		return Result{Status: StatusWarning, Message: fmt.Sprintf("using defaults: %v", err)}
	}
	return Result{Status: StatusOK, Message: fmt.Sprintf("%d vendor command sets", len(cmds))}
}

// Pinger is the slice of the store the StoreCheck needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreCheck verifies the persistence backend answers.
type StoreCheck struct {
	Pinger Pinger
}

func (c *StoreCheck) Name() string { return "store" }

func (c *StoreCheck) Run(ctx context.Context) Result {
	if c.Pinger == nil {
		return Result{Status: StatusWarning, Message: "no persistent store configured, samples kept in memory"}
	}
	if err := c.Pinger.Ping(ctx); err != nil {
		return Result{Status: StatusCritical, Message: err.Error()}
	}
	return Result{Status: StatusOK, Message: "reachable"}
}

// NotifyCheck verifies the alert notification configuration is coherent.
type NotifyCheck struct {
	Config *config.Config
}

func (c *NotifyCheck) Name() string { return "notify" }

func (c *NotifyCheck) Run(ctx context.Context) Result {
	cfg := c.Config
	if len(cfg.EmailTo) == 0 {
		return Result{Status: StatusWarning, Message: "no recipients configured, alerts are log-only"}
	}
	if cfg.SMTPHost == "" {
		return Result{Status: StatusCritical, Message: "recipients configured but no smtp host"}
	}
	return Result{Status: StatusOK, Message: fmt.Sprintf("%d recipients via %s", len(cfg.EmailTo), cfg.SMTPHost)}
}
