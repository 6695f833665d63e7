// Package store persists health samples and alert records. The health
// monitor treats it as a best-effort collaborator: failures are logged by
// the caller and never stop a monitoring cycle.
package store

import (
	"context"
	"time"
)

// Sample is one CPU observation for a device.
type Sample struct {
	Alias      string    `json:"alias"`
	CPUPct     float64   `json:"cpu_pct"`
	RawPreview string    `json:"raw,omitempty"`
	At         time.Time `json:"at"`
}

// Alert is a raised health condition. ClearedAt is nil while active.
type Alert struct {
	ID        string     `json:"id"`
	Alias     string     `json:"alias"`
	Category  string     `json:"category"`
	Severity  string     `json:"severity"`
	Message   string     `json:"message"`
	Meta      string     `json:"meta,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ClearedAt *time.Time `json:"cleared_at,omitempty"`
}

const (
	CategoryCPU  = "cpu"
	CategoryLoop = "loop"

	SeverityWarn = "warn"
)

// Store is the persistence collaborator for the health monitor.
type Store interface {
	// StoreSample records one observation. The raw preview is truncated
	// by the implementation.
	StoreSample(ctx context.Context, alias string, cpuPct float64, rawPreview string, at time.Time) error
	// FindActiveAlert returns the most recent uncleared alert for the
	// alias and category, or nil when there is none.
	FindActiveAlert(ctx context.Context, alias, category string) (*Alert, error)
	CreateAlert(ctx context.Context, alias, category, severity, message, meta string) (*Alert, error)
	ClearAlert(ctx context.Context, id string, at time.Time) error
	// ActiveAlerts lists all uncleared alerts in a category.
	ActiveAlerts(ctx context.Context, category string) ([]*Alert, error)
}

// RawPreviewLimit bounds the stored slice of raw command output.
const RawPreviewLimit = 5000
