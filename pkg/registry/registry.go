// Package registry holds the device directory: alias-keyed device records
// with free-text resolution and reverse host lookup.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/switchyard-net/switchyard/pkg/util"
)

// ConnectionStrategy selects how the connection engine orders direct and
// jump attempts for a device.
type ConnectionStrategy string

const (
	StrategyDirect    ConnectionStrategy = "direct"
	StrategyJumpFirst ConnectionStrategy = "jump_first"
	StrategyJumpOnly  ConnectionStrategy = "jump_only"
)

// DeviceRecord describes one manageable device. Records are immutable after
// load; a reload swaps the whole map.
type DeviceRecord struct {
	Alias        string   `json:"-"`
	DisplayName  string   `json:"name,omitempty"`
	Host         string   `json:"host"`
	AltHosts     []string `json:"alt_hosts,omitempty"`
	Vendor       string   `json:"vendor,omitempty"`
	DeviceType   string   `json:"device_type,omitempty"`
	Username     string   `json:"username,omitempty"`
	Password     string   `json:"password,omitempty"`
	EnableSecret string   `json:"secret,omitempty"`
	Port         int      `json:"port,omitempty"`

	JumpVia  string             `json:"jump_via,omitempty"`
	Strategy ConnectionStrategy `json:"connection_strategy,omitempty"`

	PromptContains          string   `json:"prompt_contains,omitempty"`
	StrictPrompt            bool     `json:"strict_prompt,omitempty"`
	RelaxPrompt             bool     `json:"relax_prompt,omitempty"`
	IdentityVerifyCommands   []string `json:"identity_verify_commands,omitempty"`
	IdentityAcceptSubstrings []string `json:"identity_accept_substrings,omitempty"`
	AllowHostIdentity        bool     `json:"allow_host_identity,omitempty"`
}

// Hosts returns the ordered candidate addresses: primary first, then the
// fallback alternates.
func (r *DeviceRecord) Hosts() []string {
	hosts := make([]string, 0, 1+len(r.AltHosts))
	if r.Host != "" {
		hosts = append(hosts, r.Host)
	}
	hosts = append(hosts, r.AltHosts...)
	return hosts
}

// HasHost reports whether addr is the record's host or one of its alternates.
func (r *DeviceRecord) HasHost(addr string) bool {
	for _, h := range r.Hosts() {
		if h == addr {
			return true
		}
	}
	return false
}

// EffectiveStrategy normalizes the configured strategy, defaulting to direct.
func (r *DeviceRecord) EffectiveStrategy() ConnectionStrategy {
	switch r.Strategy {
	case StrategyJumpFirst, StrategyJumpOnly:
		return r.Strategy
	default:
		return StrategyDirect
	}
}

// VendorKey normalizes the vendor/device-type field into a command-registry
// key. Unknown vendors fall back to cisco command syntax.
func (r *DeviceRecord) VendorKey() string {
	v := strings.ToLower(r.Vendor)
	if v == "" {
		v = strings.ToLower(r.DeviceType)
	}
	switch {
	case strings.Contains(v, "cisco"), strings.Contains(v, "ios"):
		return "cisco"
	case strings.Contains(v, "aruba"), strings.Contains(v, "aoscx"):
		return "aruba"
	case v != "":
		return v
	default:
		return "cisco"
	}
}

// Site describes a physical location for fuzzy keyword resolution. Keywords
// include abbreviations and common misspellings of the site name.
type Site struct {
	Name      string   `json:"name"`
	Prefix    string   `json:"prefix"`
	Preferred string   `json:"preferred,omitempty"`
	Keywords  []string `json:"keywords"`
}

// registryFile is the on-disk shape. A flat alias->record object (the legacy
// layout) is also accepted.
type registryFile struct {
	Devices map[string]*DeviceRecord `json:"devices"`
	Sites   []Site                   `json:"sites,omitempty"`
	Phrases map[string]string        `json:"phrases,omitempty"`
}

// Registry is the in-memory device directory. Read-only after load except
// for explicit Reload, which swaps the state under the lock.
type Registry struct {
	path      string
	hotReload bool

	mu      sync.RWMutex
	devices map[string]*DeviceRecord
	sites   []Site
	phrases []phrasePattern
}

// New loads the registry from path. hotReload re-reads the backing file
// before each resolution.
func New(path string, hotReload bool) (*Registry, error) {
	r := &Registry{path: path, hotReload: hotReload}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewFromRecords builds a registry directly from records, for callers that
// manage their own loading (and for tests).
func NewFromRecords(devices map[string]*DeviceRecord, sites []Site) *Registry {
	r := &Registry{}
	r.install(devices, sites, nil)
	return r
}

// Reload re-reads the backing file. On parse failure the previous state is
// kept and the error returned.
func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("reading device registry %s: %w", r.path, err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing device registry %s: %w", r.path, err)
	}

	devices := file.Devices
	if devices == nil {
		// Legacy layout: the whole document is the alias map.
		if err := json.Unmarshal(data, &devices); err != nil {
			return fmt.Errorf("parsing device registry %s: %w", r.path, err)
		}
	}

	r.install(devices, file.Sites, file.Phrases)
	return nil
}

func (r *Registry) install(devices map[string]*DeviceRecord, sites []Site, phrases map[string]string) {
	normalized := make(map[string]*DeviceRecord, len(devices))
	for alias, rec := range devices {
		if rec == nil {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(alias))
		rec.Alias = key
		normalized[key] = rec
	}

	for i := range sites {
		sites[i].Prefix = strings.ToUpper(sites[i].Prefix)
		sites[i].Preferred = strings.ToUpper(sites[i].Preferred)
	}

	compiled := compilePhrases(phrases)

	r.mu.Lock()
	r.devices = normalized
	r.sites = sites
	r.phrases = compiled
	r.mu.Unlock()
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Aliases returns all aliases in sorted order.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	aliases := make([]string, 0, len(r.devices))
	for a := range r.devices {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	return aliases
}

// Get returns the record for an exact alias (case-insensitive).
func (r *Registry) Get(alias string) (*DeviceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.devices[strings.ToUpper(strings.TrimSpace(alias))]
	return rec, ok
}

// Each calls fn for every record, in sorted alias order.
func (r *Registry) Each(fn func(alias string, rec *DeviceRecord)) {
	r.mu.RLock()
	records := make(map[string]*DeviceRecord, len(r.devices))
	for a, rec := range r.devices {
		records[a] = rec
	}
	r.mu.RUnlock()

	aliases := make([]string, 0, len(records))
	for a := range records {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	for _, a := range aliases {
		fn(a, records[a])
	}
}

// FindByHost reverse-looks-up a record by address, checking both the primary
// host and alternates.
func (r *Registry) FindByHost(host string) (string, *DeviceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for alias, rec := range r.devices {
		if rec.HasHost(host) {
			return alias, rec, true
		}
	}
	return "", nil, false
}

// maybeReload refreshes from disk when hot reload is on. A failed reload is
// logged and the previous state used; resolution is never blocked by a bad
// file write.
func (r *Registry) maybeReload() {
	if !r.hotReload || r.path == "" {
		return
	}
	if err := r.Reload(); err != nil {
		util.Warnf("device registry hot reload failed: %v", err)
	}
}
