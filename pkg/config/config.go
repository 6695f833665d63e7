// Package config loads the switchyard configuration surface from the
// environment, with an optional config file for overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/switchyard-net/switchyard/pkg/util"
)

// Transport preference values for the connection strategy engine.
const (
	PreferSSH    = "ssh-preferred"
	PreferTelnet = "telnet-preferred"
	SSHOnly      = "ssh-only"
)

// Config is the explicit configuration object passed to components at
// startup. There are no ambient globals; construct once in main.
type Config struct {
	// Device registry
	DevicesPath string
	HotReload   bool

	// Device credential defaults, used when a record omits them
	DefaultUsername string
	DefaultPassword string
	DefaultSecret   string
	DefaultPort     int

	// Connection strategy
	TransportPreference string
	TelnetDisabled      bool
	LegacySSHEnabled    bool
	LegacyCiphers       []string
	LegacyKexAlgos      []string
	LegacyMACs          []string
	LegacyHostKeyAlgos  []string
	ConnectTimeout      time.Duration
	AuthTimeout         time.Duration
	BannerTimeout       time.Duration
	CommandTimeout      time.Duration
	PrecheckTimeout     time.Duration
	PingPrecheck        bool
	SimulateNetwork     bool
	SimulateFallback    bool
	DebugDiagnostics    bool
	ForcedDevice        string
	BlockedHosts        []string
	BlockedAliases      []string

	// Jump identity verification policy lists. Relax is checked before
	// strict; an alias present in both is treated as relaxed.
	RelaxPromptAliases  []string
	StrictPromptAliases []string
	StrictByDefault     bool

	// Health monitor
	PollInterval         time.Duration
	CPUAlertThreshold    float64
	CPUClearThreshold    float64
	CPUBreachConsecutive int
	CPUClearConsecutive  int
	AlertCooldown        time.Duration
	LoopAlertCooldown    time.Duration
	MaxWorkers           int
	CommandRegistryPath  string

	// Audit trail (empty disables auditing)
	AuditLogPath string

	// Persistence (Redis)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SampleHistory int

	// Notification
	EmailTo      []string
	EmailFrom    string
	EmailOnClear bool
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

// envKeys maps viper keys to the environment variable names used by the
// deployment tooling. Durations configured in seconds/minutes keep their
// historical unit-suffixed names.
var envKeys = map[string]string{
	"devices_path":           "DEVICES_PATH",
	"devices_hot_reload":     "DEVICES_HOT_RELOAD",
	"device_username":        "DEVICE_USERNAME",
	"device_password":        "DEVICE_PASSWORD",
	"device_secret":          "DEVICE_SECRET",
	"device_port":            "DEVICE_PORT",
	"transport_preference":   "TRANSPORT_PREFERENCE",
	"telnet_disabled":        "TELNET_DISABLED",
	"legacy_ssh_enabled":     "LEGACY_SSH_ENABLED",
	"legacy_ciphers":         "LEGACY_CIPHERS",
	"legacy_kex":             "LEGACY_KEX",
	"legacy_macs":            "LEGACY_MACS",
	"legacy_hostkey_algos":   "LEGACY_HOSTKEY_ALGOS",
	"conn_timeout_sec":       "DEVICE_CONN_TIMEOUT",
	"auth_timeout_sec":       "DEVICE_AUTH_TIMEOUT",
	"banner_timeout_sec":     "DEVICE_BANNER_TIMEOUT",
	"command_timeout_sec":    "NETWORK_COMMAND_TIMEOUT",
	"precheck_timeout_sec":   "NETWORK_PRECHECK_TIMEOUT",
	"ping_precheck":          "PING_PRECHECK",
	"simulate_network":       "SIMULATE_NETWORK",
	"simulate_fallback":      "SIMULATE_FALLBACK",
	"network_debug":          "NETWORK_DEBUG",
	"forced_device":          "FORCED_DEVICE",
	"blocked_hosts":          "BLOCKED_HOSTS",
	"blocked_aliases":        "BLOCKED_ALIASES",
	"relax_prompt_aliases":   "RELAX_PROMPT_ALIASES",
	"strict_prompt_aliases":  "STRICT_PROMPT_ALIASES",
	"strict_by_default":      "STRICT_PROMPT_DEFAULT",
	"poll_interval_sec":      "HEALTH_POLL_INTERVAL_SEC",
	"cpu_threshold":          "CPU_ALERT_THRESHOLD",
	"cpu_clear_threshold":    "CPU_CLEAR_THRESHOLD",
	"cpu_breach_consecutive": "CPU_BREACH_CONSECUTIVE",
	"cpu_clear_consecutive":  "CPU_CLEAR_CONSECUTIVE",
	"cooldown_minutes":       "ALERT_COOLDOWN_MINUTES",
	"loop_cooldown_minutes":  "LOOP_ALERT_COOLDOWN_MINUTES",
	"max_workers":            "HEALTH_MAX_WORKERS",
	"command_registry_path":  "COMMAND_REGISTRY_PATH",
	"audit_log_path":         "AUDIT_LOG_PATH",
	"redis_addr":             "REDIS_ADDR",
	"redis_password":         "REDIS_PASSWORD",
	"redis_db":               "REDIS_DB",
	"sample_history":         "HEALTH_SAMPLE_HISTORY",
	"email_to":               "ALERT_EMAIL_TO",
	"email_from":             "ALERT_EMAIL_FROM",
	"email_on_clear":         "ALERT_EMAIL_ON_CLEAR",
	"smtp_host":              "SMTP_HOST",
	"smtp_port":              "SMTP_PORT",
	"smtp_username":          "SMTP_USERNAME",
	"smtp_password":          "SMTP_PASSWORD",
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("devices_path", "devices.json")
	v.SetDefault("devices_hot_reload", false)
	v.SetDefault("device_username", "admin")
	v.SetDefault("device_password", "admin")
	v.SetDefault("device_secret", "")
	v.SetDefault("device_port", 22)

	v.SetDefault("transport_preference", PreferSSH)
	v.SetDefault("telnet_disabled", false)
	v.SetDefault("legacy_ssh_enabled", true)
	v.SetDefault("legacy_ciphers", "aes128-cbc,3des-cbc,aes192-cbc,aes256-cbc")
	v.SetDefault("legacy_kex", "diffie-hellman-group1-sha1,diffie-hellman-group14-sha1,diffie-hellman-group-exchange-sha1")
	v.SetDefault("legacy_macs", "hmac-sha1,hmac-sha1-96")
	v.SetDefault("legacy_hostkey_algos", "ssh-rsa,ssh-dss")
	v.SetDefault("conn_timeout_sec", 8)
	v.SetDefault("auth_timeout_sec", 8)
	v.SetDefault("banner_timeout_sec", 5)
	v.SetDefault("command_timeout_sec", 8)
	v.SetDefault("precheck_timeout_sec", 2)
	v.SetDefault("ping_precheck", false)
	v.SetDefault("simulate_network", false)
	v.SetDefault("simulate_fallback", false)
	v.SetDefault("network_debug", false)
	v.SetDefault("forced_device", "")
	v.SetDefault("blocked_hosts", "")
	v.SetDefault("blocked_aliases", "")
	v.SetDefault("relax_prompt_aliases", "")
	v.SetDefault("strict_prompt_aliases", "")
	v.SetDefault("strict_by_default", true)

	v.SetDefault("poll_interval_sec", 60)
	v.SetDefault("cpu_threshold", 80)
	v.SetDefault("cpu_clear_threshold", 60)
	v.SetDefault("cpu_breach_consecutive", 2)
	v.SetDefault("cpu_clear_consecutive", 2)
	v.SetDefault("cooldown_minutes", 15)
	v.SetDefault("loop_cooldown_minutes", 30)
	v.SetDefault("max_workers", 4)
	v.SetDefault("command_registry_path", "")
	v.SetDefault("audit_log_path", "")

	v.SetDefault("redis_addr", "127.0.0.1:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("sample_history", 1000)

	v.SetDefault("email_to", "")
	v.SetDefault("email_from", "alerts@netops.local")
	v.SetDefault("email_on_clear", true)
	v.SetDefault("smtp_host", "")
	v.SetDefault("smtp_port", 25)
	v.SetDefault("smtp_username", "")
	v.SetDefault("smtp_password", "")

	for key, env := range envKeys {
		v.BindEnv(key, env) //nolint:errcheck // only errors on empty key
	}

	return v
}

// Load builds a Config from the environment. An optional file path may be
// supplied to layer file values under the environment (env always wins).
func Load(file string) (*Config, error) {
	v := newViper()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		DevicesPath:     v.GetString("devices_path"),
		HotReload:       v.GetBool("devices_hot_reload"),
		DefaultUsername: v.GetString("device_username"),
		DefaultPassword: v.GetString("device_password"),
		DefaultSecret:   v.GetString("device_secret"),
		DefaultPort:     v.GetInt("device_port"),

		TransportPreference: strings.ToLower(v.GetString("transport_preference")),
		TelnetDisabled:      v.GetBool("telnet_disabled"),
		LegacySSHEnabled:    v.GetBool("legacy_ssh_enabled"),
		LegacyCiphers:       util.SplitCommaSeparated(v.GetString("legacy_ciphers")),
		LegacyKexAlgos:      util.SplitCommaSeparated(v.GetString("legacy_kex")),
		LegacyMACs:          util.SplitCommaSeparated(v.GetString("legacy_macs")),
		LegacyHostKeyAlgos:  util.SplitCommaSeparated(v.GetString("legacy_hostkey_algos")),
		ConnectTimeout:      time.Duration(v.GetInt("conn_timeout_sec")) * time.Second,
		AuthTimeout:         time.Duration(v.GetInt("auth_timeout_sec")) * time.Second,
		BannerTimeout:       time.Duration(v.GetInt("banner_timeout_sec")) * time.Second,
		CommandTimeout:      time.Duration(v.GetInt("command_timeout_sec")) * time.Second,
		PrecheckTimeout:     time.Duration(v.GetInt("precheck_timeout_sec")) * time.Second,
		PingPrecheck:        v.GetBool("ping_precheck"),
		SimulateNetwork:     v.GetBool("simulate_network"),
		SimulateFallback:    v.GetBool("simulate_fallback"),
		DebugDiagnostics:    v.GetBool("network_debug"),
		ForcedDevice:        v.GetString("forced_device"),
		BlockedHosts:        util.SplitCommaSeparated(v.GetString("blocked_hosts")),
		BlockedAliases:      util.SplitCommaSeparated(v.GetString("blocked_aliases")),

		RelaxPromptAliases:  util.SplitCommaSeparated(strings.ToUpper(v.GetString("relax_prompt_aliases"))),
		StrictPromptAliases: util.SplitCommaSeparated(strings.ToUpper(v.GetString("strict_prompt_aliases"))),
		StrictByDefault:     v.GetBool("strict_by_default"),

		PollInterval:         time.Duration(v.GetInt("poll_interval_sec")) * time.Second,
		CPUAlertThreshold:    v.GetFloat64("cpu_threshold"),
		CPUClearThreshold:    v.GetFloat64("cpu_clear_threshold"),
		CPUBreachConsecutive: v.GetInt("cpu_breach_consecutive"),
		CPUClearConsecutive:  v.GetInt("cpu_clear_consecutive"),
		AlertCooldown:        time.Duration(v.GetInt("cooldown_minutes")) * time.Minute,
		LoopAlertCooldown:    time.Duration(v.GetInt("loop_cooldown_minutes")) * time.Minute,
		MaxWorkers:           v.GetInt("max_workers"),
		CommandRegistryPath:  v.GetString("command_registry_path"),

		AuditLogPath: v.GetString("audit_log_path"),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),
		SampleHistory: v.GetInt("sample_history"),

		EmailTo:      util.SplitCommaSeparated(v.GetString("email_to")),
		EmailFrom:    v.GetString("email_from"),
		EmailOnClear: v.GetBool("email_on_clear"),
		SMTPHost:     v.GetString("smtp_host"),
		SMTPPort:     v.GetInt("smtp_port"),
		SMTPUsername: v.GetString("smtp_username"),
		SMTPPassword: v.GetString("smtp_password"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.TransportPreference {
	case PreferSSH, PreferTelnet, SSHOnly:
	default:
		return fmt.Errorf("invalid transport preference %q", c.TransportPreference)
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 4
	}
	if c.CPUBreachConsecutive <= 0 {
		c.CPUBreachConsecutive = 1
	}
	if c.CPUClearConsecutive <= 0 {
		c.CPUClearConsecutive = 1
	}
	if c.CPUClearThreshold > c.CPUAlertThreshold {
		return fmt.Errorf("cpu clear threshold %.1f above alert threshold %.1f", c.CPUClearThreshold, c.CPUAlertThreshold)
	}
	return nil
}

// AliasRelaxed reports whether the alias is in the relax-prompt list.
// Relax lists are checked before strict lists everywhere; keep that order.
func (c *Config) AliasRelaxed(alias string) bool {
	return containsUpper(c.RelaxPromptAliases, alias)
}

// AliasStrict reports whether the alias is in the always-strict list.
func (c *Config) AliasStrict(alias string) bool {
	return containsUpper(c.StrictPromptAliases, alias)
}

// HostBlocked reports whether the host may not be used as a candidate.
func (c *Config) HostBlocked(host string) bool {
	for _, h := range c.BlockedHosts {
		if h == host {
			return true
		}
	}
	return false
}

// AliasBlocked reports whether the alias may not be addressed at all.
func (c *Config) AliasBlocked(alias string) bool {
	return containsUpper(c.BlockedAliases, alias)
}

func containsUpper(list []string, s string) bool {
	s = strings.ToUpper(s)
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
