// Switchyard - network device command execution tool
//
// Resolves free-text device references against a device registry and runs
// CLI commands over whichever transport the device actually answers on:
// direct SSH, telnet, legacy-cipher SSH, or an interactive hop through a
// jump device.
//
//	switchyard -d "vijayawada building 1 switch 1" run show version
//	switchyard resolve "hyderabad core"
//	switchyard devices list
//	switchyard audit --failures
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/switchyard-net/switchyard/pkg/audit"
	"github.com/switchyard-net/switchyard/pkg/config"
	"github.com/switchyard-net/switchyard/pkg/connect"
	"github.com/switchyard-net/switchyard/pkg/jump"
	"github.com/switchyard-net/switchyard/pkg/registry"
	"github.com/switchyard-net/switchyard/pkg/util"
	"github.com/switchyard-net/switchyard/pkg/version"
)

var (
	// Global flags
	cfgFile   string
	deviceRef string // -d, --device
	verbose   bool

	// Global state, initialized in PersistentPreRunE
	cfg      *config.Config
	reg      *registry.Registry
	engine   *connect.Engine
	auditLog audit.Logger = audit.Nop{}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "switchyard",
	Short:             "Network device command execution tool",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Switchyard resolves device references (aliases, site phrases, fuzzy
location names) and runs CLI commands on the matched device, negotiating
SSH, telnet, legacy-cipher SSH, or a jump-device hop as needed.

  switchyard -d <device-ref> run <command...>`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if isHelpOrVersion(cmd) {
			return nil
		}

		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		reg, err = registry.New(cfg.DevicesPath, cfg.HotReload)
		if err != nil {
			return fmt.Errorf("loading device registry: %w", err)
		}

		engine = connect.NewEngine(cfg, reg)
		engine.SetJumpRunner(jump.NewManager(cfg, engine))

		if cfg.AuditLogPath != "" {
			logger, err := audit.NewFileLogger(cfg.AuditLogPath)
			if err != nil {
				util.Warnf("Audit logging disabled: %v", err)
			} else {
				auditLog = logger
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		auditLog.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file (env vars take precedence)")
	rootCmd.PersistentFlags().StringVarP(&deviceRef, "device", "d", "", "Device reference: alias, site phrase, or location")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("switchyard %s\n", version.Info())
	},
}

// isHelpOrVersion checks whether cmd (or any ancestor) is help or version.
func isHelpOrVersion(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version":
			return true
		}
	}
	return false
}
