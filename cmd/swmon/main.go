// Swmon - network health monitor daemon
//
// Polls every device in the registry for CPU load and neighbor
// relationships, raises and clears alerts with hysteresis, detects
// physical topology loops, and persists samples to Redis.
//
//	swmon run            # start the polling loop
//	swmon run --once     # a single polling cycle, then exit
//	swmon check          # preflight configuration checks
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/switchyard-net/switchyard/pkg/cli"
	"github.com/switchyard-net/switchyard/pkg/config"
	"github.com/switchyard-net/switchyard/pkg/connect"
	"github.com/switchyard-net/switchyard/pkg/health"
	"github.com/switchyard-net/switchyard/pkg/jump"
	"github.com/switchyard-net/switchyard/pkg/monitor"
	"github.com/switchyard-net/switchyard/pkg/notify"
	"github.com/switchyard-net/switchyard/pkg/registry"
	"github.com/switchyard-net/switchyard/pkg/store"
	"github.com/switchyard-net/switchyard/pkg/util"
	"github.com/switchyard-net/switchyard/pkg/version"
)

var (
	cfgFile string
	verbose bool
	runOnce bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "swmon",
	Short:         "Network health monitor daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file (env vars take precedence)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	runCmd.Flags().BoolVar(&runOnce, "once", false, "Run a single polling cycle and exit")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the polling loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			util.SetLogLevel("debug")
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		reg, err := registry.New(cfg.DevicesPath, cfg.HotReload)
		if err != nil {
			return fmt.Errorf("loading device registry: %w", err)
		}

		engine := connect.NewEngine(cfg, reg)
		engine.SetJumpRunner(jump.NewManager(cfg, engine))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := buildStore(ctx, cfg)
		if err != nil {
			return err
		}

		commands, err := monitor.LoadCommands(cfg.CommandRegistryPath)
		if err != nil {
			util.Warnf("Command registry: %v", err)
		}

		mon := monitor.New(cfg, reg, engine, st, notify.NewMailer(cfg), commands)
		if runOnce {
			mon.RunCycle(ctx)
			return nil
		}

		util.Infof("Monitoring %d devices every %s", reg.Len(), cfg.PollInterval)
		return mon.Run(ctx)
	},
}

// buildStore connects to Redis, falling back to in-memory samples when
// Redis is unreachable or the run is simulated.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.SimulateNetwork {
		return store.NewMemoryStore(), nil
	}
	rs := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SampleHistory)
	if err := rs.Ping(ctx); err != nil {
		util.Warnf("Redis unreachable, samples kept in memory: %v", err)
		rs.Close()
		return store.NewMemoryStore(), nil
	}
	return rs, nil
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run preflight configuration checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		ctx := context.Background()
		var pinger health.Pinger
		if !cfg.SimulateNetwork {
			rs := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SampleHistory)
			defer rs.Close()
			pinger = rs
		}

		checker := health.NewChecker(
			&health.RegistryCheck{Path: cfg.DevicesPath},
			&health.CommandsCheck{Path: cfg.CommandRegistryPath},
			&health.StoreCheck{Pinger: pinger},
			&health.NotifyCheck{Config: cfg},
		)
		report := checker.Run(ctx)

		for _, res := range report.Results {
			fmt.Printf("  %s %s  %s\n",
				cli.DotPad(res.Check, 14),
				cli.StatusColor(string(res.Status)),
				cli.Dim(res.Message))
		}
		fmt.Printf("\nOverall: %s\n", cli.StatusColor(string(report.Overall)))

		if report.Overall == health.StatusCritical {
			return fmt.Errorf("preflight checks failed")
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("swmon %s\n", version.Info())
	},
}
