package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/switchyard-net/switchyard/pkg/audit"
	"github.com/switchyard-net/switchyard/pkg/registry"
	"github.com/switchyard-net/switchyard/pkg/util"
)

var askPassword bool

var runCmd = &cobra.Command{
	Use:   "run <command...>",
	Short: "Run a CLI command on a device",
	Long: `Run resolves the device reference given with -d and executes one CLI
command on it, printing the sanitized output. The full transport
negotiation applies: direct SSH, telnet, legacy-cipher SSH, and the
jump-device path, depending on the device's connection strategy.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := resolveTarget()
		if err != nil {
			return err
		}

		command := strings.Join(args, " ")
		if askPassword || needsPassword(rec) {
			password, err := promptPassword(rec.Alias)
			if err != nil {
				return err
			}
			clone := *rec
			clone.Password = password
			rec = &clone
		}

		event := audit.NewEvent(currentUser(), rec.Alias, command)
		event.Query = deviceRef
		event.Host = rec.Host
		event.Jump = rec.JumpVia

		start := time.Now()
		output, err := engine.Execute(context.Background(), rec, command)
		event.Duration = time.Since(start)
		event.Success = err == nil
		event.OutputLen = len(output)
		if err != nil {
			event.Error = err.Error()
		}
		if logErr := auditLog.Log(event); logErr != nil {
			util.Warnf("Audit write failed: %v", logErr)
		}

		if err != nil {
			return err
		}
		fmt.Println(output)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&askPassword, "ask-password", false, "Prompt for the device password even when one is configured")
}

// resolveTarget resolves the -d reference, honoring the forced-device
// override from configuration.
func resolveTarget() (*registry.DeviceRecord, error) {
	ref := deviceRef
	if cfg.ForcedDevice != "" {
		ref = cfg.ForcedDevice
	}
	if ref == "" {
		return nil, fmt.Errorf("device required: use -d <device-ref>")
	}

	rec, err := reg.Resolve(ref)
	if err != nil {
		var resErr *util.ResolutionError
		if errors.As(err, &resErr) && len(resErr.Candidates) > 0 {
			return nil, fmt.Errorf("%w\nDid you mean one of: %s", err, strings.Join(resErr.Candidates, ", "))
		}
		return nil, err
	}
	return rec, nil
}

func needsPassword(rec *registry.DeviceRecord) bool {
	return rec.Password == "" && cfg.DefaultPassword == ""
}

func promptPassword(alias string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no password configured for %s and stdin is not a terminal", alias)
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", alias)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(raw), nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
