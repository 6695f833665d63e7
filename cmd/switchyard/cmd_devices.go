package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/switchyard-net/switchyard/pkg/cli"
	"github.com/switchyard-net/switchyard/pkg/registry"
	"github.com/switchyard-net/switchyard/pkg/util"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <reference...>",
	Short: "Resolve a device reference without connecting",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		rec, err := reg.Resolve(query)
		if err != nil {
			var resErr *util.ResolutionError
			if errors.As(err, &resErr) && len(resErr.Candidates) > 0 {
				fmt.Printf("Ambiguous reference %q. Candidates:\n", query)
				for _, c := range resErr.Candidates {
					fmt.Printf("  %s\n", c)
				}
				return errors.New("device reference is ambiguous")
			}
			return err
		}
		fmt.Printf("%s  %s\n", cli.Green(rec.Alias), cli.Dim(rec.Host))
		return nil
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Inspect the device registry",
}

func init() {
	devicesCmd.AddCommand(devicesListCmd)
	devicesCmd.AddCommand(devicesShowCmd)
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		table := cli.NewTable("ALIAS", "HOST", "VENDOR", "STRATEGY", "JUMP")
		for _, alias := range reg.Aliases() {
			rec, ok := reg.Get(alias)
			if !ok {
				continue
			}
			table.Row(alias, rec.Host, rec.Vendor, string(rec.EffectiveStrategy()), rec.JumpVia)
		}
		table.Flush()
		fmt.Printf("\n%d devices\n", reg.Len())
		return nil
	},
}

var devicesShowCmd = &cobra.Command{
	Use:   "show <reference...>",
	Short: "Show one device record in full",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := reg.Resolve(strings.Join(args, " "))
		if err != nil {
			return err
		}
		printRecord(rec)
		return nil
	},
}

func printRecord(rec *registry.DeviceRecord) {
	const width = 22
	row := func(name, value string) {
		if value != "" {
			fmt.Printf("  %s %s\n", cli.DotPad(name, width), value)
		}
	}

	fmt.Println(cli.Green(rec.Alias))
	row("name", rec.DisplayName)
	row("host", rec.Host)
	row("alt hosts", strings.Join(rec.AltHosts, ", "))
	row("vendor", rec.Vendor)
	row("port", portString(rec))
	row("strategy", string(rec.EffectiveStrategy()))
	row("jump via", rec.JumpVia)
	row("prompt contains", rec.PromptContains)
	if rec.StrictPrompt {
		row("identity", "strict")
	} else if rec.RelaxPrompt {
		row("identity", "relaxed")
	}
}

func portString(rec *registry.DeviceRecord) string {
	if rec.Port == 0 {
		return ""
	}
	return fmt.Sprintf("%d", rec.Port)
}
