package connect

import (
	"fmt"
	"strings"
)

// SimulatedOutput returns canned responses for the common show commands so
// the full pipeline can run with no reachable devices.
func SimulatedOutput(alias, command string) string {
	lc := strings.ToLower(strings.TrimSpace(command))
	switch {
	case strings.HasPrefix(lc, "show ip interface brief"):
		return "Interface          IP-Address      OK? Method Status                Protocol\n" +
			"GigabitEthernet0/0 192.168.10.1   YES manual up                    up\n" +
			"GigabitEthernet0/1 unassigned     YES unset  administratively down down"
	case strings.HasPrefix(lc, "show version"):
		return "Cisco IOS Software, Virtual Mock Image Version 15.2(2)E MOCK BUILD\n" +
			"System returned to ROM by power-on\n" +
			"Processor board ID MOCK1234"
	case strings.HasPrefix(lc, "show vlan"):
		return "VLAN Name                             Status    Ports\n" +
			"1    default                          active    Gi0/0, Gi0/1\n" +
			"10   Users                            active    Gi0/2\n" +
			"20   Voice                            active    Gi0/3"
	}
	return fmt.Sprintf("(simulated) Executed '%s' on %s. No real device connected.", command, alias)
}
