package jump

import (
	"strings"
	"testing"
)

func TestSanitizeStripsFraming(t *testing.T) {
	transcript := strings.Join([]string{
		"CORE-SW7#show ip interface brief",
		"*10:22:01.123 UTC Mon Mar 1 2021",
		"Interface          IP-Address      Status",
		"Vlan1              10.1.1.7        up",
		"JUMP#",
		"% Invalid input detected at '^' marker.",
		"CORE-SW7#",
	}, "\r\n")

	out := sanitize(transcript, "show ip interface brief", "JUMP#", "CORE-SW7#", []string{"terminal length 0"})

	for _, banned := range []string{"show ip interface brief", "JUMP#", "CORE-SW7#", "Invalid input", "10:22:01"} {
		if strings.Contains(out, banned) {
			t.Errorf("sanitized output still contains %q:\n%s", banned, out)
		}
	}
	for _, want := range []string{"Interface", "Vlan1"} {
		if !strings.Contains(out, want) {
			t.Errorf("sanitized output lost %q:\n%s", want, out)
		}
	}
}

func TestSanitizeStripsSentNegotiationCommands(t *testing.T) {
	transcript := strings.Join([]string{
		"terminal length 0",
		"CORE-SW7#terminal length 0",
		"real payload line",
		"CORE-SW7#",
	}, "\n")

	out := sanitize(transcript, "show version", "JUMP#", "CORE-SW7#", []string{"terminal length 0"})
	if strings.Contains(out, "terminal length 0") {
		t.Errorf("sent command left in output: %q", out)
	}
	if !strings.Contains(out, "real payload line") {
		t.Errorf("payload lost: %q", out)
	}
}

func TestSanitizeKeepsNumericColumns(t *testing.T) {
	transcript := strings.Join([]string{
		"10 packets transmitted, 10 received",
		"round-trip min/avg/max = 1/2/3 ms",
		"CORE-SW7#",
	}, "\n")

	out := sanitize(transcript, "ping 10.1.1.1", "JUMP#", "CORE-SW7#", nil)
	if !strings.Contains(out, "10 packets transmitted") {
		t.Errorf("numeric line wrongly stripped: %q", out)
	}
}
