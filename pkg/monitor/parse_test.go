package monitor

import (
	"testing"

	"github.com/switchyard-net/switchyard/pkg/registry"
)

func TestParseCPU(t *testing.T) {
	tests := []struct {
		name   string
		vendor string
		output string
		want   float64
		ok     bool
	}{
		{
			name:   "cisco one minute",
			vendor: "cisco",
			output: "CPU utilization for five seconds: 5%/0%; one minute: 7%; five minutes: 6%",
			want:   7,
			ok:     true,
		},
		{
			name:   "cisco fallback first percent",
			vendor: "cisco",
			output: "utilization: 42% busy",
			want:   42,
			ok:     true,
		},
		{
			name:   "cisco no number",
			vendor: "cisco",
			output: "command rejected",
			ok:     false,
		},
		{
			name:   "aruba colon form",
			vendor: "aruba",
			output: "CPU Utilization : 23%",
			want:   23,
			ok:     true,
		},
		{
			name:   "aruba table form",
			vendor: "aruba",
			output: "CPU Utilization    Current    88%",
			want:   88,
			ok:     true,
		},
		{
			name:   "aruba ignores stray percents",
			vendor: "aruba",
			output: "memory 90% used",
			ok:     false,
		},
		{
			name:   "unknown vendor uses cisco patterns",
			vendor: "juniper",
			output: "one minute: 12%",
			want:   12,
			ok:     true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseCPU(tc.vendor, tc.output)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Errorf("cpu = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseNeighborNames(t *testing.T) {
	output := `
Device ID: CORE-SW1.example.net
  Interface: Gi0/1
System Name: EDGE-SW2
Device ID: CORE-SW1.example.net
random line with no marker
`
	names := ParseNeighborNames(output)
	if len(names) != 2 {
		t.Fatalf("names = %v, want 2 unique entries", names)
	}
	if names[0] != "CORE-SW1.example.net" || names[1] != "EDGE-SW2" {
		t.Errorf("names = %v", names)
	}
}

func TestMapToKnownAliases(t *testing.T) {
	reg := registry.NewFromRecords(map[string]*registry.DeviceRecord{
		"CORE1": {Host: "10.0.0.1", DisplayName: "core-sw1"},
		"EDGE2": {Host: "10.0.0.2"},
	}, nil)

	mapped := MapToKnownAliases([]string{
		"core-sw1.example.net", // substring of display name inside raw token
		"EDGE2",                // exact alias
		"UNKNOWN-SW",           // dropped
	}, reg)

	want := map[string]bool{"CORE1": true, "EDGE2": true}
	if len(mapped) != 2 {
		t.Fatalf("mapped = %v, want 2", mapped)
	}
	for _, a := range mapped {
		if !want[a] {
			t.Errorf("unexpected alias %q in %v", a, mapped)
		}
	}
}

func TestMapToKnownAliasesDropsAllUnknown(t *testing.T) {
	reg := registry.NewFromRecords(map[string]*registry.DeviceRecord{
		"CORE1": {Host: "10.0.0.1"},
	}, nil)
	if mapped := MapToKnownAliases([]string{"foreign-a", "foreign-b"}, reg); len(mapped) != 0 {
		t.Fatalf("unknown neighbors mapped: %v", mapped)
	}
}
