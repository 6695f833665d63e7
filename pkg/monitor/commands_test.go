package monitor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCommandsDefaults(t *testing.T) {
	cmds, err := LoadCommands("")
	if err != nil {
		t.Fatalf("LoadCommands: %v", err)
	}
	if !strings.Contains(cmds["cisco"].CPU, "processes cpu") {
		t.Errorf("cisco cpu command = %q", cmds["cisco"].CPU)
	}
	if !strings.Contains(cmds["aruba"].Neighbors, "lldp") {
		t.Errorf("aruba neighbors command = %q", cmds["aruba"].Neighbors)
	}
}

func TestLoadCommandsYAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.yaml")
	content := `
cisco:
  cpu: show processes cpu history
juniper:
  cpu: show chassis routing-engine
  neighbors: show lldp neighbors
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cmds, err := LoadCommands(path)
	if err != nil {
		t.Fatalf("LoadCommands: %v", err)
	}
	if cmds["cisco"].CPU != "show processes cpu history" {
		t.Errorf("override not applied: %q", cmds["cisco"].CPU)
	}
	// Shallow merge keeps the untouched default field.
	if !strings.Contains(cmds["cisco"].Neighbors, "cdp") {
		t.Errorf("default neighbors lost: %q", cmds["cisco"].Neighbors)
	}
	if cmds["juniper"].CPU != "show chassis routing-engine" {
		t.Errorf("new vendor not added: %q", cmds["juniper"].CPU)
	}
}

func TestLoadCommandsJSONOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.json")
	content := `{"aruba": {"cpu": "show cpu"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cmds, err := LoadCommands(path)
	if err != nil {
		t.Fatalf("LoadCommands: %v", err)
	}
	if cmds["aruba"].CPU != "show cpu" {
		t.Errorf("json override not applied: %q", cmds["aruba"].CPU)
	}
}

func TestLoadCommandsMissingFileFallsBack(t *testing.T) {
	cmds, err := LoadCommands(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cmds["cisco"].CPU == "" {
		t.Error("defaults missing")
	}
}

func TestForVendorFallback(t *testing.T) {
	cmds := DefaultCommands()
	set := cmds.ForVendor("juniper")
	if set.CPU != cmds["cisco"].CPU {
		t.Errorf("unknown vendor did not fall back to cisco: %q", set.CPU)
	}
	if got := cmds.ForVendor("ARUBA"); !strings.Contains(got.CPU, "resource-utilization") {
		t.Errorf("vendor key not case-insensitive: %q", got.CPU)
	}
}
