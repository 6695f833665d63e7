package util

import "testing"

func TestSplitCommaSeparated(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"ops@example.com", 1},
		{"ops@example.com,noc@example.com", 2},
		{"a@x.com, b@x.com, c@x.com", 3},
		{" , ,", 0},
	}

	for _, tt := range tests {
		got := SplitCommaSeparated(tt.input)
		if len(got) != tt.want {
			t.Errorf("SplitCommaSeparated(%q) = %v (len %d), want len %d", tt.input, got, len(got), tt.want)
		}
	}
}

func TestLines(t *testing.T) {
	got := Lines("first\r\nsecond\nthird\r")
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("Lines returned %d lines, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLastNonEmptyLine(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"\n\n  \n", ""},
		{"output\nSWITCH-01#\n", "SWITCH-01#"},
		{"only", "only"},
		{"a\r\nb\r\n  \r\n", "b"},
	}

	for _, tt := range tests {
		if got := LastNonEmptyLine(tt.input); got != tt.want {
			t.Errorf("LastNonEmptyLine(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestContainsFold(t *testing.T) {
	if !ContainsFold("INVIJB1SW1#", "invijb1sw1") {
		t.Error("ContainsFold should match case-insensitively")
	}
	if ContainsFold("INVIJB1SW1#", "sw2") {
		t.Error("ContainsFold matched a missing substring")
	}
}
