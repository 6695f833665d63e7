package util

import "strings"

// SplitCommaSeparated splits a comma-separated string and trims whitespace from each element.
// Empty input returns nil.
func SplitCommaSeparated(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// Lines splits s into lines with trailing carriage returns removed.
// Interactive terminal streams mix \r\n and \n line endings.
func Lines(s string) []string {
	raw := strings.Split(s, "\n")
	result := make([]string, len(raw))
	for i, ln := range raw {
		result[i] = strings.TrimRight(ln, "\r")
	}
	return result
}

// LastNonEmptyLine returns the last line of s that contains non-whitespace,
// or "" if there is none.
func LastNonEmptyLine(s string) string {
	lines := Lines(s)
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}

// ContainsFold reports whether substr appears in s, case-insensitively.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
