package jump

import (
	"regexp"
	"strings"

	"github.com/switchyard-net/switchyard/pkg/util"
)

// timestampLine matches lines that carry nothing but a device timestamp,
// e.g. "*10:22:01.123 UTC Mon Mar 1 2021" or "10:22:01".
var timestampLine = regexp.MustCompile(`^\*?\d{1,2}:\d{2}:\d{2}(?:[.,]\d+)?(?:\s+\S+)*$`)

// sanitize strips transcript framing from a captured jump response: the
// echoed command, every negotiation command that was sent on the shared
// terminal, the jump device's own prompt lines, the closing target prompt,
// invalid-input noise, and bare timestamp lines.
func sanitize(transcript, command, jumpPrompt, targetPrompt string, sentCommands []string) string {
	var kept []string
	for _, raw := range util.Lines(transcript) {
		line := strings.TrimSpace(raw)
		if line == "" {
			kept = append(kept, raw)
			continue
		}
		if dropLine(line, command, jumpPrompt, targetPrompt, sentCommands) {
			continue
		}
		kept = append(kept, raw)
	}
	return strings.Trim(strings.Join(kept, "\n"), "\r\n")
}

func dropLine(line, command, jumpPrompt, targetPrompt string, sentCommands []string) bool {
	if isCommandEcho(line, command, targetPrompt) {
		return true
	}
	for _, sent := range sentCommands {
		if sent != "" && isCommandEcho(line, sent, targetPrompt) {
			return true
		}
	}
	if jumpPrompt != "" && (line == jumpPrompt || strings.HasPrefix(line, jumpPrompt)) {
		return true
	}
	if targetPrompt != "" && line == targetPrompt {
		return true
	}
	if util.ContainsFold(line, "invalid input") {
		return true
	}
	if timestampLine.MatchString(line) && startsWithClock(line) {
		return true
	}
	return false
}

// isCommandEcho matches the command itself or the command following the
// prompt on one echoed line.
func isCommandEcho(line, command, prompt string) bool {
	if line == command {
		return true
	}
	if prompt != "" && strings.HasPrefix(line, prompt) {
		rest := strings.TrimSpace(strings.TrimPrefix(line, prompt))
		return rest == command
	}
	return strings.HasSuffix(line, command) && strings.HasSuffix(strings.TrimSuffix(line, command), "#")
}

// startsWithClock guards the timestamp pattern so ordinary numeric output
// columns are not stripped.
func startsWithClock(line string) bool {
	s := strings.TrimPrefix(line, "*")
	if len(s) < 5 {
		return false
	}
	return s[0] >= '0' && s[0] <= '9' && strings.Count(strings.Fields(s)[0], ":") == 2
}
