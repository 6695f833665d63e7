package monitor

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/switchyard-net/switchyard/pkg/registry"
)

var (
	ciscoOneMinute = regexp.MustCompile(`(?i)one minute:\s*(\d+)%`)
	anyPercent     = regexp.MustCompile(`(\d+)%`)
	arubaCPU       = regexp.MustCompile(`(?i)CPU\s*Utilization\s*:\s*(\d+)%`)
	arubaCPUTable  = regexp.MustCompile(`(?i)CPU\s*Utilization\s+Current\s+(\d+)%`)

	deviceIDLine   = regexp.MustCompile(`Device ID:\s*(\S+)`)
	systemNameLine = regexp.MustCompile(`System Name:\s*(\S+)`)
)

// ParseCPU extracts a CPU utilization percentage from vendor command
// output. The second return is false when no recognizable value is present.
func ParseCPU(vendorKey, output string) (float64, bool) {
	switch strings.ToLower(vendorKey) {
	case "aruba":
		for _, re := range []*regexp.Regexp{arubaCPU, arubaCPUTable} {
			if m := re.FindStringSubmatch(output); m != nil {
				return parsePercent(m[1])
			}
		}
	default:
		if m := ciscoOneMinute.FindStringSubmatch(output); m != nil {
			return parsePercent(m[1])
		}
		if m := anyPercent.FindStringSubmatch(output); m != nil {
			return parsePercent(m[1])
		}
	}
	return 0, false
}

func parsePercent(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseNeighborNames pulls neighbor identity tokens from discovery output,
// matching both CDP "Device ID:" and LLDP "System Name:" lines.
func ParseNeighborNames(output string) []string {
	seen := map[string]bool{}
	var names []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		m := deviceIDLine.FindStringSubmatch(line)
		if m == nil {
			m = systemNameLine.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// MapToKnownAliases resolves raw neighbor names against the registry's
// alias and display-name table, exact match first then substring. Unmapped
// names are dropped so unknown gear never contributes topology edges.
func MapToKnownAliases(raw []string, reg *registry.Registry) []string {
	nameToAlias := map[string]string{}
	reg.Each(func(alias string, rec *registry.DeviceRecord) {
		nameToAlias[strings.ToLower(alias)] = alias
		if n := strings.TrimSpace(rec.DisplayName); n != "" {
			nameToAlias[strings.ToLower(n)] = alias
		}
	})

	keys := make([]string, 0, len(nameToAlias))
	for k := range nameToAlias {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mappedSet := map[string]bool{}
	var mapped []string
	for _, nm := range raw {
		l := strings.ToLower(nm)
		alias, ok := nameToAlias[l]
		if !ok {
			for _, key := range keys {
				if key != "" && strings.Contains(l, key) {
					alias, ok = nameToAlias[key], true
					break
				}
			}
		}
		if ok && !mappedSet[alias] {
			mappedSet[alias] = true
			mapped = append(mapped, alias)
		}
	}
	return mapped
}
