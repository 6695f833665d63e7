package registry

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/switchyard-net/switchyard/pkg/util"
)

// similarityThreshold is the minimum levenshtein similarity for a query
// token to count as a site keyword hit.
const similarityThreshold = 0.8

type phrasePattern struct {
	re    *regexp.Regexp
	alias string
}

// compilePhrases turns canonical phrases into whitespace-tolerant patterns:
// "vijayawada building 1 switch 1" matches "Building1 switch  1" too.
func compilePhrases(phrases map[string]string) []phrasePattern {
	keys := make([]string, 0, len(phrases))
	for p := range phrases {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	compiled := make([]phrasePattern, 0, len(keys))
	for _, phrase := range keys {
		words := strings.Fields(phrase)
		if len(words) == 0 {
			continue
		}
		parts := make([]string, len(words))
		for i, w := range words {
			parts[i] = regexp.QuoteMeta(w)
		}
		re, err := regexp.Compile(`(?i)` + strings.Join(parts, `\s*`))
		if err != nil {
			continue
		}
		compiled = append(compiled, phrasePattern{re: re, alias: strings.ToUpper(phrases[phrase])})
	}
	return compiled
}

// structuredAlias matches the alias grammar COUNTRY CITY "B"<n> "SW"<m>
// spelled out in a query with optional separators, e.g. "IN VIJ B1 SW2".
var structuredAlias = regexp.MustCompile(`\b([A-Z]{2})[ -]?([A-Z]{3,})[ -]?B[ -]?(\d+)[ -]?SW[ -]?(\d+)\b`)

// Resolve maps a free-text device reference to a record. Matching stages,
// first decisive one wins:
//
//  1. direct alias containment in the query
//  2. canonical phrase patterns
//  3. the structured alias grammar, narrowing to a site/building prefix
//  4. fuzzy site-keyword matching with a per-site preferred alias
//
// Ambiguity and not-found are reported as *util.ResolutionError.
func (r *Registry) Resolve(query string) (*DeviceRecord, error) {
	r.maybeReload()

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.devices) == 0 {
		return nil, util.NewNotFoundError(query, "no devices configured")
	}

	q := strings.TrimSpace(query)
	if q == "" {
		return nil, util.NewNotFoundError(query, "empty query")
	}
	upper := strings.ToUpper(q)

	// Stage 1: direct alias containment.
	var direct []string
	for alias := range r.devices {
		if strings.Contains(upper, alias) {
			direct = append(direct, alias)
		}
	}
	sort.Strings(direct)
	if len(direct) == 1 {
		return r.devices[direct[0]], nil
	}
	if len(direct) > 1 {
		return nil, util.NewAmbiguousError(query, direct)
	}

	// Stage 2: canonical phrase patterns.
	var phraseHits []string
	for _, p := range r.phrases {
		if p.re.MatchString(q) {
			phraseHits = append(phraseHits, p.alias)
		}
	}
	if len(phraseHits) == 1 {
		if rec, ok := r.devices[phraseHits[0]]; ok {
			return rec, nil
		}
		return nil, util.NewNotFoundError(query, "phrase maps to unknown alias "+phraseHits[0])
	}
	if len(phraseHits) > 1 {
		return nil, util.NewAmbiguousError(query, phraseHits)
	}

	// Stage 3: structured alias grammar.
	if m := structuredAlias.FindStringSubmatch(upper); m != nil {
		exact := m[1] + m[2] + "B" + m[3] + "SW" + m[4]
		if rec, ok := r.devices[exact]; ok {
			return rec, nil
		}
		prefix := m[1] + m[2] + "B" + m[3]
		var candidates []string
		for alias := range r.devices {
			if strings.HasPrefix(alias, prefix) {
				candidates = append(candidates, alias)
			}
		}
		sort.Strings(candidates)
		if len(candidates) == 1 {
			return r.devices[candidates[0]], nil
		}
		if len(candidates) > 1 {
			return nil, util.NewAmbiguousError(query, candidates)
		}
		// fall through to fuzzy matching
	}

	// Stage 4: fuzzy site keywords.
	if rec, candidates, ok := r.resolveSiteLocked(q); ok {
		if rec != nil {
			return rec, nil
		}
		return nil, util.NewAmbiguousError(query, candidates)
	}

	return nil, util.NewNotFoundError(query, "no matching device")
}

// resolveSiteLocked matches the query tokens against site keywords.
// Returns (record, nil, true) for one site, (nil, representatives, true)
// when keywords from two or more sites are present, (nil, nil, false) when
// nothing matched. Caller holds at least a read lock.
func (r *Registry) resolveSiteLocked(query string) (*DeviceRecord, []string, bool) {
	matched := make(map[string]*Site)
	for i := range r.sites {
		site := &r.sites[i]
		if siteMatches(site, query) {
			matched[site.Prefix] = site
		}
	}

	if len(matched) == 0 {
		return nil, nil, false
	}

	if len(matched) > 1 {
		// One representative alias per site, preferred when present.
		var reps []string
		for _, site := range matched {
			if rep := r.siteRepresentativeLocked(site); rep != "" {
				reps = append(reps, rep)
			}
		}
		sort.Strings(reps)
		if len(reps) > 1 {
			return nil, reps, true
		}
		// All but one site had no devices in the registry.
		if len(reps) == 1 {
			rec := r.devices[reps[0]]
			return rec, nil, rec != nil
		}
		return nil, nil, false
	}

	for _, site := range matched {
		if site.Preferred != "" {
			if rec, ok := r.devices[site.Preferred]; ok {
				return rec, nil, true
			}
		}
		// Preferred alias absent: any alias sharing the site prefix.
		var candidates []string
		for alias := range r.devices {
			if strings.HasPrefix(alias, site.Prefix) {
				candidates = append(candidates, alias)
			}
		}
		sort.Strings(candidates)
		if len(candidates) > 0 {
			return r.devices[candidates[0]], nil, true
		}
	}
	return nil, nil, false
}

func (r *Registry) siteRepresentativeLocked(site *Site) string {
	if site.Preferred != "" {
		if _, ok := r.devices[site.Preferred]; ok {
			return site.Preferred
		}
	}
	var candidates []string
	for alias := range r.devices {
		if strings.HasPrefix(alias, site.Prefix) {
			candidates = append(candidates, alias)
		}
	}
	sort.Strings(candidates)
	if len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

// siteMatches checks the site's keywords against the query, exactly and by
// similarity against single tokens and two-token windows.
func siteMatches(site *Site, query string) bool {
	lower := strings.ToLower(query)
	tokens := tokenize(lower)

	for _, kw := range site.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(lower, kw) {
			return true
		}
		for i, tok := range tokens {
			if similarity(tok, kw) >= similarityThreshold {
				return true
			}
			if i+1 < len(tokens) {
				window := tok + " " + tokens[i+1]
				if similarity(window, kw) >= similarityThreshold {
					return true
				}
			}
		}
	}
	return false
}

var tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)

func tokenize(s string) []string {
	raw := tokenSplit.Split(s, -1)
	tokens := raw[:0]
	for _, t := range raw {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// similarity is 1 - editDistance/maxLen, in [0,1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
