package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/switchyard-net/switchyard/pkg/util"
)

func testRegistry() *Registry {
	devices := map[string]*DeviceRecord{
		"INVIJB1SW1": {Host: "10.10.1.1", AltHosts: []string{"10.10.1.101"}, Vendor: "cisco_ios"},
		"INVIJB1SW2": {Host: "10.10.1.2", Vendor: "cisco_ios"},
		"INHYDB1SW1": {Host: "10.20.1.1", Vendor: "aruba_aoscx"},
	}
	sites := []Site{
		{Name: "vijayawada", Prefix: "INVIJ", Preferred: "INVIJB1SW1", Keywords: []string{"vijayawada", "vij", "bza"}},
		{Name: "hyderabad", Prefix: "INHYD", Preferred: "INHYDB1SW1", Keywords: []string{"hyderabad", "hyd"}},
	}
	r := NewFromRecords(devices, sites)
	r.phrases = compilePhrases(map[string]string{
		"vijayawada building 1 switch 1": "INVIJB1SW1",
		"vijayawada building 1 switch 2": "INVIJB1SW2",
	})
	return r
}

func TestResolveDirectAlias(t *testing.T) {
	r := testRegistry()

	rec, err := r.Resolve("show interfaces on invijb1sw1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if rec.Alias != "INVIJB1SW1" {
		t.Errorf("Resolve = %s, want INVIJB1SW1", rec.Alias)
	}
}

func TestResolveDirectAliasAmbiguous(t *testing.T) {
	r := testRegistry()

	_, err := r.Resolve("compare INVIJB1SW1 with INVIJB1SW2")
	if !errors.Is(err, util.ErrResolutionAmbiguous) {
		t.Fatalf("expected ambiguity, got %v", err)
	}
	var resErr *util.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatal("error should be a *util.ResolutionError")
	}
	if len(resErr.Candidates) != 2 {
		t.Errorf("candidates = %v, want 2 aliases", resErr.Candidates)
	}
}

func TestResolveCanonicalPhrase(t *testing.T) {
	r := testRegistry()

	rec, err := r.Resolve("Vijayawada Building 1 Switch 2 interfaces please")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if rec.Alias != "INVIJB1SW2" {
		t.Errorf("Resolve = %s, want INVIJB1SW2", rec.Alias)
	}
}

func TestResolveStructuredGrammar(t *testing.T) {
	r := testRegistry()

	rec, err := r.Resolve("connect to IN VIJ B1 SW2 now")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if rec.Alias != "INVIJB1SW2" {
		t.Errorf("Resolve = %s, want INVIJB1SW2", rec.Alias)
	}
}

func TestResolveStructuredGrammarNarrows(t *testing.T) {
	r := testRegistry()

	// SW9 does not exist; both building-1 switches share the prefix.
	_, err := r.Resolve("IN VIJ B1 SW9 status")
	if !errors.Is(err, util.ErrResolutionAmbiguous) {
		t.Fatalf("expected ambiguity from prefix narrowing, got %v", err)
	}
}

// A site-only fuzzy query must resolve to the configured preferred alias.
func TestResolveFuzzySitePreferred(t *testing.T) {
	r := testRegistry()

	for _, query := range []string{
		"the vijayawada switch",
		"switch at vijaywada",   // missing letter, similarity match
		"what about bza please", // abbreviation keyword
	} {
		rec, err := r.Resolve(query)
		if err != nil {
			t.Fatalf("Resolve(%q) returned error: %v", query, err)
		}
		if rec.Alias != "INVIJB1SW1" {
			t.Errorf("Resolve(%q) = %s, want preferred INVIJB1SW1", query, rec.Alias)
		}
	}
}

// When the preferred alias is absent the site prefix still resolves.
func TestResolveFuzzySitePreferredAbsent(t *testing.T) {
	devices := map[string]*DeviceRecord{
		"INVIJB2SW5": {Host: "10.10.2.5"},
	}
	sites := []Site{
		{Name: "vijayawada", Prefix: "INVIJ", Preferred: "INVIJB1SW1", Keywords: []string{"vijayawada"}},
	}
	r := NewFromRecords(devices, sites)

	rec, err := r.Resolve("vijayawada switch")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if rec.Alias != "INVIJB2SW5" {
		t.Errorf("Resolve = %s, want prefix fallback INVIJB2SW5", rec.Alias)
	}
}

// Keywords from two distinct sites must report ambiguity, never a silent pick.
func TestResolveTwoSitesAmbiguous(t *testing.T) {
	r := testRegistry()

	_, err := r.Resolve("link between vijayawada and hyderabad")
	if !errors.Is(err, util.ErrResolutionAmbiguous) {
		t.Fatalf("expected ambiguity for two sites, got %v", err)
	}
	var resErr *util.ResolutionError
	errors.As(err, &resErr)
	if len(resErr.Candidates) != 2 {
		t.Errorf("candidates = %v, want one representative per site", resErr.Candidates)
	}
}

func TestResolveNotFound(t *testing.T) {
	r := testRegistry()

	_, err := r.Resolve("reboot the coffee machine")
	if !errors.Is(err, util.ErrResolutionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveEmptyQuery(t *testing.T) {
	r := testRegistry()

	_, err := r.Resolve("   ")
	if !errors.Is(err, util.ErrResolutionNotFound) {
		t.Fatalf("expected not found for empty query, got %v", err)
	}
}

func TestFindByHost(t *testing.T) {
	r := testRegistry()

	alias, rec, ok := r.FindByHost("10.10.1.101")
	if !ok {
		t.Fatal("FindByHost should match an alternate address")
	}
	if alias != "INVIJB1SW1" || rec == nil {
		t.Errorf("FindByHost = %s, want INVIJB1SW1", alias)
	}

	if _, _, ok := r.FindByHost("192.0.2.99"); ok {
		t.Error("FindByHost matched an unknown address")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.json")
	content := `{
	  "devices": {
	    "invijb1sw1": {"host": "10.10.1.1", "vendor": "cisco_ios", "jump_via": "INVIJB1SW2", "connection_strategy": "jump_first"}
	  },
	  "sites": [{"name": "vijayawada", "prefix": "invij", "preferred": "invijb1sw1", "keywords": ["vijayawada"]}],
	  "phrases": {"vijayawada building 1 switch 1": "INVIJB1SW1"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := New(path, false)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	rec, ok := r.Get("InViJb1Sw1")
	if !ok {
		t.Fatal("aliases should be case-normalized on load")
	}
	if rec.EffectiveStrategy() != StrategyJumpFirst {
		t.Errorf("strategy = %s, want jump_first", rec.EffectiveStrategy())
	}
	if rec.JumpVia != "INVIJB1SW2" {
		t.Errorf("jump_via = %s", rec.JumpVia)
	}
}

func TestLoadLegacyFlatFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.json")
	content := `{"INVIJB1SW1": {"host": "10.10.1.1"}, "INVIJB1SW2": {"host": "10.10.1.2"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := New(path, false)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestHotReloadPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.json")
	if err := os.WriteFile(path, []byte(`{"INVIJB1SW1": {"host": "10.10.1.1"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := New(path, true)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte(`{"INVIJB1SW1": {"host": "10.10.1.1"}, "INHYDB1SW1": {"host": "10.20.1.1"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, err := r.Resolve("check INHYDB1SW1")
	if err != nil {
		t.Fatalf("Resolve after hot reload: %v", err)
	}
	if rec.Alias != "INHYDB1SW1" {
		t.Errorf("Resolve = %s", rec.Alias)
	}
}

func TestEffectiveStrategyDefault(t *testing.T) {
	rec := &DeviceRecord{}
	if rec.EffectiveStrategy() != StrategyDirect {
		t.Errorf("default strategy = %s, want direct", rec.EffectiveStrategy())
	}
}

func TestVendorKey(t *testing.T) {
	tests := []struct {
		vendor string
		dtype  string
		want   string
	}{
		{"cisco_ios", "", "cisco"},
		{"", "cisco_ios", "cisco"},
		{"Aruba AOS-CX", "", "aruba"},
		{"juniper", "", "juniper"},
		{"", "", "cisco"},
	}
	for _, tt := range tests {
		rec := &DeviceRecord{Vendor: tt.vendor, DeviceType: tt.dtype}
		if got := rec.VendorKey(); got != tt.want {
			t.Errorf("VendorKey(%q,%q) = %q, want %q", tt.vendor, tt.dtype, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if similarity("vijayawada", "vijayawada") != 1 {
		t.Error("identical strings should have similarity 1")
	}
	if sim := similarity("vijaywada", "vijayawada"); sim < similarityThreshold {
		t.Errorf("one-letter omission sim = %.2f, want >= %.2f", sim, similarityThreshold)
	}
	if sim := similarity("hyderabad", "vijayawada"); sim >= similarityThreshold {
		t.Errorf("distinct sites sim = %.2f, should be below threshold", sim)
	}
}
