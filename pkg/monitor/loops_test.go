package monitor

import (
	"strings"
	"testing"
)

func graphOf(edges map[string][]string) Graph {
	g := Graph{}
	for from, tos := range edges {
		for _, to := range tos {
			g.AddEdge(from, to)
		}
	}
	return g
}

func TestDetectLoopsTriangle(t *testing.T) {
	g := graphOf(map[string][]string{
		"A": {"B"},
		"B": {"C"},
		"C": {"A"},
	})
	cycles := DetectLoops(g)
	if len(cycles) != 1 {
		t.Fatalf("cycles = %d, want 1", len(cycles))
	}
	sig := cycles[0].Signature()
	for _, node := range []string{"A", "B", "C"} {
		if !strings.Contains(sig, node) {
			t.Errorf("signature %q missing node %s", sig, node)
		}
	}
}

func TestDetectLoopsTriangleSignatureIsDirectionIndependent(t *testing.T) {
	forward := graphOf(map[string][]string{"A": {"B"}, "B": {"C"}, "C": {"A"}})
	backward := graphOf(map[string][]string{"A": {"C"}, "C": {"B"}, "B": {"A"}})

	f := DetectLoops(forward)
	b := DetectLoops(backward)
	if len(f) != 1 || len(b) != 1 {
		t.Fatalf("cycles = %d/%d, want 1/1", len(f), len(b))
	}
	if f[0].Signature() != b[0].Signature() {
		t.Errorf("signatures differ: %q vs %q", f[0].Signature(), b[0].Signature())
	}
}

func TestDetectLoopsTree(t *testing.T) {
	g := graphOf(map[string][]string{
		"A": {"B", "C"},
		"B": {"D"},
	})
	if cycles := DetectLoops(g); len(cycles) != 0 {
		t.Fatalf("tree produced %d cycles", len(cycles))
	}
}

func TestDetectLoopsMutualEdgeIsNotACycle(t *testing.T) {
	// A and B each list the other as a neighbor; the parent edge must be
	// skipped, not reported as a two-node loop.
	g := graphOf(map[string][]string{
		"A": {"B"},
		"B": {"A"},
	})
	if cycles := DetectLoops(g); len(cycles) != 0 {
		t.Fatalf("mutual edge produced %d cycles", len(cycles))
	}
}

func TestDetectLoopsDisconnectedComponents(t *testing.T) {
	g := graphOf(map[string][]string{
		"A": {"B"},
		"B": {"A"},
		"X": {"Y"},
		"Y": {"Z"},
		"Z": {"X"},
	})
	cycles := DetectLoops(g)
	if len(cycles) != 1 {
		t.Fatalf("cycles = %d, want 1", len(cycles))
	}
	if !strings.Contains(cycles[0].Signature(), "X") {
		t.Errorf("cycle signature %q should cover the X/Y/Z component", cycles[0].Signature())
	}
}
