package layout

import (
	"reflect"
	"testing"
	"time"

	"github.com/gridpulse/gridpulse-ui/internal/grid"
)

var testLimits = grid.LimitConfig{
	Nominal:      230,
	LowerLimit:   218,
	UpperLimit:   242,
	WarningLower: 222,
	WarningUpper: 238,
}

func fp(v float64) *float64 { return &v }

func testSnapshot(t *testing.T) *grid.Snapshot {
	t.Helper()
	now := time.Now()
	store := grid.NewStore(0, nil)
	store.ReplaceSnapshot(&grid.Topology{
		Transformer: grid.Transformer{ID: "tx-1", Name: "TX Main"},
		Limits:      testLimits,
		FetchedAt:   now,
		Phases: []*grid.PhaseGroup{
			// Deliberately out of display order; Build must fix it.
			{Phase: grid.PhaseC, Prosumers: []*grid.ProsumerNode{
				{ID: "p5", Name: "P5", Phase: grid.PhaseC, ChainPosition: 1, Voltage: fp(245), LastUpdatedAt: now},
			}},
			{Phase: grid.PhaseA, Prosumers: []*grid.ProsumerNode{
				{ID: "p2", Name: "P2", Phase: grid.PhaseA, ChainPosition: 2, Voltage: fp(231), LastUpdatedAt: now},
				{ID: "p1", Name: "P1", Phase: grid.PhaseA, ChainPosition: 1, Voltage: fp(230), LastUpdatedAt: now},
			}},
			{Phase: grid.PhaseB, Prosumers: []*grid.ProsumerNode{
				{ID: "p3", Name: "P3", Phase: grid.PhaseB, ChainPosition: 1, Voltage: fp(239), LastUpdatedAt: now},
			}},
		},
	})
	return store.Snapshot()
}

func nodeByID(g *Graph, id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

func edgeByTarget(g *Graph, target string) (Edge, bool) {
	for _, e := range g.Edges {
		if e.Target == target {
			return e, true
		}
	}
	return Edge{}, false
}

func TestBuildDeterminism(t *testing.T) {
	snap := testSnapshot(t)

	a := Build(snap, Vertical)
	b := Build(snap, Vertical)
	if !reflect.DeepEqual(a, b) {
		t.Error("two layouts over the same snapshot and direction differ")
	}
}

func TestPhaseOrderFixed(t *testing.T) {
	snap := testSnapshot(t)
	g := Build(snap, Vertical)

	pa, _ := nodeByID(g, "phase:A")
	pb, _ := nodeByID(g, "phase:B")
	pc, _ := nodeByID(g, "phase:C")
	if !(pa.X < pb.X && pb.X < pc.X) {
		t.Errorf("phase X order = %v/%v/%v, want A < B < C regardless of input order", pa.X, pb.X, pc.X)
	}
}

func TestChainOrderingAndEdges(t *testing.T) {
	snap := testSnapshot(t)
	g := Build(snap, Vertical)

	p1, _ := nodeByID(g, "p1")
	p2, _ := nodeByID(g, "p2")
	if !(p1.Y < p2.Y) {
		t.Errorf("p1.Y=%v p2.Y=%v, want chain position 1 nearer the root", p1.Y, p2.Y)
	}

	// Chain: phase:A → p1 → p2.
	e1, ok := edgeByTarget(g, "p1")
	if !ok || e1.Source != "phase:A" {
		t.Errorf("edge into p1 = %+v, want source phase:A", e1)
	}
	e2, ok := edgeByTarget(g, "p2")
	if !ok || e2.Source != "p1" {
		t.Errorf("edge into p2 = %+v, want source p1", e2)
	}

	// Transformer feeds each phase.
	ep, ok := edgeByTarget(g, "phase:A")
	if !ok || ep.Source != "transformer:tx-1" {
		t.Errorf("edge into phase:A = %+v, want source transformer:tx-1", ep)
	}
}

func TestEdgeStyledByTargetStatus(t *testing.T) {
	snap := testSnapshot(t)
	g := Build(snap, Vertical)

	// p5 is at 245V (critical): its feeding edge gets the highest contrast.
	e, ok := edgeByTarget(g, "p5")
	if !ok {
		t.Fatal("no edge into p5")
	}
	if e.Status != grid.StatusCritical {
		t.Errorf("edge status = %v, want %v", e.Status, grid.StatusCritical)
	}
	if e.Width <= edgeStyles[grid.StatusNormal].Width {
		t.Error("critical edge must be wider than normal edge")
	}

	// The violation propagates to the phase edge via worst-status aggregation.
	pe, _ := edgeByTarget(g, "phase:C")
	if pe.Status != grid.StatusCritical {
		t.Errorf("phase edge status = %v, want %v", pe.Status, grid.StatusCritical)
	}
}

func TestHorizontalSwapsAxes(t *testing.T) {
	snap := testSnapshot(t)
	v := Build(snap, Vertical)
	h := Build(snap, Horizontal)

	nv, _ := nodeByID(v, "p2")
	nh, _ := nodeByID(h, "p2")
	if nv.X != nh.Y || nv.Y != nh.X {
		t.Errorf("horizontal layout should transpose coordinates: v=(%v,%v) h=(%v,%v)",
			nv.X, nv.Y, nh.X, nh.Y)
	}
}

func TestParseDirection(t *testing.T) {
	if d := ParseDirection("horizontal"); d != Horizontal {
		t.Errorf("ParseDirection(horizontal) = %v", d)
	}
	if d := ParseDirection("HORIZONTAL"); d != Horizontal {
		t.Errorf("ParseDirection is case-insensitive, got %v", d)
	}
	if d := ParseDirection(""); d != Vertical {
		t.Errorf("empty direction should default to vertical, got %v", d)
	}
	if d := ParseDirection("diagonal"); d != Vertical {
		t.Errorf("unknown direction should default to vertical, got %v", d)
	}
}
