package feeder

import (
	"reflect"
	"testing"

	"github.com/gridpulse/gridpulse-ui/internal/grid"
)

func node(id string, phase grid.Phase, pos int, status grid.VoltageStatus) grid.NodeView {
	return grid.NodeView{
		ProsumerNode: grid.ProsumerNode{ID: id, Name: id, Phase: phase, ChainPosition: pos},
		Status:       status,
	}
}

func snapshot(phases ...grid.PhaseView) *grid.Snapshot {
	return &grid.Snapshot{Phases: phases}
}

func segmentPaths(segs []ChainSegment) [][]string {
	var paths [][]string
	for _, s := range segs {
		paths = append(paths, s.Path)
	}
	return paths
}

func TestAnalyzeSingleRun(t *testing.T) {
	snap := snapshot(grid.PhaseView{Phase: grid.PhaseA, Prosumers: []grid.NodeView{
		node("p1", grid.PhaseA, 1, grid.StatusNormal),
		node("p2", grid.PhaseA, 2, grid.StatusCritical),
		node("p3", grid.PhaseA, 3, grid.StatusWarning),
		node("p4", grid.PhaseA, 4, grid.StatusUnknown),
		node("p5", grid.PhaseA, 5, grid.StatusNormal),
	}})

	res := Analyze(snap, Options{})

	if len(res.Origins) != 1 || res.Origins[0].ID != "p2" {
		t.Fatalf("origins = %+v, want single origin p2", res.Origins)
	}
	if len(res.Impacted) != 2 {
		t.Fatalf("impacted = %+v, want p3 and p4", res.Impacted)
	}
	if res.Impacted[0].ID != "p3" || res.Impacted[0].Upstream != "p2" {
		t.Errorf("impacted[0] = %+v, want p3 upstream of p2", res.Impacted[0])
	}
	if res.Impacted[1].ID != "p4" || res.Impacted[1].Upstream != "p3" {
		t.Errorf("impacted[1] = %+v, want p4 upstream of p3", res.Impacted[1])
	}
	want := [][]string{{"p2", "p3", "p4"}}
	if got := segmentPaths(res.Segments); !reflect.DeepEqual(got, want) {
		t.Errorf("segment paths = %v, want %v", got, want)
	}
	if res.Summary.MaxSpan != 2 || res.Summary.OriginCount != 1 || res.Summary.TotalProsumers != 5 {
		t.Errorf("summary = %+v", res.Summary)
	}
}

func TestRunWithoutCriticalIgnored(t *testing.T) {
	snap := snapshot(grid.PhaseView{Phase: grid.PhaseB, Prosumers: []grid.NodeView{
		node("p1", grid.PhaseB, 1, grid.StatusWarning),
		node("p2", grid.PhaseB, 2, grid.StatusWarning),
	}})

	res := Analyze(snap, Options{})

	if len(res.Origins) != 0 || len(res.Impacted) != 0 || len(res.Segments) != 0 {
		t.Errorf("warnings alone must not produce an impact run, got %+v", res)
	}
}

func TestUpstreamDegradedNotAttributed(t *testing.T) {
	// The drop propagates away from the transformer: p1 sits upstream of
	// the violation and stays unattributed even though it is degraded.
	snap := snapshot(grid.PhaseView{Phase: grid.PhaseA, Prosumers: []grid.NodeView{
		node("p1", grid.PhaseA, 1, grid.StatusWarning),
		node("p2", grid.PhaseA, 2, grid.StatusCritical),
		node("p3", grid.PhaseA, 3, grid.StatusWarning),
	}})

	res := Analyze(snap, Options{})

	if len(res.Origins) != 1 || res.Origins[0].ID != "p2" {
		t.Fatalf("origins = %+v, want p2", res.Origins)
	}
	if len(res.Impacted) != 1 || res.Impacted[0].ID != "p3" {
		t.Errorf("impacted = %+v, want only p3", res.Impacted)
	}
}

func TestMaxSpanBoundsRun(t *testing.T) {
	snap := snapshot(grid.PhaseView{Phase: grid.PhaseA, Prosumers: []grid.NodeView{
		node("p1", grid.PhaseA, 1, grid.StatusCritical),
		node("p2", grid.PhaseA, 2, grid.StatusWarning),
		node("p3", grid.PhaseA, 3, grid.StatusWarning),
	}})

	res := Analyze(snap, Options{MaxSpan: 1})

	if len(res.Impacted) != 1 || res.Impacted[0].ID != "p2" {
		t.Errorf("impacted = %+v, want run cut after p2", res.Impacted)
	}
	if res.Summary.MaxSpan != 1 {
		t.Errorf("MaxSpan = %d, want 1", res.Summary.MaxSpan)
	}
}

func TestScrambledInputOrderedByChainPosition(t *testing.T) {
	snap := snapshot(grid.PhaseView{Phase: grid.PhaseA, Prosumers: []grid.NodeView{
		node("p3", grid.PhaseA, 3, grid.StatusWarning),
		node("p1", grid.PhaseA, 1, grid.StatusCritical),
		node("p2", grid.PhaseA, 2, grid.StatusWarning),
	}})

	res := Analyze(snap, Options{})

	want := [][]string{{"p1", "p2", "p3"}}
	if got := segmentPaths(res.Segments); !reflect.DeepEqual(got, want) {
		t.Errorf("segment paths = %v, want %v", got, want)
	}
}

func TestPhaseFilter(t *testing.T) {
	snap := snapshot(
		grid.PhaseView{Phase: grid.PhaseA, Prosumers: []grid.NodeView{
			node("a1", grid.PhaseA, 1, grid.StatusCritical),
			node("a2", grid.PhaseA, 2, grid.StatusWarning),
		}},
		grid.PhaseView{Phase: grid.PhaseB, Prosumers: []grid.NodeView{
			node("b1", grid.PhaseB, 1, grid.StatusCritical),
			node("b2", grid.PhaseB, 2, grid.StatusWarning),
		}},
	)

	res := Analyze(snap, Options{Phase: grid.PhaseB})

	if len(res.Origins) != 1 || res.Origins[0].ID != "b1" {
		t.Errorf("origins = %+v, want only phase B", res.Origins)
	}
	if len(res.Impacted) != 1 || res.Impacted[0].ID != "b2" {
		t.Errorf("impacted = %+v, want only phase B", res.Impacted)
	}
	if res.Summary.TotalProsumers != 4 {
		t.Errorf("TotalProsumers = %d, want network-wide 4", res.Summary.TotalProsumers)
	}
}

func TestAnalyzeForProsumer(t *testing.T) {
	snap := snapshot(
		grid.PhaseView{Phase: grid.PhaseA, Prosumers: []grid.NodeView{
			node("a1", grid.PhaseA, 1, grid.StatusCritical),
			node("a2", grid.PhaseA, 2, grid.StatusWarning),
		}},
		grid.PhaseView{Phase: grid.PhaseB, Prosumers: []grid.NodeView{
			node("b1", grid.PhaseB, 1, grid.StatusCritical),
			node("b2", grid.PhaseB, 2, grid.StatusWarning),
		}},
	)

	res := AnalyzeForProsumer(snap, "a2", Options{})

	if len(res.Origins) != 1 || res.Origins[0].ID != "a1" {
		t.Errorf("origins = %+v, want only a1", res.Origins)
	}
	if len(res.Impacted) != 1 || res.Impacted[0].ID != "a2" {
		t.Errorf("impacted = %+v, want only a2", res.Impacted)
	}
	if len(res.Segments) != 1 || res.Segments[0].OriginID != "a1" {
		t.Errorf("segments = %+v, want only a1's run", res.Segments)
	}

	// An origin queried directly keeps its own run.
	res = AnalyzeForProsumer(snap, "b1", Options{})
	if len(res.Origins) != 1 || res.Origins[0].ID != "b1" {
		t.Errorf("origins = %+v, want b1 itself", res.Origins)
	}

	// A healthy prosumer yields an empty result.
	res = AnalyzeForProsumer(snap, "missing", Options{})
	if len(res.Origins) != 0 || len(res.Impacted) != 0 || len(res.Segments) != 0 {
		t.Errorf("unrelated prosumer must yield empty result, got %+v", res)
	}
}

func TestNilSnapshot(t *testing.T) {
	res := Analyze(nil, Options{})
	if res.Origins == nil || res.Impacted == nil || res.Segments == nil {
		t.Error("result slices must be non-nil for JSON serialization")
	}
	if res.Summary.TotalProsumers != 0 {
		t.Errorf("TotalProsumers = %d, want 0", res.Summary.TotalProsumers)
	}
}
