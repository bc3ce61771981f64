// Package layout turns a grid snapshot into a positioned node-and-edge
// graph for the dashboard. Node positions are a pure function of the
// topology shape and direction; edge styling additionally depends on the
// target node's current status, so the graph doubles as a live status view.
package layout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gridpulse/gridpulse-ui/internal/grid"
)

// Direction selects the main layout axis.
type Direction string

const (
	Vertical   Direction = "vertical"   // transformer on top, chains grow downward
	Horizontal Direction = "horizontal" // transformer on the left, chains grow rightward
)

// ParseDirection maps a string to a Direction, defaulting to Vertical.
func ParseDirection(s string) Direction {
	if strings.EqualFold(s, string(Horizontal)) {
		return Horizontal
	}
	return Vertical
}

// NodeKind is the closed set of graph node kinds.
type NodeKind string

const (
	KindTransformer NodeKind = "transformer"
	KindPhase       NodeKind = "phase"
	KindProsumer    NodeKind = "prosumer"
)

// Node is one positioned graph node.
type Node struct {
	ID            string             `json:"id"`
	Kind          NodeKind           `json:"kind"`
	Label         string             `json:"label"`
	X             float64            `json:"x"`
	Y             float64            `json:"y"`
	Status        grid.VoltageStatus `json:"status"`
	Phase         grid.Phase         `json:"phase,omitempty"`
	ChainPosition int                `json:"chainPosition,omitempty"`
	HasSolar      bool               `json:"hasSolar,omitempty"`
	HasEV         bool               `json:"hasEV,omitempty"`
	HasBattery    bool               `json:"hasBattery,omitempty"`
	Voltage       *float64           `json:"voltage,omitempty"`
	ActivePowerKw float64            `json:"activePowerKw,omitempty"`
}

// Edge is one styled graph edge. Styling derives from the target node's
// status so that a violation at any point recolors its feeding edge.
type Edge struct {
	ID     string             `json:"id"`
	Source string             `json:"source"`
	Target string             `json:"target"`
	Status grid.VoltageStatus `json:"status"`
	Color  string             `json:"color"`
	Width  float64            `json:"width"`
}

// Graph is the complete layout result.
type Graph struct {
	Direction  Direction `json:"direction"`
	Nodes      []Node    `json:"nodes"`
	Edges      []Edge    `json:"edges"`
	Generation uint64    `json:"generation"`
}

// Grid spacing in layout units.
const (
	phaseSpacing = 220.0 // distance between adjacent phase columns/rows
	chainSpacing = 120.0 // distance between adjacent prosumers in a chain
	rootOffset   = 140.0 // distance from the transformer to the phase row
)

// Edge stroke styling per target status. Critical gets the highest
// contrast so violations stand out on the live graph.
var edgeStyles = map[grid.VoltageStatus]struct {
	Color string
	Width float64
}{
	grid.StatusNormal:   {"#28a745", 1.5},
	grid.StatusWarning:  {"#ffc107", 2.5},
	grid.StatusCritical: {"#dc3545", 3.5},
	grid.StatusUnknown:  {"#9e9e9e", 1.5},
}

// Build computes the positioned graph for a snapshot. Re-running with
// unchanged inputs produces identical output: phases are laid out in fixed
// A, B, C order and prosumers ordered by chain position (id as tiebreaker).
func Build(snap *grid.Snapshot, dir Direction) *Graph {
	g := &Graph{Direction: dir, Generation: snap.Generation}

	phases := orderedPhases(snap)

	// Transformer at the root, centered across the phase axis.
	center := phaseSpacing * float64(len(phases)-1) / 2
	if len(phases) == 0 {
		center = 0
	}
	txID := "transformer:" + snap.Transformer.ID
	g.Nodes = append(g.Nodes, place(Node{
		ID:     txID,
		Kind:   KindTransformer,
		Label:  snap.Transformer.Name,
		Status: grid.StatusNormal,
	}, center, 0, dir))

	for i, pg := range phases {
		cross := phaseSpacing * float64(i)
		phaseID := "phase:" + string(pg.Phase)
		phaseStatus := worstStatus(pg.Prosumers)

		g.Nodes = append(g.Nodes, place(Node{
			ID:     phaseID,
			Kind:   KindPhase,
			Label:  "Phase " + string(pg.Phase),
			Status: phaseStatus,
			Phase:  pg.Phase,
		}, cross, rootOffset, dir))

		g.Edges = append(g.Edges, styleEdge(txID, phaseID, phaseStatus))

		prev := phaseID
		chain := orderedChain(pg.Prosumers)
		for j, n := range chain {
			main := rootOffset + chainSpacing*float64(j+1)
			node := place(Node{
				ID:            n.ID,
				Kind:          KindProsumer,
				Label:         n.Name,
				Status:        n.Status,
				Phase:         n.Phase,
				ChainPosition: n.ChainPosition,
				HasSolar:      n.HasSolar,
				HasEV:         n.HasEV,
				HasBattery:    n.HasBattery,
				Voltage:       n.Voltage,
				ActivePowerKw: n.ActivePowerKw,
			}, cross, main, dir)
			g.Nodes = append(g.Nodes, node)

			g.Edges = append(g.Edges, styleEdge(prev, n.ID, n.Status))
			prev = n.ID
		}
	}

	return g
}

// orderedPhases returns the snapshot's phase groups in fixed A, B, C order.
func orderedPhases(snap *grid.Snapshot) []grid.PhaseView {
	byPhase := make(map[grid.Phase]grid.PhaseView, len(snap.Phases))
	for _, pg := range snap.Phases {
		byPhase[pg.Phase] = pg
	}
	out := make([]grid.PhaseView, 0, len(grid.Phases))
	for _, p := range grid.Phases {
		if pg, ok := byPhase[p]; ok {
			out = append(out, pg)
		}
	}
	return out
}

// orderedChain sorts prosumers by ascending chain position, id as tiebreaker.
func orderedChain(prosumers []grid.NodeView) []grid.NodeView {
	chain := make([]grid.NodeView, len(prosumers))
	copy(chain, prosumers)
	sort.SliceStable(chain, func(i, j int) bool {
		if chain[i].ChainPosition != chain[j].ChainPosition {
			return chain[i].ChainPosition < chain[j].ChainPosition
		}
		return chain[i].ID < chain[j].ID
	})
	return chain
}

// place assigns coordinates: cross runs along the phase axis, main along
// the chain axis. Vertical puts main on Y; Horizontal swaps the axes.
func place(n Node, cross, main float64, dir Direction) Node {
	if dir == Horizontal {
		n.X, n.Y = main, cross
	} else {
		n.X, n.Y = cross, main
	}
	return n
}

func styleEdge(source, target string, status grid.VoltageStatus) Edge {
	style, ok := edgeStyles[status]
	if !ok {
		style = edgeStyles[grid.StatusUnknown]
	}
	return Edge{
		ID:     fmt.Sprintf("%s->%s", source, target),
		Source: source,
		Target: target,
		Status: status,
		Color:  style.Color,
		Width:  style.Width,
	}
}

// worstStatus aggregates member statuses for a phase node:
// any critical → critical, else any warning → warning, else any normal →
// normal, else unknown.
func worstStatus(prosumers []grid.NodeView) grid.VoltageStatus {
	worst := grid.StatusUnknown
	rank := map[grid.VoltageStatus]int{
		grid.StatusUnknown:  0,
		grid.StatusNormal:   1,
		grid.StatusWarning:  2,
		grid.StatusCritical: 3,
	}
	for _, n := range prosumers {
		if rank[n.Status] > rank[worst] {
			worst = n.Status
		}
	}
	return worst
}
