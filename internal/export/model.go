package export

import (
	"fmt"
	"time"

	"github.com/gridpulse/gridpulse-ui/internal/layout"
)

// ExportData is the top-level export structure containing graph nodes,
// edges, and metadata.
type ExportData struct {
	Version    string            `json:"version"`
	Timestamp  string            `json:"timestamp"`
	Generation uint64            `json:"generation"`
	Filters    map[string]string `json:"filters"`
	Nodes      []ExportNode      `json:"nodes"`
	Edges      []ExportEdge      `json:"edges"`
}

// ExportNode is a simplified node representation for export.
type ExportNode struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Kind          string   `json:"kind"`
	Phase         string   `json:"phase,omitempty"`
	ChainPosition int      `json:"chainPosition,omitempty"`
	Status        string   `json:"status"`
	Voltage       *float64 `json:"voltage,omitempty"`
	ActivePowerKw float64  `json:"activePowerKw,omitempty"`
	HasSolar      bool     `json:"hasSolar,omitempty"`
	HasEV         bool     `json:"hasEV,omitempty"`
	HasBattery    bool     `json:"hasBattery,omitempty"`
}

// ExportEdge is a simplified edge representation for export.
type ExportEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Status string `json:"status"`
	Color  string `json:"color"`
}

// ConvertGraph converts a layout graph into an ExportData structure.
func ConvertGraph(g *layout.Graph, filters map[string]string) *ExportData {
	if filters == nil {
		filters = map[string]string{}
	}

	nodes := make([]ExportNode, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes = append(nodes, ExportNode{
			ID:            n.ID,
			Name:          n.Label,
			Kind:          string(n.Kind),
			Phase:         string(n.Phase),
			ChainPosition: n.ChainPosition,
			Status:        string(n.Status),
			Voltage:       n.Voltage,
			ActivePowerKw: n.ActivePowerKw,
			HasSolar:      n.HasSolar,
			HasEV:         n.HasEV,
			HasBattery:    n.HasBattery,
		})
	}

	edges := make([]ExportEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		edges = append(edges, ExportEdge{
			Source: e.Source,
			Target: e.Target,
			Status: string(e.Status),
			Color:  e.Color,
		})
	}

	return &ExportData{
		Version:    "1.0",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Generation: g.Generation,
		Filters:    filters,
		Nodes:      nodes,
		Edges:      edges,
	}
}

// ExportFilename generates a filename for an exported file.
func ExportFilename(format string) string {
	ts := time.Now().UTC().Format("20060102-150405")
	return fmt.Sprintf("gridpulse-grid-%s.%s", ts, format)
}
