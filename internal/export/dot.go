package export

import (
	"fmt"
	"strings"
)

// DOTOptions configures DOT graph rendering.
type DOTOptions struct {
	RankDir string // "TB" (default), "LR", "BT", "RL"
}

// Node fill colors per voltage status, matching the frontend palette.
var statusFills = map[string]string{
	"normal":   "#d4edda",
	"warning":  "#fff3cd",
	"critical": "#f8d7da",
	"unknown":  "#e2e3e5",
}

// Phase cluster background color.
const clusterFillColor = "#dae8fc"

// ExportDOT produces a Graphviz DOT format representation of the export
// data. Prosumers are grouped into one cluster per phase; the transformer
// and phase bus nodes stay at the top level.
func ExportDOT(data *ExportData, opts DOTOptions) ([]byte, error) {
	rankDir := opts.RankDir
	if rankDir == "" {
		rankDir = "TB"
	}

	var b strings.Builder

	b.WriteString("digraph gridpulse {\n")
	fmt.Fprintf(&b, "  rankdir=%s;\n", rankDir)
	b.WriteString("  node [shape=box, style=\"rounded,filled\"];\n\n")

	for _, n := range data.Nodes {
		if n.Kind == "prosumer" {
			continue
		}
		writeNode(&b, n, "  ")
	}
	b.WriteString("\n")

	for _, phase := range phaseOrder(data.Nodes) {
		dotID := sanitizeDotID(phase)
		fmt.Fprintf(&b, "  subgraph cluster_%s {\n", dotID)
		fmt.Fprintf(&b, "    label=%s;\n", quoteDot("Phase "+phase))
		fmt.Fprintf(&b, "    style=filled; fillcolor=%q;\n", clusterFillColor)
		for _, n := range data.Nodes {
			if n.Kind == "prosumer" && n.Phase == phase {
				writeNode(&b, n, "    ")
			}
		}
		b.WriteString("  }\n\n")
	}

	for _, e := range data.Edges {
		writeEdge(&b, e)
	}

	b.WriteString("}\n")
	return []byte(b.String()), nil
}

// phaseOrder returns the distinct prosumer phases in first-seen order.
func phaseOrder(nodes []ExportNode) []string {
	seen := make(map[string]bool)
	var order []string
	for _, n := range nodes {
		if n.Kind != "prosumer" || n.Phase == "" || seen[n.Phase] {
			continue
		}
		seen[n.Phase] = true
		order = append(order, n.Phase)
	}
	return order
}

func writeNode(b *strings.Builder, n ExportNode, indent string) {
	color := statusFills[n.Status]
	if color == "" {
		color = statusFills["unknown"]
	}
	label := n.Name
	if n.Voltage != nil {
		label = fmt.Sprintf("%s %.1f V", n.Name, *n.Voltage)
	}
	fmt.Fprintf(b, "%s%s [label=%s, fillcolor=%q];\n",
		indent, quoteDot(n.ID), quoteDot(label), color)
}

func writeEdge(b *strings.Builder, e ExportEdge) {
	attrs := []string{fmt.Sprintf("color=%q", e.Color)}
	if e.Status == "critical" {
		attrs = append(attrs, "style=bold")
	}

	fmt.Fprintf(b, "  %s -> %s [%s];\n",
		quoteDot(e.Source), quoteDot(e.Target), strings.Join(attrs, ", "))
}

// quoteDot wraps a string in double quotes, escaping internal quotes.
func quoteDot(s string) string {
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

// sanitizeDotID replaces non-alphanumeric characters for use as a DOT
// subgraph ID suffix.
func sanitizeDotID(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
