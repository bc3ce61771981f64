// Package feeder implements chain-walk impact analysis over the radial
// feeder topology. On a radial low-voltage feeder, voltage drop accumulates
// away from the transformer, so a violation at one connection point tends
// to drag every point further down the same phase chain with it. The
// analysis identifies the most upstream violation per run (the origin) and
// attributes the degraded nodes downstream of it.
package feeder

import (
	"sort"

	"github.com/gridpulse/gridpulse-ui/internal/grid"
)

// Options configures impact analysis behavior.
type Options struct {
	MaxSpan int        // limit how far downstream an origin is followed, 0 = unlimited
	Phase   grid.Phase // filter results to one phase (optional)
}

// Origin is the most upstream critical node of a degraded run, the point
// the downstream impact is attributed to.
type Origin struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Phase         grid.Phase         `json:"phase"`
	ChainPosition int                `json:"chainPosition"`
	Status        grid.VoltageStatus `json:"status"`
	Voltage       *float64           `json:"voltage"`
}

// ImpactedNode is a degraded prosumer downstream of one or more origins
// on the same phase chain.
type ImpactedNode struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Phase    grid.Phase         `json:"phase"`
	Status   grid.VoltageStatus `json:"status"`
	Upstream string             `json:"upstream"` // direct upstream neighbor in the run
	Origins  []string           `json:"origins"`  // origin IDs this node is attributed to
}

// ChainSegment is one contiguous degraded run: the path from an origin to
// the last degraded node downstream of it.
type ChainSegment struct {
	OriginID string     `json:"originId"`
	Phase    grid.Phase `json:"phase"`
	Path     []string   `json:"path"` // node names, origin first
	Span     int        `json:"span"` // nodes downstream of the origin
}

// Summary provides aggregate counts for the analysis result.
type Summary struct {
	TotalProsumers int `json:"totalProsumers"`
	OriginCount    int `json:"originCount"`
	ImpactedCount  int `json:"impactedCount"`
	SegmentCount   int `json:"segmentCount"`
	MaxSpan        int `json:"maxSpan"`
}

// AnalysisResult is the complete output of feeder impact analysis.
type AnalysisResult struct {
	Origins  []Origin       `json:"origins"`
	Impacted []ImpactedNode `json:"impacted"`
	Segments []ChainSegment `json:"segments"`
	Summary  Summary        `json:"summary"`
}

// degraded reports whether a node participates in an impact run. Unknown
// nodes are included: a meter that went silent inside a degraded run is
// treated as part of it rather than as a gap.
func degraded(s grid.VoltageStatus) bool {
	return s == grid.StatusCritical || s == grid.StatusWarning || s == grid.StatusUnknown
}

// orderedChain returns the phase's prosumers sorted by chain position with
// ID as the tie-break, transformer side first.
func orderedChain(pv grid.PhaseView) []grid.NodeView {
	chain := make([]grid.NodeView, len(pv.Prosumers))
	copy(chain, pv.Prosumers)
	sort.SliceStable(chain, func(i, j int) bool {
		if chain[i].ChainPosition != chain[j].ChainPosition {
			return chain[i].ChainPosition < chain[j].ChainPosition
		}
		return chain[i].ID < chain[j].ID
	})
	return chain
}

// walkRun follows a degraded run downstream from the origin at chain[start].
// It stops at the first normal node (voltage recovered) or when maxSpan is
// reached, and returns the impacted nodes and the segment for the run.
func walkRun(chain []grid.NodeView, start int, phase grid.Phase, maxSpan int) ([]ImpactedNode, ChainSegment) {
	origin := chain[start]
	seg := ChainSegment{
		OriginID: origin.ID,
		Phase:    phase,
		Path:     []string{nodeLabel(origin)},
	}

	var impacted []ImpactedNode
	upstream := origin.ID
	for i := start + 1; i < len(chain); i++ {
		n := chain[i]
		if !degraded(n.Status) {
			break
		}
		if maxSpan > 0 && seg.Span >= maxSpan {
			break
		}
		impacted = append(impacted, ImpactedNode{
			ID:       n.ID,
			Name:     n.Name,
			Phase:    phase,
			Status:   n.Status,
			Upstream: upstream,
			Origins:  []string{origin.ID},
		})
		seg.Path = append(seg.Path, nodeLabel(n))
		seg.Span++
		upstream = n.ID
	}
	return impacted, seg
}

func nodeLabel(n grid.NodeView) string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// Analyze performs impact analysis over a full snapshot. Phases are
// processed in fixed display order, so the result is deterministic for a
// given snapshot.
func Analyze(snap *grid.Snapshot, opts Options) *AnalysisResult {
	result := &AnalysisResult{
		Origins:  []Origin{},
		Impacted: []ImpactedNode{},
		Segments: []ChainSegment{},
	}
	if snap == nil {
		return result
	}

	total := 0
	for _, pv := range snap.Phases {
		total += len(pv.Prosumers)
		chain := orderedChain(pv)

		// Split the chain into contiguous degraded runs. A run with at
		// least one critical node gets an origin: its most upstream
		// critical node. Degraded nodes upstream of the origin are not
		// attributed since the drop only propagates away from the
		// transformer.
		i := 0
		for i < len(chain) {
			if !degraded(chain[i].Status) {
				i++
				continue
			}
			end := i
			for end < len(chain) && degraded(chain[end].Status) {
				end++
			}

			originIdx := -1
			for j := i; j < end; j++ {
				if chain[j].Status == grid.StatusCritical {
					originIdx = j
					break
				}
			}
			if originIdx >= 0 {
				n := chain[originIdx]
				result.Origins = append(result.Origins, Origin{
					ID:            n.ID,
					Name:          n.Name,
					Phase:         pv.Phase,
					ChainPosition: n.ChainPosition,
					Status:        n.Status,
					Voltage:       n.Voltage,
				})

				impacted, seg := walkRun(chain, originIdx, pv.Phase, opts.MaxSpan)
				result.Impacted = append(result.Impacted, impacted...)
				if seg.Span > 0 {
					result.Segments = append(result.Segments, seg)
				}
			}
			i = end
		}
	}

	result.Summary = summarize(result, total)

	if opts.Phase != "" {
		return filterByPhase(result, opts.Phase)
	}
	return result
}

// AnalyzeForProsumer performs impact analysis filtered to a single
// connection point: the segments it participates in, the origins those
// segments trace back to, and its own impact record if any.
func AnalyzeForProsumer(snap *grid.Snapshot, prosumerID string, opts Options) *AnalysisResult {
	full := Analyze(snap, opts)

	filtered := &AnalysisResult{
		Origins:  []Origin{},
		Impacted: []ImpactedNode{},
		Segments: []ChainSegment{},
	}

	relevantOrigins := make(map[string]bool)
	for _, im := range full.Impacted {
		if im.ID == prosumerID {
			filtered.Impacted = append(filtered.Impacted, im)
			for _, o := range im.Origins {
				relevantOrigins[o] = true
			}
		}
	}
	// The prosumer may itself be an origin.
	for _, o := range full.Origins {
		if o.ID == prosumerID {
			relevantOrigins[o.ID] = true
		}
	}

	for _, o := range full.Origins {
		if relevantOrigins[o.ID] {
			filtered.Origins = append(filtered.Origins, o)
		}
	}
	for _, seg := range full.Segments {
		if relevantOrigins[seg.OriginID] {
			filtered.Segments = append(filtered.Segments, seg)
		}
	}

	filtered.Summary = summarize(filtered, full.Summary.TotalProsumers)
	return filtered
}

// filterByPhase filters analysis results to a single phase.
func filterByPhase(result *AnalysisResult, phase grid.Phase) *AnalysisResult {
	filtered := &AnalysisResult{
		Origins:  []Origin{},
		Impacted: []ImpactedNode{},
		Segments: []ChainSegment{},
	}

	for _, o := range result.Origins {
		if o.Phase == phase {
			filtered.Origins = append(filtered.Origins, o)
		}
	}
	for _, im := range result.Impacted {
		if im.Phase == phase {
			filtered.Impacted = append(filtered.Impacted, im)
		}
	}
	for _, seg := range result.Segments {
		if seg.Phase == phase {
			filtered.Segments = append(filtered.Segments, seg)
		}
	}

	filtered.Summary = summarize(filtered, result.Summary.TotalProsumers)
	return filtered
}

func summarize(r *AnalysisResult, total int) Summary {
	maxSpan := 0
	for _, seg := range r.Segments {
		if seg.Span > maxSpan {
			maxSpan = seg.Span
		}
	}
	return Summary{
		TotalProsumers: total,
		OriginCount:    len(r.Origins),
		ImpactedCount:  len(r.Impacted),
		SegmentCount:   len(r.Segments),
		MaxSpan:        maxSpan,
	}
}
