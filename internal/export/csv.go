package export

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// utf8BOM is prepended to each CSV file for Excel auto-detection.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ExportCSV produces a ZIP archive containing nodes.csv and edges.csv.
func ExportCSV(data *ExportData) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := writeNodesCSV(zw, data.Nodes); err != nil {
		return nil, fmt.Errorf("writing nodes.csv: %w", err)
	}
	if err := writeEdgesCSV(zw, data.Edges); err != nil {
		return nil, fmt.Errorf("writing edges.csv: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing zip: %w", err)
	}
	return buf.Bytes(), nil
}

func writeNodesCSV(zw *zip.Writer, nodes []ExportNode) error {
	w, err := zw.Create("nodes.csv")
	if err != nil {
		return err
	}
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"id", "name", "kind", "phase", "chain_position",
		"status", "voltage", "active_power_kw", "solar", "ev", "battery",
	}); err != nil {
		return err
	}
	for _, n := range nodes {
		voltage := ""
		if n.Voltage != nil {
			voltage = strconv.FormatFloat(*n.Voltage, 'f', -1, 64)
		}
		if err := cw.Write([]string{
			n.ID,
			n.Name,
			n.Kind,
			n.Phase,
			strconv.Itoa(n.ChainPosition),
			n.Status,
			voltage,
			strconv.FormatFloat(n.ActivePowerKw, 'f', -1, 64),
			strconv.FormatBool(n.HasSolar),
			strconv.FormatBool(n.HasEV),
			strconv.FormatBool(n.HasBattery),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeEdgesCSV(zw *zip.Writer, edges []ExportEdge) error {
	w, err := zw.Create("edges.csv")
	if err != nil {
		return err
	}
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"source", "target", "status", "color"}); err != nil {
		return err
	}
	for _, e := range edges {
		if err := cw.Write([]string{e.Source, e.Target, e.Status, e.Color}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
