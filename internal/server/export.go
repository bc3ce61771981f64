package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gridpulse/gridpulse-ui/internal/export"
	"github.com/gridpulse/gridpulse-ui/internal/layout"
)

// handleExport handles GET /api/v1/export/{format}.
// Supported formats: json, csv, dot, png, svg.
// Query parameters:
//   - direction: layout direction for the exported graph (default: saved pref)
//   - scale: PNG scale factor 1-4 (default 2)
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")

	switch format {
	case "json", "csv", "dot", "png", "svg":
		// valid
	default:
		writeError(w, http.StatusBadRequest, "unsupported export format: "+format)
		return
	}

	dirParam := r.URL.Query().Get("direction")
	if dirParam == "" {
		dirParam = string(s.prefs.Get().Direction)
	}
	dir := layout.ParseDirection(dirParam)

	scale := 2
	if scaleStr := r.URL.Query().Get("scale"); scaleStr != "" {
		v, err := strconv.Atoi(scaleStr)
		if err != nil || v < 1 || v > 4 {
			writeError(w, http.StatusBadRequest, "scale must be an integer between 1 and 4")
			return
		}
		scale = v
	}

	filters := map[string]string{"direction": string(dir)}
	data := export.ConvertGraph(s.buildGraph(dir), filters)

	rankDir := "TB"
	if dir == layout.Horizontal {
		rankDir = "LR"
	}

	var output []byte
	var contentType string
	var fileExt string
	var err error

	switch format {
	case "json":
		output, err = export.ExportJSON(data)
		contentType = "application/json"
		fileExt = "json"
	case "csv":
		output, err = export.ExportCSV(data)
		contentType = "application/zip"
		fileExt = "zip"
	case "dot":
		output, err = export.ExportDOT(data, export.DOTOptions{RankDir: rankDir})
		contentType = "text/vnd.graphviz"
		fileExt = "dot"
	case "png", "svg":
		if !export.GraphvizAvailable() {
			writeError(w, http.StatusServiceUnavailable, "Graphviz is not installed on the server")
			return
		}
		dot, dotErr := export.ExportDOT(data, export.DOTOptions{RankDir: rankDir})
		if dotErr != nil {
			err = dotErr
			break
		}
		output, err = export.RenderDOT(dot, format, scale)
		if format == "png" {
			contentType = "image/png"
		} else {
			contentType = "image/svg+xml"
		}
		fileExt = format
	}

	if err != nil {
		s.logger.Error("export failed", "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, "export failed: "+err.Error())
		return
	}

	filename := export.ExportFilename(fileExt)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(output)))
	w.Write(output)
}
