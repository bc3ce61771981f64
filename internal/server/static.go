package server

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"regexp"
	"strings"
)

//go:embed all:static
var staticFS embed.FS

// hashedAssetRe matches the content-hashed filenames the Vite build emits
// under assets/, e.g. index-D4f8kQ2x.js.
var hashedAssetRe = regexp.MustCompile(`-[a-zA-Z0-9]{8,}\.\w+$`)

// newStaticHandler serves the embedded dashboard bundle. Paths carrying a
// file extension map to embedded files; everything else falls back to
// index.html so client-side routes survive a reload. Content-hashed assets
// are cached as immutable, the rest is no-cache.
func newStaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("failed to create sub filesystem: " + err.Error())
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimPrefix(r.URL.Path, "/")
		if p == "" {
			p = "index.html"
		}

		if hasExtension(p) {
			if _, err := fs.Stat(sub, p); err == nil {
				setCacheHeaders(w, p)
				fileServer.ServeHTTP(w, r)
				return
			}
		}

		// Not an embedded file: let the dashboard router handle the path.
		w.Header().Set("Cache-Control", "no-cache")
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}

func setCacheHeaders(w http.ResponseWriter, p string) {
	if isHashedAsset(p) {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
}

// isHashedAsset reports whether the path is a content-hashed build asset.
func isHashedAsset(p string) bool {
	if !strings.HasPrefix(p, "assets/") {
		return false
	}
	return hashedAssetRe.MatchString(p)
}

func hasExtension(p string) bool {
	return path.Ext(p) != ""
}
