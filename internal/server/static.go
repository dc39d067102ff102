package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// staticHandler serves the editor bundle from the configured directory
// Unknown paths fall back to index.html so client-side routing works
type staticHandler struct {
	root http.Dir
	fs   http.Handler
	dir  string
}

func newStaticHandler(dir string) http.Handler {
	root := http.Dir(dir)
	return &staticHandler{
		root: root,
		fs:   http.FileServer(root),
		dir:  dir,
	}
}

// ServeHTTP serves the requested asset, or index.html when the path
// does not map to an existing file
func (sh *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Reject path traversal before touching the filesystem
	path := filepath.Clean(r.URL.Path)
	if strings.Contains(path, "..") {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	full := filepath.Join(sh.dir, path)
	if info, err := os.Stat(full); err == nil && !info.IsDir() {
		sh.fs.ServeHTTP(w, r)
		return
	}

	http.ServeFile(w, r, filepath.Join(sh.dir, "index.html"))
}
