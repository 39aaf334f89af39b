package http

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DownloadHandler maps a filename under a fixed directory to an attachment
// response, so the browser downloads instead of rendering. No content
// negotiation; path traversal is rejected by flattening to the base name.
type DownloadHandler struct {
	dir string
}

func NewDownloadHandler(dir string) *DownloadHandler {
	return &DownloadHandler{dir: dir}
}

func (h *DownloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/downloads/")
	if name == "" || name != filepath.Base(name) {
		http.Error(w, "invalid filename", http.StatusBadRequest)
		return
	}

	path := filepath.Join(h.dir, name)
	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
}
