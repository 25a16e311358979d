package handlers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// Static serves the built frontend from dir. Paths that are not files fall
// back to index.html so client-side routes load.
func Static(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean("/" + r.URL.Path)
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p)))
		if err != nil || info.IsDir() && p != "/" {
			http.ServeFile(w, r, index)
			return
		}
		files.ServeHTTP(w, r)
	})
}
