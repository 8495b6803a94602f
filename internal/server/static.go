package server

import (
	"net/http"
	"path"
	"strings"
)

const indexFile = "/index.html"

// spaHandler serves files from dir and answers every other GET with
// index.html so client-side routes resolve. /api paths never fall back.
func (s *Server) spaHandler(dir string) http.HandlerFunc {
	root := http.Dir(dir)
	files := http.FileServer(root)

	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			s.writeError(w, r, http.StatusNotFound, msgNotFound, nil)
			return
		}

		if r.URL.Path != "/" && isRegularFile(root, path.Clean(r.URL.Path)) {
			files.ServeHTTP(w, r)
			return
		}

		index, err := root.Open(indexFile)
		if err != nil {
			s.writeError(w, r, http.StatusNotFound, msgNotFound, err)
			return
		}
		defer index.Close()

		info, err := index.Stat()
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, msgServerError, err)
			return
		}

		w.Header().Set("Cache-Control", "no-cache")
		http.ServeContent(w, r, indexFile, info.ModTime(), index)
	}
}

func isRegularFile(root http.FileSystem, name string) bool {
	f, err := root.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false
	}

	return info.Mode().IsRegular()
}
