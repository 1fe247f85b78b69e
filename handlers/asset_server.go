package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const indexFile = "index.html"

// SPAServer serves the compiled front-end bundle from frontendDir. Paths that
// are not files fall back to index.html so client-side routes resolve.
func SPAServer(frontendDir string, log logrus.FieldLogger) http.HandlerFunc {
	root := filepath.Clean(frontendDir)
	log.WithField("dir", root).Info("serving front-end bundle")

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		relativePath := strings.TrimPrefix(filepath.Clean("/"+r.URL.Path), "/")
		requested := filepath.Join(root, relativePath)
		if requested != root && !strings.HasPrefix(requested, root+string(filepath.Separator)) {
			log.WithField("path", r.URL.Path).Warn("asset request outside front-end directory")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if info, err := os.Stat(requested); err == nil && !info.IsDir() {
			// hashed bundle assets never change under the same name
			if strings.HasPrefix(relativePath, "assets/") {
				cacheDuration := 365 * 24 * time.Hour
				w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d, immutable", int(cacheDuration.Seconds())))
			}
			http.ServeFile(w, r, requested)
			return
		}

		index := filepath.Join(root, indexFile)
		if _, err := os.Stat(index); err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, index)
	}
}
