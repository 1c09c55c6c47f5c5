package web

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/klauspost/compress/gzhttp"
)

// VersionPath is where the client runtime polls for the deployed revision.
const VersionPath = "/_app/version.json"

type options struct {
	mimeTypes map[string]string
	version   string
	compress  bool
	fallback  bool
}

// Option configures the site handler.
type Option func(*options)

// WithMIMETypes replaces the per-extension Content-Type overrides.
func WithMIMETypes(types map[string]string) Option {
	return func(o *options) {
		o.mimeTypes = types
	}
}

// WithVersion serves name at VersionPath.
func WithVersion(name string) Option {
	return func(o *options) {
		o.version = name
	}
}

// WithCompression gzip-compresses responses for clients that accept it.
func WithCompression(enabled bool) Option {
	return func(o *options) {
		o.compress = enabled
	}
}

// WithFallback controls the deep-link fallback. With it disabled, unknown
// paths get 404 Not Found, which is what a static export needs to notice
// broken links.
func WithFallback(enabled bool) Option {
	return func(o *options) {
		o.fallback = enabled
	}
}

// Handler returns an http.Handler that serves the built site in fsys.
//
// fsys must contain index.html. Existing files are served as-is, a directory
// is served through its own index.html when it has one, and every other path
// falls back to the root index.html so client-side routes deep-link.
func Handler(fsys fs.FS, opts ...Option) (http.Handler, error) {
	o := options{mimeTypes: DefaultMIMETypes(), fallback: true}
	for _, opt := range opts {
		opt(&o)
	}

	// Read index.html once at init for the deep-link fallback.
	indexBytes, err := fs.ReadFile(fsys, "index.html")
	if err != nil {
		return nil, fmt.Errorf("reading site index.html: %w", err)
	}

	withTypes, err := MIMETypes(o.mimeTypes)
	if err != nil {
		return nil, err
	}

	static := http.FileServer(http.FS(fsys))

	serveIndex := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(indexBytes)
	}

	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if o.version != "" && r.URL.Path == VersionPath {
			w.Header().Set("Cache-Control", "no-cache")
			writeJSON(w, http.StatusOK, versionResponse{Version: o.version})
			return
		}

		if r.URL.Path == "/" {
			serveIndex(w, r)
			return
		}

		cleanPath := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if cleanPath == "." {
			serveIndex(w, r)
			return
		}

		if servable(fsys, cleanPath) {
			static.ServeHTTP(w, r)
			return
		}

		if !o.fallback {
			http.NotFound(w, r)
			return
		}

		// Client-side router deep-link fallback.
		serveIndex(w, r)
	})

	h = withTypes(h)
	if o.compress {
		h = gzhttp.GzipHandler(h)
	}
	return h, nil
}

// servable reports whether name is a file, or a directory with an index.html
// of its own.
func servable(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return false
	}
	if !info.IsDir() {
		return true
	}
	_, err = fs.Stat(fsys, path.Join(name, "index.html"))
	return err == nil
}

type versionResponse struct {
	Version string `json:"version"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
