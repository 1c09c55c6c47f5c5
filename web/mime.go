package web

import (
	"fmt"
	"maps"
	"net/http"
	"path"
	"strings"
)

// DefaultMIMETypes returns the overrides applied when none are configured.
// Go's mime table has no entry for Google Earth documents.
func DefaultMIMETypes() map[string]string {
	return map[string]string{
		".kml": "application/vnd.google-earth.kml+xml",
	}
}

// MIMETypes returns middleware that sets Content-Type from the request
// path's extension before next runs. http.FileServer keeps a Content-Type
// that is already set, so the override wins over its own detection.
// Extensions are matched case-insensitively.
func MIMETypes(types map[string]string) (func(http.Handler) http.Handler, error) {
	byExt := make(map[string]string, len(types))
	for ext, ctype := range maps.All(types) {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return nil, fmt.Errorf("mime type override %q: extension must start with '.'", ext)
		}
		if ctype == "" {
			return nil, fmt.Errorf("mime type override %q: empty content type", ext)
		}
		byExt[strings.ToLower(ext)] = ctype
	}

	return func(next http.Handler) http.Handler {
		if len(byExt) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ctype, ok := byExt[strings.ToLower(path.Ext(r.URL.Path))]; ok {
				w.Header().Set("Content-Type", ctype)
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}
