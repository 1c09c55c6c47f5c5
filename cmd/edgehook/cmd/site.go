package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jmcleod/edgehook/config"
	"github.com/jmcleod/edgehook/hooks"
	"github.com/jmcleod/edgehook/web"
)

type routerOptions struct {
	revision  string
	accessLog bool
	fallback  bool
}

// newRouter assembles the middleware chain and routes shared by the server
// and the static export.
func newRouter(c config.Config, logger *slog.Logger, ro routerOptions) (http.Handler, error) {
	fallback := c.LiveToken.Fallback
	if fallback == "" {
		fallback = uuid.NewString()
		logger.Warn("no live token fallback configured, generated one for this process",
			slog.String("env", config.LiveTokenEnv))
	}
	liveToken, err := hooks.LiveToken(hooks.LiveTokenConfig{
		Name:      c.LiveToken.Name,
		Fallback:  fallback,
		Logger:    logger,
		LogValues: c.LiveToken.LogValues,
	})
	if err != nil {
		return nil, err
	}

	site, err := web.Handler(os.DirFS(c.Assets),
		web.WithMIMETypes(c.MIMETypes),
		web.WithVersion(ro.revision),
		web.WithCompression(c.Compression),
		web.WithFallback(ro.fallback),
	)
	if err != nil {
		return nil, fmt.Errorf("loading site from %s: %w", c.Assets, err)
	}

	r := chi.NewRouter()
	if ro.accessLog {
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(hooks.SecurityHeaders)
	r.Use(liveToken)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/*", site)
	return r, nil
}
