// Package prerender exports a site handler to a directory of static files by
// requesting pages in-process and following the links they contain.
package prerender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

// origin is the synthetic origin pages are requested and resolved against.
const origin = "http://prerender.invalid"

const defaultConcurrency = 4

// ErrorPolicy decides what an error response means for the export. A nil
// return skips the path; an error aborts the export.
type ErrorPolicy func(status int, path, referrer string) error

// DefaultErrorPolicy tolerates a missing /favicon.png and fails on every
// other error response.
func DefaultErrorPolicy(status int, path, referrer string) error {
	if status == http.StatusNotFound && path == "/favicon.png" {
		slog.Warn("ignoring 404 for missing favicon", slog.String("path", path))
		return nil
	}
	return fmt.Errorf("%d on %s (referrer: %s)", status, path, referrer)
}

// Options configures Render.
type Options struct {
	// Entries are the paths rendering starts from. Defaults to "/".
	Entries []string
	// OutDir receives the rendered files.
	OutDir string
	// Crawl follows same-origin links found in rendered HTML.
	Crawl bool
	// Concurrency bounds in-flight requests. Defaults to 4.
	Concurrency int
	// HandleHTTPError defaults to DefaultErrorPolicy.
	HandleHTTPError ErrorPolicy
	Logger          *slog.Logger
}

// Result lists what Render did, in path order.
type Result struct {
	Written []string
	Skipped []string
}

type page struct {
	path     string
	referrer string
}

type renderer struct {
	handler http.Handler
	opts    Options

	mu      sync.Mutex
	seen    map[string]bool
	written []string
	skipped []string
}

// Render requests every entry path from h, writes successful responses under
// opts.OutDir and, when opts.Crawl is set, repeats for each newly discovered
// link until none remain.
func Render(ctx context.Context, h http.Handler, opts Options) (Result, error) {
	if opts.OutDir == "" {
		return Result{}, errors.New("prerender: output directory is required")
	}
	if len(opts.Entries) == 0 {
		opts.Entries = []string{"/"}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.HandleHTTPError == nil {
		opts.HandleHTTPError = DefaultErrorPolicy
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &renderer{handler: h, opts: opts, seen: make(map[string]bool)}

	var wave []page
	for _, e := range opts.Entries {
		p, ok := normalize(e)
		if !ok {
			return Result{}, fmt.Errorf("prerender: invalid entry %q", e)
		}
		wave = r.enqueue(wave, page{path: p})
	}

	for len(wave) > 0 {
		next, err := r.renderWave(ctx, wave)
		if err != nil {
			return Result{}, err
		}
		wave = next
	}

	slices.Sort(r.written)
	slices.Sort(r.skipped)
	return Result{Written: r.written, Skipped: r.skipped}, nil
}

// enqueue appends p to wave unless it was already scheduled.
func (r *renderer) enqueue(wave []page, p page) []page {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[p.path] {
		return wave
	}
	r.seen[p.path] = true
	return append(wave, p)
}

func (r *renderer) renderWave(ctx context.Context, wave []page) ([]page, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	var mu sync.Mutex
	var next []page
	for _, p := range wave {
		g.Go(func() error {
			links, err := r.render(ctx, p)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, l := range links {
				next = r.enqueue(next, page{path: l, referrer: p.path})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return next, nil
}

func (r *renderer) render(ctx context.Context, p page) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+p.path, nil)
	if err != nil {
		return nil, fmt.Errorf("prerender %s: %w", p.path, err)
	}
	if p.referrer != "" {
		req.Header.Set("Referer", origin+p.referrer)
	}
	rec := httptest.NewRecorder()
	r.handler.ServeHTTP(rec, req)
	resp := rec.Result()

	switch {
	case resp.StatusCode >= http.StatusBadRequest:
		if err := r.opts.HandleHTTPError(resp.StatusCode, p.path, p.referrer); err != nil {
			return nil, err
		}
		r.record(&r.skipped, p.path)
		return nil, nil
	case resp.StatusCode >= http.StatusMultipleChoices:
		// Same-origin redirects, like http.FileServer's /about -> /about/,
		// are followed even without Crawl: the target is the page.
		loc := resp.Header.Get("Location")
		r.record(&r.skipped, p.path)
		target, ok := resolve(p.path, loc)
		if !ok {
			r.opts.Logger.Debug("prerender: not following redirect",
				slog.String("path", p.path),
				slog.Int("status", resp.StatusCode),
				slog.String("location", loc))
			return nil, nil
		}
		return []string{target}, nil
	}

	body := rec.Body.Bytes()
	html := isHTML(resp.Header.Get("Content-Type"))
	if err := r.write(p.path, html, body); err != nil {
		return nil, err
	}
	r.record(&r.written, p.path)
	r.opts.Logger.Debug("prerendered", slog.String("path", p.path), slog.Int("bytes", len(body)))

	if !html || !r.opts.Crawl {
		return nil, nil
	}
	return links(p.path, body)
}

func (r *renderer) record(list *[]string, p string) {
	r.mu.Lock()
	*list = append(*list, p)
	r.mu.Unlock()
}

func (r *renderer) write(p string, html bool, body []byte) error {
	name := outputName(p, html)
	dst := filepath.Join(r.opts.OutDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("prerender %s: %w", p, err)
	}
	if err := os.WriteFile(dst, body, 0o644); err != nil {
		return fmt.Errorf("prerender %s: %w", p, err)
	}
	return nil
}

// outputName maps a request path to a file under the output directory.
// Extensionless HTML pages become directory indexes.
func outputName(p string, html bool) string {
	name := strings.TrimPrefix(p, "/")
	switch {
	case name == "" || strings.HasSuffix(name, "/"):
		return name + "index.html"
	case html && path.Ext(name) == "":
		return name + "/index.html"
	}
	return name
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "text/html"
}

// links returns the same-origin paths referenced by an HTML document.
func links(base string, body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("prerender %s: parsing html: %w", base, err)
	}

	var out []string
	add := func(ref string) {
		if p, ok := resolve(base, ref); ok {
			out = append(out, p)
		}
	}
	doc.Find("a[href], link[href]").Each(func(_ int, s *goquery.Selection) {
		if rel, _ := s.Attr("rel"); strings.Contains(rel, "external") {
			return
		}
		href, _ := s.Attr("href")
		add(href)
	})
	doc.Find("script[src], img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		add(src)
	})
	return out, nil
}

// resolve returns the request path ref points to from the page at base,
// or false when ref leaves the prerender origin.
func resolve(base, ref string) (string, bool) {
	baseURL, err := url.Parse(origin + base)
	if err != nil {
		return "", false
	}
	u, err := baseURL.Parse(strings.TrimSpace(ref))
	if err != nil || u.Scheme+"://"+u.Host != origin {
		return "", false
	}
	return normalize(u.Path)
}

// normalize cleans p into an absolute request path, keeping a trailing slash.
func normalize(p string) (string, bool) {
	if p == "" || !strings.HasPrefix(p, "/") {
		return "", false
	}
	clean := path.Clean(p)
	if strings.HasSuffix(p, "/") && clean != "/" {
		clean += "/"
	}
	return clean, true
}
