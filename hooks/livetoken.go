package hooks

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/felixge/httpsnoop"
)

// DefaultLiveTokenName is the cookie the edge platform's live preview reads.
const DefaultLiveTokenName = "__vercel_live_token"

// ErrNoFallback is returned when LiveToken is built without a fallback value.
var ErrNoFallback = errors.New("live token fallback value is required")

// LiveTokenConfig configures the LiveToken interceptor.
type LiveTokenConfig struct {
	// Name is the cookie name. Defaults to DefaultLiveTokenName.
	Name string
	// Fallback is the value issued to clients that did not send the cookie.
	// It is supplied at startup and is the same for every request.
	Fallback string
	// Logger receives the diagnostic lines. Defaults to slog.Default().
	Logger *slog.Logger
	// LogValues logs observed cookie values verbatim instead of their length.
	LogValues bool
}

type liveToken struct {
	name      string
	setCookie string
	logger    *slog.Logger
	logValues bool
}

// LiveToken returns middleware that checks each request for the live token
// cookie and, when the request did not carry one, appends a Set-Cookie for
// the fallback value to the downstream response. A cookie that was present
// is never overwritten. The cookie is issued with Path=/, HttpOnly, Secure
// and SameSite=None.
func LiveToken(cfg LiveTokenConfig) (func(http.Handler) http.Handler, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultLiveTokenName
	}
	if cfg.Fallback == "" {
		return nil, ErrNoFallback
	}
	cookie := &http.Cookie{
		Name:     cfg.Name,
		Value:    encodeCookieValue(cfg.Fallback),
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}
	if err := cookie.Valid(); err != nil {
		return nil, fmt.Errorf("invalid live token cookie: %w", err)
	}

	lt := &liveToken{
		name:      cfg.Name,
		setCookie: cookie.String(),
		logger:    cfg.Logger,
		logValues: cfg.LogValues,
	}
	if lt.logger == nil {
		lt.logger = slog.Default()
	}
	return lt.middleware, nil
}

func (lt *liveToken) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value, present := lt.read(r)
		lt.logObserved(r, value, present)

		if present {
			next.ServeHTTP(w, r)
			return
		}

		issued := false
		issue := func() {
			if issued {
				return
			}
			issued = true
			w.Header().Add("Set-Cookie", lt.setCookie)
		}

		next.ServeHTTP(lt.hook(w, issue), r)

		// Nothing was written: net/http sends the header map after we return.
		issue()
		lt.logger.Debug("live token issued",
			slog.String("cookie", lt.name),
			slog.String("path", r.URL.Path))
	})
}

// hook wraps w so that issue runs right before the downstream handler
// commits the response headers.
func (lt *liveToken) hook(w http.ResponseWriter, issue func()) http.ResponseWriter {
	return httpsnoop.Wrap(w, httpsnoop.Hooks{
		WriteHeader: func(writeHeader httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
			return func(code int) {
				// Informational responses do not carry the final headers.
				if code >= 200 || code == http.StatusSwitchingProtocols {
					issue()
				}
				writeHeader(code)
			}
		},
		Write: func(write httpsnoop.WriteFunc) httpsnoop.WriteFunc {
			return func(b []byte) (int, error) {
				issue()
				return write(b)
			}
		},
		ReadFrom: func(readFrom httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
			return func(src io.Reader) (int64, error) {
				issue()
				return readFrom(src)
			}
		},
		Flush: func(flush httpsnoop.FlushFunc) httpsnoop.FlushFunc {
			return func() {
				issue()
				flush()
			}
		},
	})
}

// read reports the cookie value and whether the request carried it. An
// empty value counts as absent. The Cookie headers are scanned directly:
// r.Cookie drops values net/http considers malformed (non-ASCII bytes, '\',
// an inner '"'), and a cookie the client sent must never be overwritten.
func (lt *liveToken) read(r *http.Request) (string, bool) {
	raw, ok := lookupCookie(r.Header.Values("Cookie"), lt.name)
	if !ok || raw == "" {
		return "", false
	}
	if v, err := url.PathUnescape(raw); err == nil {
		return v, true
	}
	return raw, true
}

// lookupCookie returns the value of the first name=value pair called name
// across the Cookie header lines, with one pair of surrounding double quotes
// removed.
func lookupCookie(lines []string, name string) (string, bool) {
	for _, line := range lines {
		for part := range strings.SplitSeq(line, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
			if !ok || strings.TrimSpace(k) != name {
				continue
			}
			v = strings.TrimSpace(v)
			if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
				v = v[1 : len(v)-1]
			}
			return v, true
		}
	}
	return "", false
}

func (lt *liveToken) logObserved(r *http.Request, value string, present bool) {
	attrs := []any{
		slog.String("cookie", lt.name),
		slog.String("path", r.URL.Path),
		slog.Bool("present", present),
	}
	if present {
		if lt.logValues {
			attrs = append(attrs, slog.String("value", value))
		} else {
			attrs = append(attrs, slog.Int("value_len", len(value)))
		}
	}
	lt.logger.Debug("live token observed", attrs...)
}

// encodeCookieValue escapes s the way encodeURIComponent does, which is what
// browser-side cookie libraries expect to decode.
func encodeCookieValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isURIComponentSafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isURIComponentSafe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
