// Package cors matches request origins against a configured allow-list and
// provides the Cross-Origin Resource Sharing middleware for the HTTP server.
//
// Patterns come in four forms:
//
//	https://sav.example.com     exact origin
//	https://sav-*               prefix (trailing '*')
//	re:^https://.*\.vercel\.app$ regular expression
//	*                           every origin
package cors

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const regexPrefix = "re:"

// Matcher is a compiled origin allow-list. The zero value allows nothing.
type Matcher struct {
	any      bool
	exact    map[string]struct{}
	prefixes []string
	regexps  []*regexp.Regexp
	patterns []string
}

// Compile builds a Matcher from patterns. Empty patterns are ignored.
// Every invalid regular expression is reported.
func Compile(patterns []string) (*Matcher, error) {
	m := &Matcher{exact: make(map[string]struct{})}

	var errs []error

	for _, raw := range patterns {
		p := strings.TrimSpace(raw)

		switch {
		case p == "":
			continue
		case p == "*":
			m.any = true
		case strings.HasPrefix(p, regexPrefix):
			re, err := regexp.Compile(strings.TrimPrefix(p, regexPrefix))
			if err != nil {
				errs = append(errs, fmt.Errorf("cors: invalid origin pattern %q: %w", p, err))
				continue
			}

			m.regexps = append(m.regexps, re)
		case strings.HasSuffix(p, "*"):
			m.prefixes = append(m.prefixes, strings.TrimSuffix(p, "*"))
		default:
			m.exact[strings.TrimRight(p, "/")] = struct{}{}
		}

		m.patterns = append(m.patterns, p)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return m, nil
}

// MustCompile is like Compile but panics on error. For tests and constants.
func MustCompile(patterns ...string) *Matcher {
	m, err := Compile(patterns)
	if err != nil {
		panic(err)
	}

	return m
}

// Allowed reports whether origin matches any pattern.
func (m *Matcher) Allowed(origin string) bool {
	if m == nil || origin == "" {
		return false
	}

	if m.any {
		return true
	}

	if _, ok := m.exact[origin]; ok {
		return true
	}

	for _, p := range m.prefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}

	for _, re := range m.regexps {
		if re.MatchString(origin) {
			return true
		}
	}

	return false
}

// Patterns returns the accepted patterns in configuration order.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}

	out := make([]string, len(m.patterns))
	copy(out, m.patterns)

	return out
}

// Options configures the middleware headers.
type Options struct {
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultOptions mirrors what the upload client needs.
var DefaultOptions = Options{
	AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	AllowHeaders:     []string{"Content-Type", "Authorization"},
	AllowCredentials: true,
	MaxAge:           12 * time.Hour,
}

// Middleware returns CORS middleware. matcher is called per request so the
// allow-list can be swapped at runtime. Requests without an Origin header
// pass through untouched; requests from other origins get no CORS headers
// and disallowed preflights are answered 403.
func Middleware(matcher func() *Matcher, opts Options) func(http.Handler) http.Handler {
	methods := strings.Join(opts.AllowMethods, ", ")
	headers := strings.Join(opts.AllowHeaders, ", ")
	maxAge := strconv.Itoa(int(opts.MaxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			h := w.Header()
			h.Add("Vary", "Origin")

			if !matcher().Allowed(origin) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}

				next.ServeHTTP(w, r)

				return
			}

			h.Set("Access-Control-Allow-Origin", origin)

			if opts.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if !preflight {
				next.ServeHTTP(w, r)
				return
			}

			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)

			if opts.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", maxAge)
			}

			w.WriteHeader(http.StatusNoContent)
		})
	}
}
