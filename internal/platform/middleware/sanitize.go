package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const maxHeaderValueSize = 8 << 10

var (
	scriptFragment = regexp.MustCompile(`(?i)(<script|javascript\s*:)`)
	// Reported, never rejected: every query is parameterized.
	sqlFragment = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1)`)
)

// requestCheck returns a client-facing reason when the request must be
// refused, or "" to let it through.
type requestCheck func(r *http.Request) string

var requestChecks = []requestCheck{checkPath, checkHeaders, checkQuery}

// Sanitize refuses requests with traversal sequences, null bytes, CR/LF in
// header values or script fragments in the query string.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			for _, check := range requestChecks {
				if reason := check(req); reason != "" {
					return echo.NewHTTPError(http.StatusBadRequest, reason)
				}
			}
			for key, values := range req.URL.Query() {
				for _, v := range values {
					if sqlFragment.MatchString(v) {
						logger.Warn().Str("param", key).Str("path", req.URL.Path).
							Str("remote_ip", c.RealIP()).Msg("suspicious query parameter")
					}
				}
			}
			return next(c)
		}
	}
}

func checkPath(r *http.Request) string {
	for _, p := range []string{r.URL.Path, r.URL.EscapedPath()} {
		lower := strings.ToLower(p)
		if strings.Contains(p, "..") || strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e") {
			return "Path traversal detected"
		}
		if hasNullByte(p) {
			return "Null byte injection detected"
		}
	}
	return ""
}

func checkHeaders(r *http.Request) string {
	for name, values := range r.Header {
		for _, v := range values {
			switch {
			case len(v) > maxHeaderValueSize:
				return "Header value exceeds maximum size: " + name
			case strings.ContainsAny(v, "\r\n"):
				return "Header injection detected: " + name
			}
		}
	}
	return ""
}

func checkQuery(r *http.Request) string {
	q, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return "Malformed query string"
	}
	for key, values := range q {
		for _, v := range values {
			if hasNullByte(key) || hasNullByte(v) {
				return "Null byte injection detected in query parameter"
			}
			if scriptFragment.MatchString(key) || scriptFragment.MatchString(v) {
				return "Script injection detected in query parameter"
			}
		}
	}
	return ""
}

func hasNullByte(s string) bool {
	return strings.IndexByte(s, 0) >= 0 || strings.Contains(strings.ToLower(s), "%00")
}

// CleanText drops null bytes and control characters except newline, carriage
// return and tab, then trims surrounding space. Services run free text such
// as social names and diary entries through it.
func CleanText(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)
	return strings.TrimSpace(cleaned)
}
