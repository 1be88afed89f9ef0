// Package rules holds the stateless capture policy predicates. Every function
// takes its inputs explicitly so it can be evaluated against any policy
// snapshot.
package rules

import (
	"strings"

	"github.com/dgnsrekt/linkgrabber/internal/types"
	"github.com/tidwall/match"
)

// IsBlacklisted reports whether rawURL matches any wildcard pattern.
// Patterns without a scheme match any scheme, and patterns without a path
// match every path on that host. Only * is a wildcard; ? is the literal
// query separator.
func IsBlacklisted(rawURL string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	u := strings.ToLower(strings.TrimSpace(rawURL))
	if u == "" {
		return false
	}
	for _, p := range patterns {
		p = normalizePattern(p)
		if p == "" {
			continue
		}
		if match.Match(u, p) {
			return true
		}
	}
	return false
}

func normalizePattern(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if !strings.Contains(p, "://") {
		p = "*://" + p
	}
	rest := p[strings.Index(p, "://")+3:]
	if !strings.Contains(rest, "/") {
		p += "/*"
	}
	return literalQuery.Replace(p)
}

// literalQuery escapes the characters match treats specially apart from *.
var literalQuery = strings.NewReplacer(`\`, `\\`, "?", `\?`)

// IsRenderablePageComponent reports whether the response is text the browser
// renders itself (HTML, CSS, plain text fragments).
func IsRenderablePageComponent(responseHeaders types.Headers) bool {
	return strings.HasPrefix(strings.ToLower(responseHeaders.ContentType()), "text/")
}

// IsRegisteredExtension is a case-insensitive whitelist membership test.
func IsRegisteredExtension(ext string, whitelist []string) bool {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		return false
	}
	for _, w := range whitelist {
		if strings.TrimPrefix(strings.ToLower(strings.TrimSpace(w)), ".") == ext {
			return true
		}
	}
	return false
}

// MeetsMinimumSize applies the size floor. An unknown length or a zero floor
// never rejects.
func MeetsMinimumSize(contentLength int64, known bool, minimumKB int) bool {
	if !known || minimumKB <= 0 {
		return true
	}
	return contentLength >= int64(minimumKB)*1024
}
