package rules

import (
	"mime"
	"net/url"
	stdpath "path"
	"strings"

	"github.com/dgnsrekt/linkgrabber/internal/types"
)

// FilenameFromHeaders returns the filename announced by Content-Disposition.
// RFC 2231 "filename*" values are decoded by mime.ParseMediaType.
func FilenameFromHeaders(h types.Headers) (string, bool) {
	cd := strings.TrimSpace(h.Get("Content-Disposition"))
	if cd == "" {
		return "", false
	}
	_, params, err := mime.ParseMediaType(cd)
	if err != nil {
		return "", false
	}
	return cleanFilename(params["filename"])
}

// FilenameFromURL extracts the last path segment of rawURL.
func FilenameFromURL(rawURL string) (string, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	p := parsed.Path
	if p == "" || strings.HasSuffix(p, "/") {
		return "", false
	}
	return cleanFilename(stdpath.Base(p))
}

// DeriveFilename prefers the header-provided name and falls back to the URL.
func DeriveFilename(rawURL string, responseHeaders types.Headers) (string, bool) {
	if name, ok := FilenameFromHeaders(responseHeaders); ok {
		return name, true
	}
	return FilenameFromURL(rawURL)
}

// FileExtension returns the lowercased text after the last dot, or "".
func FileExtension(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

func cleanFilename(name string) (string, bool) {
	name = strings.TrimSpace(name)
	// Some servers send Windows paths.
	name = strings.ReplaceAll(name, "\\", "/")
	name = stdpath.Base(name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", false
	}
	return name, true
}
