package probe

import (
	"bytes"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// wpGeneratorRe matches <meta name="generator" content="WordPress 6.4.2">
// in either quote style. Heuristic, not exhaustive.
var wpGeneratorRe = regexp.MustCompile(`(?i)<meta[^>]+name=["']generator["'][^>]*content=["']WordPress\s*([^"']+)["']`)

// DetectWordPress scans a response body for WordPress fingerprints. The flag
// is a case-insensitive substring match; the version comes from the generator
// meta tag when present.
func DetectWordPress(body []byte) (isWordPress bool, version *string) {
	if !bytes.Contains(bytes.ToLower(body), []byte("wordpress")) {
		return false, nil
	}
	if m := wpGeneratorRe.FindSubmatch(body); m != nil {
		v := strings.TrimSpace(string(m[1]))
		if v != "" {
			version = &v
		}
	}
	return true, version
}

// ParseLastModified parses a Last-Modified header value. A missing or
// malformed value is nil, never an error: the header is advisory.
func ParseLastModified(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := http.ParseTime(value)
	if err != nil {
		return nil
	}
	return &t
}
