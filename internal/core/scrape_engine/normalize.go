package scrape_engine

import (
	"net/url"
	"strings"

	"github.com/markdave123-py/Cadence/internal/core"
)

// NormalizeURL parses raw and returns the cleaned seed URL plus its root,
// scheme://host with both lowercased. The root is the dedup key for jobs.
// A missing scheme defaults to https.
func NormalizeURL(raw string) (seed string, root string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", core.Validationf("url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", core.Validationf("url %q does not parse: %v", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", core.Validationf("url scheme %q is not supported", u.Scheme)
	}
	host := strings.ToLower(u.Host)
	if u.Hostname() == "" {
		return "", "", core.Validationf("url %q has no host", raw)
	}
	u.Scheme = scheme
	u.Host = host
	u.Fragment = ""
	return u.String(), scheme + "://" + host, nil
}
