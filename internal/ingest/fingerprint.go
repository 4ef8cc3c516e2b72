package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// Fingerprint returns the dedup key for a posting. Postings with a URL are
// keyed on source and canonical URL; otherwise on employer domain, title and
// the start of the description.
func Fingerprint(job NormalizedJob) string {
	var key string
	if u := CanonicalURL(job.URL); u != "" {
		key = "url|" + job.Source + "|" + u
	} else {
		domain := job.Domain
		if domain == "" {
			domain = LookupKey(job.Company, "")
		}
		key = "content|" + domain + "|" + strings.ToLower(collapseSpace(job.Title)) + "|" + truncateRunes(job.Description, 500)
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// CanonicalURL lowercases scheme and host, drops the fragment, a trailing
// slash and a default port. Unparseable input is returned trimmed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// NormalizeDomain reduces a URL or host to a bare lowercase domain:
// "https://www.Acme.io:8443/about" becomes "acme.io".
func NormalizeDomain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "www.")
	return strings.Trim(s, ".")
}

// LookupKey is the company identity used for find-or-create: the normalized
// domain when known, otherwise the lowercased name.
func LookupKey(name, domain string) string {
	if d := NormalizeDomain(domain); d != "" {
		return d
	}
	return "name:" + strings.ToLower(collapseSpace(name))
}
