// Package canonical derives deterministic identity keys and the string
// similarity metric used for fuzzy duplicate search. Canonical keys are
// the sole deduplication key and are compared by exact match only;
// similarity never participates in key equality.
package canonical

import (
	"net/mail"
	"net/url"
	"regexp"
	"strings"

	"github.com/soundprediction/relato/pkg/types"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonNameRe    = regexp.MustCompile(`[^a-z0-9' ]`)
	nonSlugRe    = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeExact lowercases text and collapses whitespace so equal names
// map to the same key.
func NormalizeExact(s string) string {
	normalized := whitespaceRe.ReplaceAllString(strings.ToLower(s), " ")
	return strings.TrimSpace(normalized)
}

// NormalizeName produces the canonical name form: lowercase, punctuation
// and non-ASCII stripped, whitespace collapsed to single separators.
func NormalizeName(s string) string {
	normalized := nonNameRe.ReplaceAllString(NormalizeExact(s), " ")
	normalized = strings.ReplaceAll(normalized, "'", "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(normalized, " "))
}

// Slugify converts a name to a hyphen-separated slug.
func Slugify(s string) string {
	slug := nonSlugRe.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(slug, "-")
}

// PersonKey computes the canonical key for a person. An email, when
// present, dominates: two observations with the same email are the same
// person regardless of name spelling. Without an email the key falls back
// to the normalized name.
func PersonKey(email, firstName, lastName string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email != "" {
		return "email:" + email, nil
	}

	first := NormalizeName(firstName)
	last := NormalizeName(lastName)
	if first == "" || last == "" {
		return "", types.NewValidationError("name", "first and last name are required when no email is present")
	}

	return "name:" + strings.ReplaceAll(first, " ", "-") + "-" + strings.ReplaceAll(last, " ", "-"), nil
}

// OrganizationKey computes the canonical key for an organization,
// preferring the registrable domain over a name slug.
func OrganizationKey(domain, name string) (string, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain != "" {
		return "domain:" + domain, nil
	}

	slug := Slugify(name)
	if slug == "" {
		return "", types.NewValidationError("name", "organization name is required when no domain is present")
	}

	return "name:" + slug, nil
}

// ExtractDomain returns the registrable domain from a URL or email
// address, or "" when the input is unparsable. The leading "www." label
// is stripped so websites and bare domains agree.
func ExtractDomain(urlOrEmail string) string {
	s := strings.TrimSpace(urlOrEmail)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "@") {
		addr, err := mail.ParseAddress(s)
		if err != nil {
			// Bare addresses like "a@b.com" fail RFC parsing only on
			// malformed input; fall back to splitting on the last @.
			at := strings.LastIndex(s, "@")
			host := strings.ToLower(s[at+1:])
			if host == "" || strings.ContainsAny(host, " /") || !strings.Contains(host, ".") {
				return ""
			}
			return strings.TrimPrefix(host, "www.")
		}
		at := strings.LastIndex(addr.Address, "@")
		return strings.TrimPrefix(strings.ToLower(addr.Address[at+1:]), "www.")
	}

	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if !strings.Contains(host, ".") {
		return ""
	}
	return strings.TrimPrefix(host, "www.")
}
