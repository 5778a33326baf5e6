package search

import (
	"strings"

	"github.com/atinyakov/GophFill/internal/directory"
	"github.com/atinyakov/GophFill/internal/models"
	"github.com/sahilm/fuzzy"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

type matcher func(directory.Label) bool

func newMatcher(q models.SearchQuery) matcher {
	switch q.Filter {
	case models.StrictDomain:
		return strictMatcher(q.Text)
	default:
		return fuzzyMatcher(q.Text)
	}
}

// fuzzyMatcher accepts labels whose identifier or account contains the query as a
// case-insensitive substring or subsequence. The strict-domain form of the query is tried
// as well, so every strict match is also a fuzzy match.
func fuzzyMatcher(text string) matcher {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return func(directory.Label) bool { return true }
	}
	patterns := []string{text}
	if d, ok := strictDomain(text); ok && d != text {
		patterns = append(patterns, d)
	}

	return func(l directory.Label) bool {
		target := fuzzyTarget(l)
		for _, p := range patterns {
			if strings.Contains(target, p) || len(fuzzy.Find(p, []string{target})) > 0 {
				return true
			}
		}
		return false
	}
}

func fuzzyTarget(l directory.Label) string {
	var parts []string
	if id, ok := l.Identifier(); ok {
		lower := strings.ToLower(id)
		parts = append(parts, lower)
		if ascii := asciiIdentifier(id); ascii != lower {
			parts = append(parts, ascii)
		}
	}
	if acc, ok := l.Account(); ok {
		parts = append(parts, strings.ToLower(acc))
	}
	return strings.Join(parts, " ")
}

// strictMatcher accepts labels whose identifier is the query domain or a subdomain of it.
// A query that is not a registrable domain (empty, a bare public suffix such as "com" or
// "co.uk", or anything containing a path separator) matches nothing.
func strictMatcher(text string) matcher {
	d, ok := strictDomain(text)
	if !ok {
		return func(directory.Label) bool { return false }
	}
	return func(l directory.Label) bool {
		id, ok := l.Identifier()
		if !ok {
			return false
		}
		host := asciiIdentifier(id)
		return host == d || strings.HasSuffix(host, "."+d)
	}
}

func strictDomain(text string) (string, bool) {
	t := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(text)), ".")
	if t == "" || strings.ContainsAny(t, "/\\ ") {
		return "", false
	}
	ascii, err := idna.Lookup.ToASCII(t)
	if err != nil {
		return "", false
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(ascii); err != nil {
		return "", false
	}
	return ascii, true
}

func asciiIdentifier(id string) string {
	lower := strings.TrimSuffix(strings.ToLower(id), ".")
	if ascii, err := idna.Lookup.ToASCII(lower); err == nil {
		return ascii
	}
	return lower
}
