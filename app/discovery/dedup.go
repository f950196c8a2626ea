package discovery

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes diacritics so "Café" and "Cafe" produce the same
// title key.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeURL canonicalizes a url for dedup: lowercased host, no fragment,
// no utm_* tracking params, no trailing slash.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}

	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")

	q := u.Query()
	for k := range q {
		if strings.HasPrefix(strings.ToLower(k), "utm_") {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// TitleKey reduces a title to a lowercased, diacritics- and punctuation-
// stripped, whitespace-collapsed key so near-identical titles from
// different providers dedup against each other.
func TitleKey(title string) string {
	t, _, err := transform.String(stripMarks, title)
	if err != nil {
		t = title
	}

	var b strings.Builder
	for _, r := range strings.ToLower(t) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// dedup collapses the merged provider pool by normalized url and by title
// key, keeping the first occurrence. Returns the kept candidates and the
// number dropped.
func dedup(candidates []Candidate) ([]Candidate, int) {
	seenURL := make(map[string]struct{}, len(candidates))
	seenTitle := make(map[string]struct{}, len(candidates))

	kept := candidates[:0]
	dropped := 0

	for _, c := range candidates {
		urlKey := NormalizeURL(c.URL)
		titleKey := TitleKey(c.Title)

		if _, dup := seenURL[urlKey]; dup {
			dropped++
			continue
		}
		if titleKey != "" {
			if _, dup := seenTitle[titleKey]; dup {
				dropped++
				continue
			}
			seenTitle[titleKey] = struct{}{}
		}
		seenURL[urlKey] = struct{}{}
		kept = append(kept, c)
	}

	return kept, dropped
}
