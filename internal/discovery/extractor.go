package discovery

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

var privacyPaths = []string{"/privacy", "/privacy-policy", "/privacy_policy", "/legal/privacy", "/policies/privacy"}

// Filenames like icon@3x.png match the email pattern, so a candidate whose
// final dot-segment is one of these extensions is rejected.
var assetExtensions = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "svg": {}, "webp": {}, "ico": {},
	"bmp": {}, "tiff": {}, "avif": {}, "pdf": {}, "woff": {}, "woff2": {}, "ttf": {},
	"eot": {}, "otf": {}, "mp4": {}, "webm": {}, "mp3": {}, "wav": {},
}

// emailSet accumulates validated addresses, lowercased, keeping the order in
// which they were first seen.
type emailSet struct {
	seen  map[string]struct{}
	items []string
}

func newEmailSet() *emailSet {
	return &emailSet{seen: make(map[string]struct{})}
}

func (s *emailSet) add(email string) {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" {
		return
	}
	if _, ok := s.seen[e]; ok {
		return
	}
	s.seen[e] = struct{}{}
	s.items = append(s.items, e)
}

func (s *emailSet) values() []string {
	if s.items == nil {
		return []string{}
	}
	return s.items
}

// findPrivacyLink scans anchors in document order and returns the first one
// whose visible text or href contains "privacy" (case-insensitive), resolved
// against pageURL into an absolute URL. Returns "" when nothing matches.
func findPrivacyLink(html, pageURL string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	link := ""
	doc.Find("a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return true
		}
		if !containsPrivacy(sel.Text()) && !containsPrivacy(href) {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		link = ref.String()
		return false
	})

	return link
}

func containsPrivacy(s string) bool {
	return strings.Contains(strings.ToLower(s), "privacy")
}

// collectEmails gathers addresses from one page into the set: first every
// mailto anchor target, then every email-shaped match in the rendered visible
// text. Duplicates across the two passes collapse in the set.
func collectEmails(html string, into *emailSet) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return
	}

	doc.Find("a[href^='mailto:']").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.Index(addr, "?"); i >= 0 {
			addr = addr[:i]
		}
		addr = strings.TrimSpace(addr)
		if isLikelyEmail(addr) {
			into.add(addr)
		}
	})

	doc.Find("script, style, noscript").Remove()
	for _, match := range emailPattern.FindAllString(doc.Text(), -1) {
		if isLikelyEmail(match) {
			into.add(match)
		}
	}
}

// isLikelyEmail lowercases the candidate, requires an "@" and rejects it when
// the final dot-segment after the last "@" is a static-asset extension.
func isLikelyEmail(candidate string) bool {
	c := strings.ToLower(strings.TrimSpace(candidate))
	at := strings.LastIndex(c, "@")
	if at < 0 {
		return false
	}
	domain := c[at+1:]
	segments := strings.Split(domain, ".")
	last := segments[len(segments)-1]
	if _, banned := assetExtensions[last]; banned {
		return false
	}
	return true
}

// buildPrivacyCandidates appends the common policy paths to the origin in
// fixed priority order.
func buildPrivacyCandidates(origin string) []string {
	base := strings.TrimRight(origin, "/")
	candidates := make([]string, 0, len(privacyPaths))
	for _, p := range privacyPaths {
		candidates = append(candidates, base+p)
	}
	return candidates
}
