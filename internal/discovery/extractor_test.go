package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLikelyEmail(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"plain address", "user@example.com", true},
		{"uppercase address", "PRIVACY@EXAMPLE.COM", true},
		{"multi label domain", "dpo@legal.example.co", true},
		{"retina image", "icon@3x.png", false},
		{"uppercase extension", "photo@2x.JPEG", false},
		{"font file", "font@file.woff2", false},
		{"pdf document", "doc@report.pdf", false},
		{"no at sign", "plainstring", false},
		{"minimal form accepted", "a@b", true},
		{"trailing at accepted", "user@", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isLikelyEmail(tt.candidate))
		})
	}
}

func TestEmailSetDeduplicatesAndLowercases(t *testing.T) {
	set := newEmailSet()
	set.add("  Contact@Example.COM  ")
	set.add("contact@example.com")
	set.add("other@example.com")
	set.add("")

	assert.Equal(t, []string{"contact@example.com", "other@example.com"}, set.values())
}

func TestEmailSetEmptyValuesNotNil(t *testing.T) {
	values := newEmailSet().values()

	assert.NotNil(t, values)
	assert.Empty(t, values)
}

func TestFindPrivacyLink(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		pageURL string
		want    string
	}{
		{
			name: "matches link text",
			html: `<html><body>
				<a href="/about">About</a>
				<a href="/datenschutz">Privacy Policy</a>
			</body></html>`,
			pageURL: "https://example.com",
			want:    "https://example.com/datenschutz",
		},
		{
			name: "matches href when text does not",
			html: `<html><body>
				<a href="/about">About</a>
				<a href="/privacy-policy">Legal</a>
			</body></html>`,
			pageURL: "https://example.com",
			want:    "https://example.com/privacy-policy",
		},
		{
			name: "first match in document order wins",
			html: `<html><body>
				<a href="/privacy">Privacy</a>
				<a href="/legal/privacy-notice">Privacy Notice</a>
			</body></html>`,
			pageURL: "https://example.com",
			want:    "https://example.com/privacy",
		},
		{
			name:    "absolute href kept as is",
			html:    `<a href="https://legal.example.com/privacy">Privacy</a>`,
			pageURL: "https://example.com",
			want:    "https://legal.example.com/privacy",
		},
		{
			name:    "relative href resolved against page path",
			html:    `<a href="privacy">Our privacy commitment</a>`,
			pageURL: "https://example.com/docs/index.html",
			want:    "https://example.com/docs/privacy",
		},
		{
			name: "anchor without href skipped",
			html: `<html><body>
				<a>Privacy</a>
				<a href="/privacy">here</a>
			</body></html>`,
			pageURL: "https://example.com",
			want:    "https://example.com/privacy",
		},
		{
			name:    "match is case insensitive",
			html:    `<a href="/policy">PRIVACY NOTICE</a>`,
			pageURL: "https://example.com",
			want:    "https://example.com/policy",
		},
		{
			name:    "no match",
			html:    `<a href="/terms">Terms of Service</a>`,
			pageURL: "https://example.com",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, findPrivacyLink(tt.html, tt.pageURL))
		})
	}
}

func TestCollectEmails(t *testing.T) {
	html := `<html><body>
		<a href="mailto:DPO@Example.com?subject=Privacy%20request">Email the DPO</a>
		<p>General inquiries: support@example.com or call us.</p>
		<p>Brand assets live at logo@2x.png on our CDN.</p>
		<script>var tracker = "analytics@tracker.example";</script>
	</body></html>`

	set := newEmailSet()
	collectEmails(html, set)

	assert.Equal(t, []string{"dpo@example.com", "support@example.com"}, set.values())
}

func TestCollectEmailsDeduplicatesAcrossPasses(t *testing.T) {
	html := `<a href="mailto:privacy@example.com">privacy@example.com</a>`

	set := newEmailSet()
	collectEmails(html, set)

	assert.Equal(t, []string{"privacy@example.com"}, set.values())
}

func TestCollectEmailsIgnoresStyleBlocks(t *testing.T) {
	html := `<html><head>
		<style>.contact::after { content: "decoy@example.com"; }</style>
	</head><body>
		<p>Write to hello@example.com.</p>
	</body></html>`

	set := newEmailSet()
	collectEmails(html, set)

	assert.Equal(t, []string{"hello@example.com"}, set.values())
}

func TestCollectEmailsNothingFound(t *testing.T) {
	set := newEmailSet()
	collectEmails(`<html><body><p>No contact info here.</p></body></html>`, set)

	assert.Empty(t, set.values())
}

func TestBuildPrivacyCandidates(t *testing.T) {
	want := []string{
		"https://example.com/privacy",
		"https://example.com/privacy-policy",
		"https://example.com/privacy_policy",
		"https://example.com/legal/privacy",
		"https://example.com/policies/privacy",
	}

	assert.Equal(t, want, buildPrivacyCandidates("https://example.com"))
	assert.Equal(t, want, buildPrivacyCandidates("https://example.com/"))
}
