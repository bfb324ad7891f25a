package security

import (
	"strings"
	"testing"
)

func TestSanitize_AllowsMinimalFormattingTags(t *testing.T) {
	s := NewDescriptionSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"平文", "consegna documenti", "consegna documenti"},
		{"brタグ", "riga1<br>riga2", "riga1<br>riga2"},
		{"strongタグ", "<strong>urgente</strong>", "<strong>urgente</strong>"},
		{"emタグ", "<em>nota</em>", "<em>nota</em>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_StripsDangerousMarkup(t *testing.T) {
	s := NewDescriptionSanitizer()

	tests := []struct {
		name    string
		input   string
		mustNot []string
	}{
		{"scriptタグ", `prima<script>alert("xss")</script>dopo`, []string{"<script", "alert"}},
		{"iframeタグ", `<iframe src="https://evil.example"></iframe>`, []string{"<iframe"}},
		{"styleタグ", `<style>body{display:none}</style>testo`, []string{"<style"}},
		{"イベント属性", `<strong onclick="alert(1)">ciao</strong>`, []string{"onclick"}},
		{"javascriptスキームのリンク", `<a href="javascript:alert(1)">link</a>`, []string{"javascript:"}},
		{"imgタグ", `<img src="x" onerror="alert(1)">`, []string{"<img", "onerror"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			for _, bad := range tt.mustNot {
				if strings.Contains(got, bad) {
					t.Errorf("Sanitize(%q) = %q, must not contain %q", tt.input, got, bad)
				}
			}
		})
	}
}

func TestSanitize_LinksGetTargetBlankAndNoReferrer(t *testing.T) {
	s := NewDescriptionSanitizer()

	got := s.Sanitize(`<a href="https://example.com/doc">documento</a>`)
	if !strings.Contains(got, `href="https://example.com/doc"`) {
		t.Errorf("Sanitize = %q, want href preserved", got)
	}
	if !strings.Contains(got, `target="_blank"`) {
		t.Errorf("Sanitize = %q, want target=_blank on external links", got)
	}
	if !strings.Contains(got, "noreferrer") {
		t.Errorf("Sanitize = %q, want rel noreferrer on links", got)
	}
}

func TestSanitize_IsIdempotent(t *testing.T) {
	s := NewDescriptionSanitizer()

	inputs := []string{
		"riga1<br>riga2 con <strong>enfasi</strong>",
		`prima<script>alert(1)</script>dopo`,
		`<a href="https://example.com">link</a>`,
	}
	for _, input := range inputs {
		once := s.Sanitize(input)
		twice := s.Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize is not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}
