package processor

import (
	"strings"
	"testing"
)

func TestContainsMathNotation(t *testing.T) {
	positive := []string{
		`display math $$x^2$$ here`,
		`inline \(a+b\) math`,
		`block \[c=d\] math`,
		`\begin{align}x\end{align}`,
		`<script src="MathJax.js"></script>`,
		`<span class="math inline">x</span>`,
		`<span class="math">x</span>`,
		`<span class='math'>x</span>`,
		`<span class='math display'>x</span>`,
	}
	for _, content := range positive {
		if !ContainsMathNotation(content) {
			t.Errorf("should detect math in %q", content)
		}
	}

	negative := []string{
		"",
		"plain prose about nothing",
		"prices start at $5 and go up to $10",
		`<div class="mathless">no math</div>`,
		`<div class='mathematics-history'>an essay</div>`,
	}
	for _, content := range negative {
		if ContainsMathNotation(content) {
			t.Errorf("false positive for %q", content)
		}
	}
}

func TestRewriteLinksRelative(t *testing.T) {
	content := `<p><a href="/about">about</a> <img src="images/cat.png"/></p>`
	got, err := RewriteLinks(content, "https://example.com/blog/post")
	if err != nil {
		t.Fatalf("RewriteLinks: %v", err)
	}
	if !strings.Contains(got, `href="https://example.com/about"`) {
		t.Errorf("rooted href not resolved: %s", got)
	}
	if !strings.Contains(got, `src="https://example.com/blog/images/cat.png"`) {
		t.Errorf("relative src not resolved: %s", got)
	}
}

func TestRewriteLinksUnchangedPassthrough(t *testing.T) {
	for _, content := range []string{
		`<p><a href="https://other.example.com/x">absolute</a></p>`,
		`<p><a href="#section">fragment</a></p>`,
		`<p><a href="mailto:a@example.com">mail</a></p>`,
		`<p><img src="data:image/png;base64,AAAA"/></p>`,
		`<p>no links at all</p>`,
	} {
		got, err := RewriteLinks(content, "https://example.com/post")
		if err != nil {
			t.Fatalf("RewriteLinks(%q): %v", content, err)
		}
		if got != content {
			t.Errorf("content changed: got %q, want %q", got, content)
		}
	}
}

func TestRewriteLinksUnparseableBase(t *testing.T) {
	content := `<p><a href="/x">x</a></p>`
	got, err := RewriteLinks(content, "relative/base")
	if err != nil {
		t.Fatalf("RewriteLinks: %v", err)
	}
	if got != content {
		t.Error("non-absolute base must leave content untouched")
	}
}

func TestClean(t *testing.T) {
	dirty := `<p onclick="evil()">text</p><script>alert(1)</script>`
	got := Clean(dirty)
	if strings.Contains(got, "script") || strings.Contains(got, "onclick") {
		t.Errorf("dangerous markup survived: %q", got)
	}
	if !strings.Contains(got, "text") {
		t.Errorf("content lost: %q", got)
	}
}
