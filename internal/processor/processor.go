// Package processor holds content post-processing applied to stored story
// content: math notation detection, relative link rewriting, and HTML
// sanitization.
package processor

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// mathjaxMarkers are substrings whose presence means the content needs a
// math renderer. TeX delimiters plus the class names MathJax-enabled
// publishers emit. The class markers end at a quote or space so that a
// "math" class matches but unrelated names like "mathless" do not.
var mathjaxMarkers = []string{
	`$$`,
	`\(`,
	`\[`,
	`\begin{`,
	"MathJax",
	`class="math"`,
	`class="math `,
	`class='math'`,
	`class='math `,
}

// ContainsMathNotation reports whether story content needs math rendering.
func ContainsMathNotation(content string) bool {
	for _, marker := range mathjaxMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

// RewriteLinks resolves relative a[href] and img[src] URLs in story content
// against the story's link. Content without relative references is returned
// unchanged byte-for-byte.
func RewriteLinks(content, baseLink string) (string, error) {
	base, err := url.Parse(baseLink)
	if err != nil || !base.IsAbs() {
		return content, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse story content: %w", err)
	}

	changed := false
	rewrite := func(sel *goquery.Selection, attr string) {
		sel.Each(func(_ int, node *goquery.Selection) {
			val, ok := node.Attr(attr)
			if !ok || val == "" {
				return
			}
			ref, err := url.Parse(val)
			if err != nil || ref.IsAbs() || strings.HasPrefix(val, "#") ||
				strings.HasPrefix(val, "data:") || strings.HasPrefix(val, "mailto:") {
				return
			}
			node.SetAttr(attr, base.ResolveReference(ref).String())
			changed = true
		})
	}
	rewrite(doc.Find("a[href]"), "href")
	rewrite(doc.Find("img[src]"), "src")

	if !changed {
		return content, nil
	}
	html, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("render story content: %w", err)
	}
	return html, nil
}

var sanitizePolicy = bluemonday.UGCPolicy()

// Clean strips dangerous or unwanted markup from story content.
func Clean(content string) string {
	return sanitizePolicy.Sanitize(content)
}
