package dom

import (
	"regexp"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Class names and attributes written into the host document by highlighting.
const (
	// HighlightTextClass marks a span wrapping a risk phrase.
	HighlightTextClass = "cs-highlight-text"

	// HighlightLinkClass marks a suspicious anchor.
	HighlightLinkClass = "cs-highlight-link"

	// SuspiciousLinkTitle is the tooltip set on suspicious anchors.
	SuspiciousLinkTitle = "CampusShield: this link was flagged as suspicious"

	// savedTitleAttr keeps an anchor's own title while ours is shown.
	savedTitleAttr = "data-cs-title"
)

// ClearHighlights removes every highlight previously applied under root.
// Wrapped phrases are unwrapped back into plain text and anchors get their
// original title back. Calling it on a clean tree changes nothing.
// It reports whether anything was removed.
func ClearHighlights(root *html.Node) bool {
	var spans, anchors []*html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		if n.DataAtom == atom.Span && HasClass(n, HighlightTextClass) {
			spans = append(spans, n)
			return false
		}
		if n.DataAtom == atom.A && HasClass(n, HighlightLinkClass) {
			anchors = append(anchors, n)
		}
		return true
	})

	for _, span := range spans {
		parent := span.Parent
		for c := span.FirstChild; c != nil; {
			next := c.NextSibling
			span.RemoveChild(c)
			parent.InsertBefore(c, span)
			c = next
		}
		parent.RemoveChild(span)
		mergeText(parent)
	}

	for _, a := range anchors {
		RemoveClass(a, HighlightLinkClass)
		if HasAttr(a, savedTitleAttr) {
			SetAttr(a, "title", Attr(a, savedTitleAttr))
			RemoveAttr(a, savedTitleAttr)
		} else {
			RemoveAttr(a, "title")
		}
	}

	return len(spans) > 0 || len(anchors) > 0
}

// HighlightLinks marks every anchor whose href contains any of the
// suspicious fragments. It returns the number of anchors marked.
func HighlightLinks(root *html.Node, suspicious []string) int {
	fragments := slices.DeleteFunc(slices.Clone(suspicious), func(s string) bool { return s == "" })
	if len(fragments) == 0 {
		return 0
	}

	marked := 0
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.A {
			return true
		}
		href := Attr(n, "href")
		if href == "" {
			return true
		}
		for _, frag := range fragments {
			if !strings.Contains(href, frag) {
				continue
			}
			if !HasClass(n, HighlightLinkClass) {
				if HasAttr(n, "title") {
					SetAttr(n, savedTitleAttr, Attr(n, "title"))
				}
				AddClass(n, HighlightLinkClass)
				SetAttr(n, "title", SuspiciousLinkTitle)
			}
			marked++
			break
		}
		return true
	})
	return marked
}

// PhrasePattern compiles a case-insensitive matcher for the given phrases.
// Longer phrases are tried first so that overlapping phrases wrap the
// longest match. It returns nil when no phrase is given.
func PhrasePattern(phrases []string) *regexp.Regexp {
	quoted := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			quoted = append(quoted, regexp.QuoteMeta(p))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	slices.SortFunc(quoted, func(a, b string) int { return len(b) - len(a) })
	return regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
}

// HighlightPhrases wraps every occurrence matched by pattern in the visible
// text under root into a <span class="cs-highlight-text">. Only text nodes
// are touched; element structure and entities are preserved. It returns
// the number of wrapped occurrences.
func HighlightPhrases(root *html.Node, pattern *regexp.Regexp) int {
	if root == nil || pattern == nil {
		return 0
	}

	var targets []*html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if isInvisible(n) || (n.DataAtom == atom.Span && HasClass(n, HighlightTextClass)) {
				return false
			}
			return true
		}
		if n.Type == html.TextNode && n.Parent != nil && pattern.MatchString(n.Data) {
			targets = append(targets, n)
		}
		return true
	})

	wrapped := 0
	for _, text := range targets {
		wrapped += wrapMatches(text, pattern)
	}
	return wrapped
}

// wrapMatches splits a text node around its matches and replaces it with
// the resulting sequence of text nodes and highlight spans.
func wrapMatches(text *html.Node, pattern *regexp.Regexp) int {
	parent := text.Parent
	data := text.Data
	matches := pattern.FindAllStringIndex(data, -1)

	last := 0
	for _, m := range matches {
		if m[0] > last {
			parent.InsertBefore(&html.Node{Type: html.TextNode, Data: data[last:m[0]]}, text)
		}
		span := &html.Node{
			Type:     html.ElementNode,
			Data:     "span",
			DataAtom: atom.Span,
			Attr:     []html.Attribute{{Key: "class", Val: HighlightTextClass}},
		}
		span.AppendChild(&html.Node{Type: html.TextNode, Data: data[m[0]:m[1]]})
		parent.InsertBefore(span, text)
		last = m[1]
	}
	if last < len(data) {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: data[last:]}, text)
	}
	parent.RemoveChild(text)
	return len(matches)
}

// mergeText joins adjacent text children of n.
func mergeText(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode && next != nil && next.Type == html.TextNode {
			c.Data += next.Data
			n.RemoveChild(next)
			continue
		}
		c = next
	}
}
