// Package htmltext turns page markup into line-oriented visible text.
//
// Extract is the full extraction used on fetched pages. StripTags is the
// cheaper tokenizer pass used for canned fixtures.
package htmltext

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// noiseSelector lists containers whose text never carries page content.
var noiseSelector = buildNoiseSelector()

func buildNoiseSelector() string {
	sel := []string{"script", "style", "noscript", "template", "svg", "iframe", "dialog",
		`[role="dialog"]`, `[aria-modal="true"]`}
	// Only container elements: body classes like "modal-open" must not match.
	for _, tag := range []string{"div", "section", "aside", "footer"} {
		for _, word := range []string{"cookie", "consent", "banner", "modal", "popup"} {
			sel = append(sel, fmt.Sprintf(`%s[id*="%s"]`, tag, word), fmt.Sprintf(`%s[class*="%s"]`, tag, word))
		}
	}
	return strings.Join(sel, ", ")
}

// Bullet prefixes list items so list structure survives as text.
const Bullet = "• "

var blockAtoms = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true, atom.Footer: true,
	atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true, atom.Li: true,
	atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true, atom.Pre: true,
	atom.Section: true, atom.Table: true, atom.Tbody: true, atom.Td: true,
	atom.Tfoot: true, atom.Th: true, atom.Thead: true, atom.Title: true,
	atom.Tr: true, atom.Ul: true,
}

var skipAtoms = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Svg: true, atom.Head: true,
}

// Extract returns the visible text of markup, one block per line, with
// scripts, styles and cookie/banner/modal containers removed. List items
// are prefixed with Bullet.
func Extract(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return StripTags(markup)
	}
	doc.Find(noiseSelector).Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var b strings.Builder
	for _, n := range root.Nodes {
		writeNode(&b, n)
	}
	return Tidy(b.String())
}

func writeNode(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipAtoms[n.DataAtom] {
			return
		}
	}

	block := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
	if block {
		b.WriteByte('\n')
	}
	if n.Type == html.ElementNode && n.DataAtom == atom.Li {
		b.WriteString(Bullet)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNode(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}

// StripTags is a simplified markup-to-text conversion: it drops tags and the
// bodies of script and style elements, breaking lines at block elements. No
// boilerplate detection is attempted.
func StripTags(markup string) string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var b strings.Builder
	skipDepth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return Tidy(b.String())
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				skipDepth++
			}
			if blockAtoms[a] {
				b.WriteByte('\n')
			}
			if a == atom.Li {
				b.WriteString(Bullet)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if (a == atom.Script || a == atom.Style) && skipDepth > 0 {
				skipDepth--
			}
			if blockAtoms[a] {
				b.WriteByte('\n')
			}
		}
	}
}

// Headings returns the text of every h1-h6 element in document order,
// whitespace-collapsed. Empty headings are skipped.
func Headings(markup string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		if text := collapse(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// Tidy collapses runs of whitespace inside each line and drops blank lines.
func Tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = collapse(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
