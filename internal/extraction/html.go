// internal/extraction/html.go
package extraction

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// visibleTextXPath selects text nodes outside of subtrees a reader never
// sees rendered.
const visibleTextXPath = `//text()[not(ancestor::script) and not(ancestor::style) and not(ancestor::noscript) and not(ancestor::template)]`

// TextFromHTML reduces an HTML fragment to its visible text, with runs of
// whitespace collapsed to single spaces. Unparsable input falls back to the
// raw string so extraction still has something to work with.
func TextFromHTML(fragment string) string {
	doc, err := htmlquery.Parse(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	var b strings.Builder
	for _, n := range htmlquery.Find(doc, visibleTextXPath) {
		appendTextNode(&b, n)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func appendTextNode(b *strings.Builder, n *html.Node) {
	if n.Type != html.TextNode {
		return
	}
	b.WriteString(n.Data)
	b.WriteByte(' ')
}
