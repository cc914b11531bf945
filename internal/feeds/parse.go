package feeds

import (
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/extraction"
)

// parseFeed turns an RSS 2.0, RSS 1.0 (RDF) or Atom document into raw units.
// The collection timestamp is passed in so the caller controls the clock.
func parseFeed(data []byte, now time.Time) ([]schemas.RawUnit, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to parse feed XML: %w", err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("feed document has no root element")
	}

	switch root.Tag {
	case "rss", "RDF":
		return parseRSSItems(doc.FindElements("//item"), now), nil
	case "feed":
		return parseAtomEntries(doc.FindElements("//entry"), now), nil
	default:
		return nil, fmt.Errorf("unrecognized feed format: <%s>", root.Tag)
	}
}

func parseRSSItems(items []*etree.Element, now time.Time) []schemas.RawUnit {
	units := make([]schemas.RawUnit, 0, len(items))
	for _, item := range items {
		title := childText(item, "title")
		desc := childText(item, "description")

		author := childText(item, "author")
		if author == "" {
			// Matches dc:creator; selection by local name ignores the
			// namespace prefix.
			author = childText(item, "creator")
		}

		unit := schemas.RawUnit{
			Content:     joinContent(title, desc),
			AuthorLabel: author,
			SourceURL:   childText(item, "link"),
			CollectedAt: now,
		}
		if unit.Content == "" {
			continue
		}
		units = append(units, unit)
	}
	return units
}

func parseAtomEntries(entries []*etree.Element, now time.Time) []schemas.RawUnit {
	units := make([]schemas.RawUnit, 0, len(entries))
	for _, entry := range entries {
		title := childText(entry, "title")

		desc := childText(entry, "summary")
		if desc == "" {
			desc = childText(entry, "content")
		}

		var author string
		if el := entry.SelectElement("author"); el != nil {
			author = childText(el, "name")
		}

		unit := schemas.RawUnit{
			Content:     joinContent(title, desc),
			AuthorLabel: author,
			SourceURL:   atomLink(entry),
			CollectedAt: now,
		}
		if unit.Content == "" {
			continue
		}
		units = append(units, unit)
	}
	return units
}

// atomLink prefers the alternate link, the one pointing at the posting
// itself, over rel="self" and friends.
func atomLink(entry *etree.Element) string {
	var fallback string
	for _, link := range entry.SelectElements("link") {
		href := strings.TrimSpace(link.SelectAttrValue("href", ""))
		if href == "" {
			continue
		}
		rel := link.SelectAttrValue("rel", "")
		if rel == "" || rel == "alternate" {
			return href
		}
		if fallback == "" {
			fallback = href
		}
	}
	return fallback
}

func childText(parent *etree.Element, tag string) string {
	el := parent.SelectElement(tag)
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

// joinContent flattens the HTML description most feeds ship and glues it to
// the title so downstream extraction sees one text block per posting.
func joinContent(title, desc string) string {
	title = strings.TrimSpace(title)
	body := ""
	if desc != "" {
		body = strings.TrimSpace(extraction.TextFromHTML(desc))
	}
	switch {
	case title == "":
		return body
	case body == "":
		return title
	default:
		return title + "\n\n" + body
	}
}
