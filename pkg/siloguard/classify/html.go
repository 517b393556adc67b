package classify

import (
	"strings"

	"golang.org/x/net/html"
)

// HeadFacts are the on-page signals extracted from synced HTML.
type HeadFacts struct {
	H1        string
	Canonical string
}

// ExtractHeadFacts parses page HTML and pulls the first H1 text and the
// canonical link target. Malformed HTML yields whatever was parseable; a
// parse failure yields empty facts.
func ExtractHeadFacts(content string) HeadFacts {
	var facts HeadFacts

	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return facts
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "h1":
				if facts.H1 == "" {
					facts.H1 = strings.TrimSpace(textContent(n))
				}
			case "link":
				if facts.Canonical == "" && attr(n, "rel") == "canonical" {
					facts.Canonical = attr(n, "href")
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	return facts
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		sb.WriteString(textContent(child))
	}
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
