package normalize

import (
	"strings"

	"golang.org/x/net/html"
)

// blockTags end a line of visible text, which keeps sentence boundaries
// intact once the markup is gone.
var blockTags = map[string]struct{}{
	"br": {}, "p": {}, "div": {}, "li": {}, "tr": {}, "td": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"table": {}, "ul": {}, "ol": {}, "blockquote": {}, "hr": {},
}

// LooksLikeHTML reports whether body appears to be an HTML document or
// fragment rather than plain text.
func LooksLikeHTML(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range []string{"<html", "<body", "<div", "<p>", "<p ", "<br", "<table", "</a>"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// StripHTML returns the visible text of an HTML body. Script and style
// content is dropped. If the input cannot be parsed it is returned as is.
func StripHTML(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return body
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "head") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			if _, ok := blockTags[n.Data]; ok {
				b.WriteByte('\n')
			}
		}
	}
	walk(doc)

	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
