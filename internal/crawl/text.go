package crawl

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// TextExtractor converts fetched HTML into the plain text that keyword
// search runs over.
type TextExtractor interface {
	PlainText(content []byte) (string, error)
}

var inlineElements = map[string]struct{}{
	"a": {}, "abbr": {}, "b": {}, "bdi": {}, "bdo": {}, "cite": {}, "code": {}, "data": {},
	"dfn": {}, "em": {}, "i": {}, "kbd": {}, "mark": {}, "q": {}, "s": {}, "samp": {},
	"small": {}, "span": {}, "strong": {}, "sub": {}, "sup": {}, "time": {}, "u": {}, "var": {},
}

// HTMLText is the goquery-backed TextExtractor. Script, style and
// template contents are dropped. Block elements separate words; inline
// elements do not, so "cat<b>alog</b>" still reads as one word.
type HTMLText struct{}

func (HTMLText) PlainText(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, template").Remove()

	var raw strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		_, inline := inlineElements[n.Data]
		block := n.Type == html.ElementNode && !inline
		if block {
			raw.WriteByte(' ')
		}
		if n.Type == html.TextNode {
			raw.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			raw.WriteByte(' ')
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(raw.String()), " "), nil
}
