package crawl

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

type ParsedPage struct {
	Title string
	Links []string
}

// ParsePage extracts the title and the absolute http(s) links of an HTML
// document. Links are resolved against baseURL, stripped of fragments and
// deduplicated in document order.
func ParsePage(baseURL string, body []byte) (*ParsedPage, error) {

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	var (
		title string
		links []string
		seen  = make(map[string]struct{})
	)

	var walker func(*html.Node)
	walker = func(n *html.Node) {

		if n.Type == html.ElementNode && n.Data == "base" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					if ref, err := url.Parse(strings.TrimSpace(attr.Val)); err == nil {
						base = base.ResolveReference(ref)
					}
				}
			}
		}

		if n.Type == html.ElementNode && n.Data == "title" && title == "" {
			if n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
		}

		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				href := strings.TrimSpace(attr.Val)
				if href == "" || strings.HasPrefix(href, "#") {
					continue
				}

				ref, err := url.Parse(href)
				if err != nil {
					continue
				}

				absolute := base.ResolveReference(ref)
				if absolute.Scheme != "http" && absolute.Scheme != "https" {
					continue
				}
				link := NormalizeURL(absolute)
				if _, dup := seen[link]; dup {
					continue
				}
				seen[link] = struct{}{}
				links = append(links, link)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walker(c)
		}
	}

	walker(doc)

	return &ParsedPage{
		Title: title,
		Links: links,
	}, nil
}

// NormalizeURL returns the canonical string form used as a crawl key:
// lowercase scheme and host, "/" for an empty path, no fragment. u is
// modified in place.
func NormalizeURL(u *url.URL) string {
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" && u.Opaque == "" && u.Host != "" {
		u.Path = "/"
		u.RawPath = ""
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
