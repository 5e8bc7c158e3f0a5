package sitecontent

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// page はHTMLから抽出した情報。
type page struct {
	title       string
	description string
	text        string
	feedLinks   []string
}

// skippedElements は本文として扱わない要素。
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"head":     true,
	"nav":      true,
	"footer":   true,
}

// feedLinkTypes はフィードとして扱う<link>のtype属性。
var feedLinkTypes = map[string]bool{
	"application/rss+xml":  true,
	"application/atom+xml": true,
}

// parsePage はHTMLからタイトル、meta description、表示テキスト、フィードリンクを抽出する。
// フィードリンクの相対URLはbaseURLを基準に解決する。
func parsePage(body []byte, baseURL string) page {
	var p page

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return p
	}
	base, _ := url.Parse(baseURL)

	var text strings.Builder
	var walk func(n *html.Node, inHead bool)
	walk = func(n *html.Node, inHead bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if p.title == "" && n.FirstChild != nil {
					p.title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				name := strings.ToLower(attr(n, "name"))
				if p.description == "" && (name == "description" || strings.ToLower(attr(n, "property")) == "og:description") {
					p.description = strings.TrimSpace(attr(n, "content"))
				}
			case "link":
				if feed := feedLink(n, base); feed != "" {
					p.feedLinks = append(p.feedLinks, feed)
				}
			}
			if n.Data == "head" {
				inHead = true
			}
			if skippedElements[n.Data] && n.Data != "head" {
				return
			}
		}
		if n.Type == html.TextNode && !inHead {
			if s := strings.TrimSpace(n.Data); s != "" {
				text.WriteString(s)
				text.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inHead)
		}
	}
	walk(doc, false)

	p.text = strings.TrimSpace(text.String())
	return p
}

func feedLink(n *html.Node, base *url.URL) string {
	rel := strings.Fields(strings.ToLower(attr(n, "rel")))
	alternate := false
	for _, r := range rel {
		if r == "alternate" {
			alternate = true
		}
	}
	if !alternate || !feedLinkTypes[strings.ToLower(attr(n, "type"))] {
		return ""
	}
	href := attr(n, "href")
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
