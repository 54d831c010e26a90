package fetcher

import (
	"bytes"
	"io"
	"mime"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// Link is an anchor found on a fetched page.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// removedSelectors are elements that never carry court listings.
const removedSelectors = "script, style, noscript, nav, header, footer, iframe, svg, form"

var (
	metaCharset = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?([\w\-]+)`)
	inlineSpace = regexp.MustCompile(`[ \t\f\v\p{Zs}]+`)
	blankLines  = regexp.MustCompile(`\n{3,}`)
)

// decodeBody converts body to UTF-8 using the Content-Type charset or, when
// absent, a <meta charset> in the first kilobyte.
func decodeBody(body []byte, contentType string) ([]byte, error) {
	name := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		name = params["charset"]
	}
	if name == "" {
		head := body
		if len(head) > 1024 {
			head = head[:1024]
		}
		if m := metaCharset.FindSubmatch(head); m != nil {
			name = string(m[1])
		}
	}
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return body, nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: unsupported charset %q", name)
	}
	out, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(body)))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: decode %s body", name)
	}
	return out, nil
}

// extractPage returns the visible text of an HTML document and its anchors,
// with hrefs resolved against base.
func extractPage(html []byte, base *url.URL) (string, []Link, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", nil, eris.Wrap(err, "fetcher: parse html")
	}

	links := collectLinks(doc, base)

	doc.Find(removedSelectors).Remove()
	// Block-level boundaries become line breaks so paragraphs survive.
	doc.Find("p, div, li, tr, br, h1, h2, h3, h4, h5, h6, section, article, table, address").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	return collapseWhitespace(doc.Find("body").Text()), links, nil
}

func collectLinks(doc *goquery.Document, base *url.URL) []Link {
	var links []Link
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") || strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := ref
		if base != nil {
			abs = base.ResolveReference(ref)
		}
		abs.Fragment = ""
		text := collapseWhitespace(s.Text())
		key := text + "\x00" + abs.String()
		if seen[key] {
			return
		}
		seen[key] = true
		links = append(links, Link{Text: text, Href: abs.String()})
	})
	return links
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
	}
	out := strings.Join(lines, "\n")
	out = blankLines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
