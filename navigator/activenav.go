package navigator

import (
	"net/url"

	"golang.org/x/net/html"

	"findit/document"
)

const activeClass = "active"

// SetActiveNav marks the first link matching selector whose href names the
// same page as target and clears the mark from every other link. It returns
// the marked link, or nil when none matches.
func SetActiveNav(doc *document.Document, selector string, target *url.URL) *html.Node {
	want := pageName(target.Path)

	var marked *html.Node
	for _, n := range doc.Find(selector) {
		href, _ := doc.Attr(n, "href")
		u, err := url.Parse(href)
		if marked == nil && err == nil && u.Path != "" && pageName(u.Path) == want {
			doc.AddClass(n, activeClass)
			marked = n
			continue
		}
		doc.RemoveClass(n, activeClass)
	}
	return marked
}
