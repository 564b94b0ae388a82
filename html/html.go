// Package html extracts the reusable parts of a fetched page: its content
// region, title, header fragments and scripts.
package html

import (
	"errors"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrNoContent is returned when a page has no content region.
var ErrNoContent = errors.New("page has no content region")

// Fragment is the parsed form of one fetched page. It is built per
// navigation and dropped once the swap is done.
type Fragment struct {
	Main        *html.Node
	Title       string
	HeaderTitle *html.Node // nil when the page has none
	Subtitle    *html.Node // nil when the page has none

	// Scripts are the src values of external scripts, in document order.
	Scripts []string
	// InlineScripts are the bodies of scripts without src, in document order.
	InlineScripts []string
}

// Options configures which elements are extracted.
type Options struct {
	ContentSelector     string
	HeaderTitleSelector string
	SubtitleSelector    string
}

// DefaultOptions returns the selectors the bulletin pages use.
func DefaultOptions() Options {
	return Options{
		ContentSelector:     "main",
		HeaderTitleSelector: ".app-title",
		SubtitleSelector:    ".subtitle",
	}
}

// Package-level options (set via Configure)
var opts = DefaultOptions()

// Configure sets the package-level options. Empty fields keep their current
// value.
func Configure(o Options) {
	if o.ContentSelector != "" {
		opts.ContentSelector = o.ContentSelector
	}
	if o.HeaderTitleSelector != "" {
		opts.HeaderTitleSelector = o.HeaderTitleSelector
	}
	if o.SubtitleSelector != "" {
		opts.SubtitleSelector = o.SubtitleSelector
	}
}

// Current returns the options in effect.
func Current() Options {
	return opts
}

// Parse extracts a Fragment from page markup.
func Parse(r io.Reader) (*Fragment, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return FromNode(root)
}

// ParseString parses a page from a string.
func ParseString(s string) (*Fragment, error) {
	return Parse(strings.NewReader(s))
}

// FromNode extracts a Fragment from an already parsed page.
func FromNode(root *html.Node) (*Fragment, error) {
	doc := goquery.NewDocumentFromNode(root)

	main := doc.Find(opts.ContentSelector).First()
	if main.Length() == 0 {
		return nil, ErrNoContent
	}

	frag := &Fragment{
		Main:  main.Get(0),
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}
	if s := doc.Find(opts.HeaderTitleSelector).First(); s.Length() > 0 {
		frag.HeaderTitle = s.Get(0)
	}
	if s := doc.Find(opts.SubtitleSelector).First(); s.Length() > 0 {
		frag.Subtitle = s.Get(0)
	}

	doc.Find("script").Each(func(i int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			frag.Scripts = append(frag.Scripts, src)
			return
		}
		frag.InlineScripts = append(frag.InlineScripts, textContent(s.Get(0)))
	})

	return frag, nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return sb.String()
}
