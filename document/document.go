// Package document holds the live page the navigator works on: a parsed DOM
// tree, its location and title, and the event targets attached to its nodes.
package document

import (
	"bytes"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoMain is returned when the live document has no content region.
var ErrNoMain = errors.New("document has no <main> element")

const blankPage = `<!DOCTYPE html><html><head><title></title></head><body></body></html>`

// Document is the live page. Its methods are safe for concurrent use; nodes
// handed out by Find and friends should only be mutated through Document
// methods.
type Document struct {
	EventTarget // document-level listeners

	mu      sync.RWMutex
	root    *html.Node
	url     *url.URL
	active  *html.Node
	targets map[*html.Node]*EventTarget
}

// New returns an empty document located at u.
func New(u *url.URL) *Document {
	d, _ := ParseString(blankPage, u)
	return d
}

// Parse builds a document from HTML markup.
func Parse(r io.Reader, u *url.URL) (*Document, error) {
	d := &Document{}
	if err := d.Load(r, u); err != nil {
		return nil, err
	}
	return d, nil
}

// ParseString parses HTML from a string.
func ParseString(s string, u *url.URL) (*Document, error) {
	return Parse(strings.NewReader(s), u)
}

// Load replaces the whole page, as a full browser navigation does. Every
// listener attached to the old page, including document-level ones, is
// dropped.
func (d *Document) Load(r io.Reader, u *url.URL) error {
	root, err := html.Parse(r)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.root = root
	d.url = cloneURL(u)
	d.active = nil
	d.targets = make(map[*html.Node]*EventTarget)
	d.mu.Unlock()

	d.EventTarget.reset()
	return nil
}

// URL returns a copy of the document location.
func (d *Document) URL() *url.URL {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneURL(d.url)
}

// SetURL updates the document location without touching content.
func (d *Document) SetURL(u *url.URL) {
	d.mu.Lock()
	d.url = cloneURL(u)
	d.mu.Unlock()
}

// Path returns the location path, or "" for a document with no location.
func (d *Document) Path() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.url == nil {
		return ""
	}
	return d.url.Path
}

// Resolve resolves ref against the document location.
func (d *Document) Resolve(ref string) (*url.URL, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.url == nil {
		return r, nil
	}
	return d.url.ResolveReference(r), nil
}

// Title returns the text of the <title> element.
func (d *Document) Title() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if t := findAtom(d.root, atom.Title); t != nil {
		return strings.TrimSpace(textContent(t))
	}
	return ""
}

// SetTitle sets the document title, creating <title> when missing.
func (d *Document) SetTitle(title string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := findAtom(d.root, atom.Title)
	if t == nil {
		head := findAtom(d.root, atom.Head)
		if head == nil {
			return
		}
		t = &html.Node{Type: html.ElementNode, Data: "title", DataAtom: atom.Title}
		head.AppendChild(t)
	}
	setText(t, title)
}

// Find returns every node matching the CSS selector, in document order.
func (d *Document) Find(selector string) []*html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return goquery.NewDocumentFromNode(d.root).Find(selector).Nodes
}

// First returns the first node matching the selector, or nil.
func (d *Document) First(selector string) *html.Node {
	if nodes := d.Find(selector); len(nodes) > 0 {
		return nodes[0]
	}
	return nil
}

// ByID returns the element with the given id attribute, or nil.
func (d *Document) ByID(id string) *html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return findNode(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == id
	})
}

// Main returns the content region.
func (d *Document) Main() *html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return findAtom(d.root, atom.Main)
}

// ReplaceMain swaps the live content region for n. n is detached from
// whatever tree it came from. Listeners attached inside the old region are
// forgotten along with it.
func (d *Document) ReplaceMain(n *html.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	old := findAtom(d.root, atom.Main)
	if old == nil || old.Parent == nil {
		return ErrNoMain
	}
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
	old.Parent.InsertBefore(n, old)
	old.Parent.RemoveChild(old)

	walk(old, func(c *html.Node) {
		delete(d.targets, c)
		if c == d.active {
			d.active = nil
		}
	})
	return nil
}

// CopyInner replaces the children of the first live node matching selector
// with copies of src's children. It reports false when no live node matches.
func (d *Document) CopyInner(selector string, src *html.Node) bool {
	dst := d.First(selector)
	if dst == nil || src == nil {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	removeChildren(dst)
	for c := src.FirstChild; c != nil; c = c.NextSibling {
		dst.AppendChild(cloneNode(c))
	}
	return true
}

// Script is one <script> element of the page.
type Script struct {
	Src    string // empty for inline scripts
	Body   string
	Inline bool
}

// Scripts lists every script element in document order.
func (d *Document) Scripts() []Script {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Script
	walk(d.root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.DataAtom != atom.Script {
			return
		}
		if src, ok := attrOK(n, "src"); ok {
			out = append(out, Script{Src: src})
			return
		}
		out = append(out, Script{Body: textContent(n), Inline: true})
	})
	return out
}

// HasScript reports whether a <script> with exactly this src is present.
func (d *Document) HasScript(src string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return findNode(d.root, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.Script {
			return false
		}
		v, ok := attrOK(n, "src")
		return ok && v == src
	}) != nil
}

// AppendScript inserts an external <script> element at the end of <body>.
func (d *Document) AppendScript(src string) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
		Attr:     []html.Attribute{{Key: "src", Val: src}},
	}
	parent := findAtom(d.root, atom.Body)
	if parent == nil {
		parent = d.root
	}
	parent.AppendChild(s)
	return s
}

// Target returns the event target for n, creating it on first use. It
// returns nil for a nil node.
func (d *Document) Target(n *html.Node) *EventTarget {
	if n == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.targets[n]
	if !ok {
		t = &EventTarget{}
		d.targets[n] = t
	}
	return t
}

// Dispatch fires ev at n and bubbles it through n's ancestors and then the
// document itself.
func (d *Document) Dispatch(n *html.Node, ev *Event) *Event {
	ev.Target = n

	d.mu.RLock()
	var path []*html.Node
	var targets []*EventTarget
	for c := n; c != nil; c = c.Parent {
		if t, ok := d.targets[c]; ok {
			path = append(path, c)
			targets = append(targets, t)
		}
	}
	d.mu.RUnlock()

	for i, t := range targets {
		if ev.stopped {
			return ev
		}
		ev.CurrentTarget = path[i]
		t.dispatch(ev)
	}
	if !ev.stopped {
		ev.CurrentTarget = nil
		d.EventTarget.dispatch(ev)
	}
	return ev
}

// Click dispatches a click event at n.
func (d *Document) Click(n *html.Node) *Event {
	return d.Dispatch(n, &Event{Type: "click"})
}

// Focus makes n the active element.
func (d *Document) Focus(n *html.Node) {
	d.mu.Lock()
	d.active = n
	d.mu.Unlock()
}

// ActiveElement returns the focused node, or nil.
func (d *Document) ActiveElement() *html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.active
}

// Closest returns n or its nearest ancestor matched by m.
func Closest(n *html.Node, m cascadia.Matcher) *html.Node {
	for c := n; c != nil; c = c.Parent {
		if c.Type == html.ElementNode && m.Match(c) {
			return c
		}
	}
	return nil
}

// HTML renders the whole page.
func (d *Document) HTML() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return render(d.root)
}

// OuterHTML renders n and its subtree.
func (d *Document) OuterHTML(n *html.Node) string {
	if n == nil {
		return ""
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return render(n)
}

// InnerHTML renders the children of n.
func (d *Document) InnerHTML(n *html.Node) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&buf, c)
	}
	return buf.String()
}

func render(n *html.Node) string {
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
