package document

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attr returns the value of an attribute and whether it is present.
func (d *Document) Attr(n *html.Node, key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return attrOK(n, key)
}

// SetAttr sets an attribute, adding it when missing.
func (d *Document) SetAttr(n *html.Node, key, val string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	setAttr(n, key, val)
}

// RemoveAttr deletes an attribute.
func (d *Document) RemoveAttr(n *html.Node, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	removeAttr(n, key)
}

// HasClass reports whether n carries the class.
func (d *Document) HasClass(n *html.Node, class string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// AddClass adds a class to n if not already present.
func (d *Document) AddClass(n *html.Node, class string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fields := strings.Fields(attr(n, "class"))
	for _, c := range fields {
		if c == class {
			return
		}
	}
	setAttr(n, "class", strings.Join(append(fields, class), " "))
}

// RemoveClass removes a class from n.
func (d *Document) RemoveClass(n *html.Node, class string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fields := strings.Fields(attr(n, "class"))
	kept := fields[:0]
	for _, c := range fields {
		if c != class {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		removeAttr(n, "class")
		return
	}
	setAttr(n, "class", strings.Join(kept, " "))
}

// Text returns the trimmed text content of n.
func (d *Document) Text(n *html.Node) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return strings.TrimSpace(textContent(n))
}

// SetText replaces the children of n with a single text node.
func (d *Document) SetText(n *html.Node, s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	setText(n, s)
}

// SetInnerHTML parses markup in the context of n and replaces its children.
func (d *Document) SetInnerHTML(n *html.Node, markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markup), n)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	removeChildren(n)
	for _, c := range nodes {
		n.AppendChild(c)
	}
	return nil
}

// AppendChild appends c to n.
func (d *Document) AppendChild(n, c *html.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n.AppendChild(c)
}

// Value returns the current value of a form control. For <select> it is the
// value of the selected option (or the first one).
func (d *Document) Value(n *html.Node) string {
	if n == nil {
		return ""
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	switch n.DataAtom {
	case atom.Textarea:
		return textContent(n)
	case atom.Select:
		var first, selected *html.Node
		walk(n, func(c *html.Node) {
			if c.Type != html.ElementNode || c.DataAtom != atom.Option {
				return
			}
			if first == nil {
				first = c
			}
			if _, ok := attrOK(c, "selected"); ok && selected == nil {
				selected = c
			}
		})
		if selected == nil {
			selected = first
		}
		if selected == nil {
			return ""
		}
		if v, ok := attrOK(selected, "value"); ok {
			return v
		}
		return strings.TrimSpace(textContent(selected))
	}
	return attr(n, "value")
}

// SetValue sets the value of a form control.
func (d *Document) SetValue(n *html.Node, v string) {
	if n == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	switch n.DataAtom {
	case atom.Textarea:
		setText(n, v)
	case atom.Select:
		walk(n, func(c *html.Node) {
			if c.Type != html.ElementNode || c.DataAtom != atom.Option {
				return
			}
			ov, ok := attrOK(c, "value")
			if !ok {
				ov = strings.TrimSpace(textContent(c))
			}
			if ov == v {
				setAttr(c, "selected", "")
			} else {
				removeAttr(c, "selected")
			}
		})
	default:
		setAttr(n, "value", v)
	}
}

// Element builds a detached element with the given attributes and text.
func Element(tag string, text string, attrs ...html.Attribute) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return n
}

// A is shorthand for an html.Attribute.
func A(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func attr(n *html.Node, key string) string {
	v, _ := attrOK(n, key)
	return v
}

func attrOK(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	if n == nil {
		return
	}
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	if n == nil {
		return
	}
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return sb.String()
}

func setText(n *html.Node, s string) {
	if n == nil {
		return
	}
	removeChildren(n)
	if s != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	}
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

func cloneNode(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for k := n.FirstChild; k != nil; k = k.NextSibling {
		c.AppendChild(cloneNode(k))
	}
	return c
}

// walk visits n and its descendants depth-first, in document order.
func walk(n *html.Node, fn func(*html.Node)) {
	if n == nil {
		return
	}
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func findAtom(n *html.Node, a atom.Atom) *html.Node {
	return findNode(n, func(c *html.Node) bool {
		return c.Type == html.ElementNode && c.DataAtom == a
	})
}
