package controller

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"findit/document"
	"findit/items"
	"findit/lifecycle"
	"findit/session"
)

const (
	recentLimit   = 8
	locationLimit = 5
)

var dashboardSections = []struct{ name, id string }{
	{"overview", "overviewSection"},
	{"recent", "recentSection"},
	{"locations", "locationsSection"},
}

// Dashboard shows item statistics with tabbed sections.
type Dashboard struct {
	doc     *document.Document
	store   *items.Store
	history *session.History
	logger  *zap.Logger
	reg     lifecycle.Registry

	tabs []*html.Node
}

// NewDashboard returns an unmounted dashboard. When history is set,
// switching sections records the section in the current entry's URL.
func NewDashboard(doc *document.Document, store *items.Store, history *session.History, logger *zap.Logger) *Dashboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dashboard{doc: doc, store: store, history: history, logger: logger.Named("dashboard")}
}

// Mount renders the statistics and wires the section tabs.
func (b *Dashboard) Mount() error {
	b.reg.Clear()
	b.Render()

	b.tabs = b.doc.Find(".dashboard-tab")
	for _, tab := range b.tabs {
		t := b.doc.Target(tab)
		b.doc.SetAttr(tab, "role", "tab")
		b.doc.SetAttr(tab, "tabindex", "0")
		b.reg.Listen(t, "click", func(*document.Event) {
			name, _ := b.doc.Attr(tab, "data-section")
			b.ShowSection(name)
		})
		b.reg.Listen(t, "keydown", b.tabKey)
	}
	if len(b.tabs) == 0 {
		return nil
	}

	section := "overview"
	if u := b.doc.URL(); u != nil && u.Fragment != "" {
		section = u.Fragment
	}
	// The entry for this page may not exist yet, so the initial section is
	// not recorded in history.
	b.show(section, false)
	return nil
}

// Unmount detaches the tab listeners.
func (b *Dashboard) Unmount() {
	if n := b.reg.Clear(); n > 0 {
		b.logger.Debug("unmounted", zap.Int("listeners", n))
	}
	b.tabs = nil
}

// Listeners returns the number of listeners currently attached.
func (b *Dashboard) Listeners() int {
	return b.reg.Len()
}

// Render fills in the counts, the recent items and the top locations.
func (b *Dashboard) Render() {
	d := b.doc
	c := b.store.Counts()
	if n := d.ByID("totalCount"); n != nil {
		d.SetText(n, strconv.Itoa(c.Total))
	}
	if n := d.ByID("lostCount"); n != nil {
		d.SetText(n, strconv.Itoa(c.Lost))
	}
	if n := d.ByID("foundCount"); n != nil {
		d.SetText(n, strconv.Itoa(c.Found))
	}

	if list := d.ByID("recentList"); list != nil {
		d.SetText(list, "")
		recent := b.store.Recent(recentLimit)
		if len(recent) == 0 {
			d.AppendChild(list, document.Element("div", "No items yet", document.A("class", "card")))
		}
		for _, it := range recent {
			date := it.Date
			if date == "" {
				date = "Unknown"
			}
			card := document.Element("div", "", document.A("class", "item card"))
			card.AppendChild(document.Element("h4", it.Name))
			card.AppendChild(document.Element("div", it.Location+" • "+date, document.A("class", "meta")))
			card.AppendChild(document.Element("a", "Open in App",
				document.A("class", "btn nav-link"),
				document.A("href", "index.html?edit="+it.ID),
			))
			d.AppendChild(list, card)
		}
	}

	if top := d.ByID("topLocations"); top != nil {
		d.SetText(top, "")
		locs := b.store.TopLocations(locationLimit)
		if len(locs) == 0 {
			d.SetText(top, "(No data yet)")
		}
		for _, l := range locs {
			d.AppendChild(top, document.Element("div", fmt.Sprintf("%s: %d", l.Location, l.Count)))
		}
	}
}

// ShowSection displays one section and marks its tab selected.
func (b *Dashboard) ShowSection(name string) {
	b.show(name, true)
}

func (b *Dashboard) show(name string, record bool) {
	d := b.doc
	for _, s := range dashboardSections {
		el := d.ByID(s.id)
		if el == nil {
			continue
		}
		if s.name == name {
			d.RemoveAttr(el, "style")
		} else {
			d.SetAttr(el, "style", "display:none")
		}
	}
	for _, tab := range b.tabs {
		section, _ := d.Attr(tab, "data-section")
		if section == name {
			d.SetAttr(tab, "aria-selected", "true")
			d.AddClass(tab, "active")
		} else {
			d.SetAttr(tab, "aria-selected", "false")
			d.RemoveClass(tab, "active")
		}
	}

	if !record || b.history == nil {
		return
	}
	if u := d.URL(); u != nil {
		u.Fragment = name
		b.history.Replace(u.String(), nil)
		d.SetURL(u)
	}
}

// Section returns the name of the visible section, or "".
func (b *Dashboard) Section() string {
	for _, tab := range b.tabs {
		if b.doc.HasClass(tab, "active") {
			name, _ := b.doc.Attr(tab, "data-section")
			return name
		}
	}
	return ""
}

func (b *Dashboard) tabKey(ev *document.Event) {
	idx := -1
	active := b.doc.ActiveElement()
	for i, t := range b.tabs {
		if t == active {
			idx = i
		}
	}
	if idx < 0 {
		return
	}

	next := idx
	switch ev.Key {
	case "ArrowRight":
		next = (idx + 1) % len(b.tabs)
	case "ArrowLeft":
		next = (idx - 1 + len(b.tabs)) % len(b.tabs)
	case "Home":
		next = 0
	case "End":
		next = len(b.tabs) - 1
	}
	if next != idx {
		b.doc.Focus(b.tabs[next])
	}
}
