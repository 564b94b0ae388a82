// Package controller holds the page controllers the navigator mounts: the
// item list app and the dashboard.
package controller

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"findit/document"
	"findit/items"
	"findit/lifecycle"
)

var actionButton = cascadia.MustCompile("button[data-action]")

// ItemApp drives the item list: the add/edit form, search, filters and the
// per-item actions.
type ItemApp struct {
	doc    *document.Document
	store  *items.Store
	logger *zap.Logger
	reg    lifecycle.Registry

	form       *html.Node
	clearBtn   *html.Node
	list       *html.Node
	search     *html.Node
	filter     *html.Node
	count      *html.Node
	sortBy     *html.Node
	cancelEdit *html.Node
	name       *html.Node

	editID string
}

// NewItemApp returns an unmounted item app.
func NewItemApp(doc *document.Document, store *items.Store, logger *zap.Logger) *ItemApp {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ItemApp{doc: doc, store: store, logger: logger.Named("app")}
}

// Mount resolves the app's elements from the current page and attaches its
// listeners, replacing those of any earlier mount. Missing elements are
// skipped.
func (a *ItemApp) Mount() error {
	d := a.doc
	a.form = d.ByID("addItemForm")
	a.clearBtn = d.ByID("clearForm")
	a.list = d.ByID("itemsList")
	a.search = d.ByID("searchBox")
	a.filter = d.ByID("filterState")
	a.count = d.ByID("itemsCount")
	a.sortBy = d.ByID("sortBy")
	a.cancelEdit = d.ByID("cancelEdit")
	a.name = d.ByID("itemName")

	a.reg.Clear()
	a.reg.Listen(d.Target(a.form), "submit", a.submit)
	a.reg.Listen(d.Target(a.clearBtn), "click", func(*document.Event) { a.resetForm() })
	a.reg.Listen(d.Target(a.search), "input", func(*document.Event) { a.Render() })
	a.reg.Listen(d.Target(a.filter), "change", func(*document.Event) { a.Render() })
	a.reg.Listen(d.Target(a.sortBy), "change", func(*document.Event) { a.Render() })
	a.reg.Listen(d.Target(a.list), "click", a.listAction)
	a.reg.Listen(d.Target(a.cancelEdit), "click", func(*document.Event) { a.OpenAddForm() })
	a.reg.Listen(d, "keydown", a.keydown)

	a.Render()

	u := d.URL()
	if u == nil {
		return nil
	}
	if u.Fragment == "add" {
		a.OpenAddForm()
	}
	if id := u.Query().Get("edit"); id != "" {
		if it, ok := a.store.Get(id); ok {
			a.openEditForm(it)
		}
	}
	return nil
}

// Unmount detaches every listener. It does nothing when not mounted.
func (a *ItemApp) Unmount() {
	if n := a.reg.Clear(); n > 0 {
		a.logger.Debug("unmounted", zap.Int("listeners", n))
	}
}

// Listeners returns the number of listeners currently attached.
func (a *ItemApp) Listeners() int {
	return a.reg.Len()
}

// OpenAddForm resets the form to add a new item and focuses the name field.
func (a *ItemApp) OpenAddForm() {
	a.resetForm()
	a.editID = ""
	a.setSubmitLabel("Add Item")
	a.doc.Focus(a.name)
	if a.cancelEdit != nil {
		a.doc.SetAttr(a.cancelEdit, "style", "display:none")
	}
}

// FocusSearch focuses the search box.
func (a *ItemApp) FocusSearch() {
	if a.search != nil {
		a.doc.Focus(a.search)
	}
}

// ShowAll clears the search and status filter.
func (a *ItemApp) ShowAll() {
	a.doc.SetValue(a.filter, "all")
	a.doc.SetValue(a.search, "")
	a.Render()
}

// AddItem stores a new item and refreshes the list.
func (a *ItemApp) AddItem(it items.Item) (items.Item, error) {
	added, err := a.store.Add(it)
	if err != nil {
		a.logger.Warn("add item failed", zap.Error(err))
		return items.Item{}, err
	}
	a.Render()
	return added, nil
}

// Render redraws the item list from the store using the current search,
// filter and sort controls.
func (a *ItemApp) Render() {
	if a.list == nil {
		return
	}
	d := a.doc
	state := d.Value(a.filter)
	if state == "" {
		state = "all"
	}
	sortBy := items.SortNewest
	if a.sortBy != nil {
		sortBy = d.Value(a.sortBy)
	}
	shown := a.store.Filter(d.Value(a.search), state, sortBy)

	d.SetText(a.list, "")
	if len(shown) == 0 {
		d.AppendChild(a.list, document.Element("div", "No items found. Add a lost item using the form on the left.", document.A("class", "card")))
	}
	for _, it := range shown {
		d.AppendChild(a.list, itemCard(it))
	}
	if a.count != nil {
		d.SetText(a.count, fmt.Sprintf("%d of %d items", len(shown), a.store.Len()))
	}
}

func itemCard(it items.Item) *html.Node {
	card := document.Element("div", "", document.A("class", "item card"), document.A("data-id", it.ID))

	date := it.Date
	if date == "" {
		date = "Date unknown"
	}
	contact := it.Contact
	if contact == "" {
		contact = "-"
	}
	card.AppendChild(document.Element("h4", it.Name))
	card.AppendChild(document.Element("div", it.Location+" • "+date, document.A("class", "meta")))
	card.AppendChild(document.Element("p", it.Desc))
	card.AppendChild(document.Element("div", "Contact: "+contact, document.A("class", "meta")))
	card.AppendChild(document.Element("div", strings.ToUpper(it.Status), document.A("class", "status "+it.Status)))

	mark, markClass := "Mark Found", "btn btn-found"
	if it.Status == items.Found {
		mark, markClass = "Mark Lost", "btn btn-lost"
	}
	actions := document.Element("div", "", document.A("class", "actions"))
	actions.AppendChild(actionBtn(mark, markClass, "toggle-status", it.ID))
	actions.AppendChild(actionBtn("Edit", "btn", "edit", it.ID))
	actions.AppendChild(actionBtn("Delete", "btn btn-danger", "delete", it.ID))
	card.AppendChild(actions)
	return card
}

func actionBtn(label, class, action, id string) *html.Node {
	return document.Element("button", label,
		document.A("class", class),
		document.A("data-action", action),
		document.A("data-id", id),
	)
}

func (a *ItemApp) submit(ev *document.Event) {
	ev.PreventDefault()
	d := a.doc

	it := items.Item{
		Name:     strings.TrimSpace(d.Value(a.name)),
		Desc:     strings.TrimSpace(d.Value(d.ByID("itemDesc"))),
		Location: strings.TrimSpace(d.Value(d.ByID("itemLocation"))),
		Date:     d.Value(d.ByID("itemDate")),
		Contact:  strings.TrimSpace(d.Value(d.ByID("itemContact"))),
		Image:    strings.TrimSpace(d.Value(d.ByID("itemImage"))),
	}
	if it.Name == "" {
		a.logger.Info("item name required")
		return
	}

	if a.editID != "" {
		if _, err := a.store.Update(a.editID, it); err != nil {
			a.logger.Warn("update item failed", zap.Error(err))
		}
		a.editID = ""
		a.setSubmitLabel("Add Item")
		if a.cancelEdit != nil {
			d.SetAttr(a.cancelEdit, "style", "display:none")
		}
	} else if _, err := a.store.Add(it); err != nil {
		a.logger.Warn("add item failed", zap.Error(err))
	}
	a.Render()
	a.resetForm()
}

func (a *ItemApp) listAction(ev *document.Event) {
	btn := document.Closest(ev.Target, actionButton)
	if btn == nil {
		return
	}
	action, _ := a.doc.Attr(btn, "data-action")
	id, _ := a.doc.Attr(btn, "data-id")

	var err error
	switch action {
	case "toggle-status":
		_, err = a.store.Toggle(id)
	case "delete":
		_, err = a.store.Remove(id)
	case "edit":
		if it, ok := a.store.Get(id); ok {
			a.openEditForm(it)
		}
		return
	default:
		return
	}
	if err != nil {
		a.logger.Warn("item action failed", zap.String("action", action), zap.Error(err))
	}
	a.Render()
}

func (a *ItemApp) keydown(ev *document.Event) {
	switch {
	case ev.Key == "/":
		ev.PreventDefault()
		a.FocusSearch()
	case strings.EqualFold(ev.Key, "n"):
		if active := a.doc.ActiveElement(); active == nil || (active.Data != "input" && active.Data != "textarea") {
			a.doc.Focus(a.name)
		}
	case ev.Key == "Escape":
		a.OpenAddForm()
	}
}

func (a *ItemApp) openEditForm(it items.Item) {
	d := a.doc
	d.SetValue(a.name, it.Name)
	d.SetValue(d.ByID("itemDesc"), it.Desc)
	d.SetValue(d.ByID("itemLocation"), it.Location)
	d.SetValue(d.ByID("itemDate"), it.Date)
	d.SetValue(d.ByID("itemContact"), it.Contact)
	d.SetValue(d.ByID("itemImage"), it.Image)

	a.editID = it.ID
	a.setSubmitLabel("Save Changes")
	if a.cancelEdit != nil {
		d.SetAttr(a.cancelEdit, "style", "display:inline-block")
	}
	d.Focus(a.name)
}

func (a *ItemApp) resetForm() {
	if a.form == nil {
		return
	}
	for _, n := range a.doc.Find("#addItemForm input, #addItemForm textarea") {
		a.doc.SetValue(n, "")
	}
}

func (a *ItemApp) setSubmitLabel(label string) {
	if btn := a.doc.First("#addItemForm .btn-primary"); btn != nil {
		a.doc.SetText(btn, label)
	}
}
