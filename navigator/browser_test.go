package navigator

import (
	"context"
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"

	"findit/controller"
	"findit/document"
	"findit/items"
	"findit/site"
)

func openSite(t *testing.T, page string) (*Browser, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(site.NewRouter(site.Config{}))
	t.Cleanup(srv.Close)

	b, err := NewBrowser(Config{})
	if err != nil {
		t.Fatalf("NewBrowser failed: %v", err)
	}
	store := items.NewMemory()
	b.Engine().Register(FamilyApp, controller.NewItemApp(b.Document(), store, nil))
	b.Engine().Register(FamilyDashboard, controller.NewDashboard(b.Document(), store, b.History(), nil))

	res, err := b.Open(context.Background(), srv.URL+"/"+page)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if res.Outcome != Native {
		t.Fatalf("open outcome = %v", res.Outcome)
	}
	return b, srv
}

func click(t *testing.T, b *Browser, href string) {
	t.Helper()
	if err := b.ClickLink(context.Background(), href); err != nil {
		t.Fatalf("click %s: %v", href, err)
	}
}

func mainID(b *Browser) string {
	id, _ := b.Document().Attr(b.Document().Main(), "id")
	return id
}

func global(b *Browser, name string) int64 {
	v, _ := b.Runtime().Global(name).(int64)
	return v
}

func TestOpenBootsPage(t *testing.T) {
	b, _ := openSite(t, "index.html")
	doc := b.Document()

	if mainID(b) != "itemsPage" {
		t.Fatalf("main = %q", mainID(b))
	}
	if global(b, "appScriptLoads") != 1 || global(b, "navScriptLoads") != 1 {
		t.Errorf("boot scripts: app=%d nav=%d", global(b, "appScriptLoads"), global(b, "navScriptLoads"))
	}
	if got := doc.Text(doc.ByID("itemsCount")); got != "2 of 2 items" {
		t.Errorf("item app not mounted, itemsCount = %q", got)
	}
	cur, _ := b.History().Current()
	if b.History().Len() != 1 || cur.State != nil {
		t.Errorf("native load history: len=%d current=%+v", b.History().Len(), cur)
	}
	if href, _ := doc.Attr(doc.First(".nav-link.active"), "href"); href != "index.html" {
		t.Errorf("active link = %q", href)
	}
}

func TestIndexToDashboard(t *testing.T) {
	b, srv := openSite(t, "index.html")
	doc := b.Document()

	click(t, b, "dashboard.html")

	if mainID(b) != "dashboardPage" {
		t.Fatalf("main = %q", mainID(b))
	}
	if doc.Title() != "FINDIT - Dashboard" {
		t.Errorf("title = %q", doc.Title())
	}
	if got := doc.Text(doc.First(".app-title")); got != "FINDIT Dashboard" {
		t.Errorf("header title = %q", got)
	}
	if got := doc.Text(doc.First(".subtitle")); got != "What has been lost and found" {
		t.Errorf("subtitle = %q", got)
	}
	if global(b, "dashboardScriptLoads") != 1 || global(b, "dashboardInlineRuns") != 1 {
		t.Errorf("dashboard scripts: external=%d inline=%d", global(b, "dashboardScriptLoads"), global(b, "dashboardInlineRuns"))
	}
	if global(b, "navScriptLoads") != 1 {
		t.Errorf("nav.js reloaded: %d", global(b, "navScriptLoads"))
	}
	if got := doc.Text(doc.ByID("dashboardStamp")); got != "rendered 1" {
		t.Errorf("inline script did not see the new content: %q", got)
	}
	if got := doc.Text(doc.ByID("totalCount")); got != "2" {
		t.Errorf("dashboard not mounted, totalCount = %q", got)
	}

	cur, _ := b.History().Current()
	want := srv.URL + "/dashboard.html"
	if b.History().Len() != 2 || cur.URL != want || cur.State == nil || cur.State.URL != want {
		t.Errorf("history: len=%d current=%+v", b.History().Len(), cur)
	}
	if doc.Path() != "/dashboard.html" {
		t.Errorf("location = %q", doc.Path())
	}
	active := doc.Find(".nav-link.active")
	if len(active) != 1 {
		t.Fatalf("%d active links", len(active))
	}
	if href, _ := doc.Attr(active[0], "href"); href != "dashboard.html" {
		t.Errorf("active link = %q", href)
	}
	if b.Engine().Last().Outcome != Completed {
		t.Errorf("outcome = %v", b.Engine().Last().Outcome)
	}
}

func TestDashboardOpensItemForEditing(t *testing.T) {
	b, srv := openSite(t, "dashboard.html")
	doc := b.Document()

	card := doc.First("#recentList .item")
	if card == nil {
		t.Fatal("no recent items rendered")
	}
	name := doc.Text(doc.First("#recentList .item h4"))
	link := doc.First("#recentList .item a.nav-link")
	href, _ := doc.Attr(link, "href")

	ev, err := b.Click(context.Background(), link)
	if err != nil {
		t.Fatalf("click: %v", err)
	}
	b.Wait()
	if !ev.DefaultPrevented() {
		t.Fatal("link was not intercepted")
	}

	if mainID(b) != "itemsPage" {
		t.Fatalf("main = %q", mainID(b))
	}
	if got := doc.Value(doc.ByID("itemName")); got != name {
		t.Errorf("edit form name = %q, want %q", got, name)
	}
	if got := doc.Text(doc.First("#addItemForm .btn-primary")); got != "Save Changes" {
		t.Errorf("submit label = %q", got)
	}
	cur, _ := b.History().Current()
	if cur.URL != srv.URL+"/"+href {
		t.Errorf("history entry = %q", cur.URL)
	}
}

func TestBackAndForward(t *testing.T) {
	b, srv := openSite(t, "index.html")
	doc := b.Document()
	click(t, b, "dashboard.html")

	if !b.Back() {
		t.Fatal("Back failed")
	}
	b.Wait()

	if mainID(b) != "itemsPage" {
		t.Fatalf("main after back = %q", mainID(b))
	}
	if b.History().Len() != 2 {
		t.Errorf("back created an entry, len = %d", b.History().Len())
	}
	cur, _ := b.History().Current()
	if cur.URL != srv.URL+"/index.html" {
		t.Errorf("current after back = %q", cur.URL)
	}
	if doc.Path() != "/index.html" {
		t.Errorf("location after back = %q", doc.Path())
	}
	if got := doc.Text(doc.ByID("itemsCount")); got != "2 of 2 items" {
		t.Errorf("item app not remounted: %q", got)
	}
	if global(b, "appScriptLoads") != 1 {
		t.Errorf("app.js reloaded on back: %d", global(b, "appScriptLoads"))
	}

	if !b.Forward() {
		t.Fatal("Forward failed")
	}
	b.Wait()
	if mainID(b) != "dashboardPage" {
		t.Errorf("main after forward = %q", mainID(b))
	}
	if global(b, "dashboardInlineRuns") != 2 {
		t.Errorf("inline runs after forward = %d", global(b, "dashboardInlineRuns"))
	}
	if b.History().Len() != 2 {
		t.Errorf("forward created an entry, len = %d", b.History().Len())
	}
}

func TestScriptsLoadOnce(t *testing.T) {
	b, _ := openSite(t, "index.html")
	for _, href := range []string{"dashboard.html", "index.html", "dashboard.html", "profile.html", "dashboard.html"} {
		click(t, b, href)
	}

	if got := global(b, "dashboardScriptLoads"); got != 1 {
		t.Errorf("dashboard.js loaded %d times", got)
	}
	if got := global(b, "dashboardInlineRuns"); got != 3 {
		t.Errorf("inline ran %d times, want 3", got)
	}
	if got := global(b, "appScriptLoads"); got != 1 {
		t.Errorf("app.js loaded %d times", got)
	}
	if n := len(b.Document().Find(`script[src="js/dashboard.js"]`)); n != 1 {
		t.Errorf("%d dashboard.js elements in the document", n)
	}
	if b.History().Len() != 6 {
		t.Errorf("history len = %d, want 6", b.History().Len())
	}
}

func TestMissingPageFallsBack(t *testing.T) {
	b, srv := openSite(t, "index.html")
	click(t, b, "settings.html")

	last := b.Engine().Last()
	if last.Outcome != FellBack {
		t.Fatalf("outcome = %v", last.Outcome)
	}
	if b.Document().Main() != nil {
		t.Error("expected the 404 page, found a content region")
	}
	cur, _ := b.History().Current()
	if cur.URL != srv.URL+"/settings.html" || cur.State != nil {
		t.Errorf("native entry = %+v", cur)
	}
	if b.History().Len() != 2 {
		t.Errorf("history len = %d", b.History().Len())
	}
	if b.Runtime().Global("appScriptLoads") != nil {
		t.Error("script globals survived the full page load")
	}
	if b.Engine().State() != Idle {
		t.Errorf("state = %v", b.Engine().State())
	}
}

func TestFailedFallbackKeepsPageInteractive(t *testing.T) {
	srv := httptest.NewServer(site.NewRouter(site.Config{}))
	b, err := NewBrowser(Config{})
	if err != nil {
		t.Fatalf("NewBrowser failed: %v", err)
	}
	app := controller.NewItemApp(b.Document(), items.NewMemory(), nil)
	b.Engine().Register(FamilyApp, app)
	if _, err := b.Open(context.Background(), srv.URL+"/index.html"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	before := app.Listeners()
	if before == 0 {
		t.Fatal("item app not mounted")
	}

	srv.Close()
	click(t, b, "dashboard.html")

	if got := b.Engine().Last().Outcome; got != FellBack {
		t.Fatalf("outcome = %v", got)
	}
	if mainID(b) != "itemsPage" {
		t.Errorf("main = %q", mainID(b))
	}
	if after := app.Listeners(); after != before {
		t.Errorf("item app listeners = %d, want %d", after, before)
	}
	if b.History().Len() != 1 {
		t.Errorf("history len = %d", b.History().Len())
	}
}

func TestClickLinkWithoutMatch(t *testing.T) {
	b, _ := openSite(t, "index.html")
	err := b.ClickLink(context.Background(), "nowhere.html")
	if !errors.Is(err, ErrNoLink) {
		t.Errorf("ClickLink error = %v, want ErrNoLink", err)
	}
}

func TestNavigateProgrammatically(t *testing.T) {
	b, _ := openSite(t, "dashboard.html")
	res, err := b.Navigate(context.Background(), "profile.html")
	if err != nil || res.Outcome != Completed {
		t.Fatalf("Navigate = %v, %v", res.Outcome, err)
	}
	if mainID(b) != "profilePage" {
		t.Errorf("main = %q", mainID(b))
	}
	if global(b, "appScriptLoads") != 1 {
		t.Errorf("app.js loads = %d", global(b, "appScriptLoads"))
	}
}

type recordingStarter struct {
	targets []string
}

func (s *recordingStarter) Start(target *url.URL, mode Mode) <-chan Result {
	s.targets = append(s.targets, target.String())
	ch := make(chan Result, 1)
	ch <- Result{URL: target.String(), Outcome: Completed}
	return ch
}

func TestInterceptor(t *testing.T) {
	doc, err := document.ParseString(`<html><body><nav>
<a class="nav-link" id="same" href="dashboard.html"><span id="inner">Dash</span></a>
<a class="nav-link" id="dir" href="/app/">App</a>
<a class="nav-link" id="cross" href="http://elsewhere.test/index.html">Other</a>
<a class="nav-link" id="scheme" href="https://findit.test/index.html">TLS</a>
<a class="nav-link" id="pdf" href="guide.pdf">Guide</a>
<span class="nav-link" id="nohref">Nothing</span>
<a id="plain" href="profile.html">Plain</a>
</nav><main></main></body></html>`, mustURL(t, "http://findit.test/index.html"))
	if err != nil {
		t.Fatal(err)
	}

	starter := &recordingStarter{}
	ic, err := NewInterceptor(doc, starter, "", nil, nil)
	if err != nil {
		t.Fatalf("NewInterceptor failed: %v", err)
	}
	ic.Install()
	ic.Install()

	tests := []struct {
		id        string
		prevented bool
	}{
		{"inner", true},
		{"dir", true},
		{"cross", false},
		{"scheme", false},
		{"pdf", false},
		{"nohref", false},
		{"plain", false},
	}
	for _, tt := range tests {
		ev := doc.Click(doc.ByID(tt.id))
		if ev.DefaultPrevented() != tt.prevented {
			t.Errorf("click #%s prevented = %v, want %v", tt.id, ev.DefaultPrevented(), tt.prevented)
		}
	}

	want := []string{"http://findit.test/dashboard.html", "http://findit.test/app/"}
	if len(starter.targets) != len(want) {
		t.Fatalf("started %v, want %v", starter.targets, want)
	}
	for i := range want {
		if starter.targets[i] != want[i] {
			t.Errorf("target %d = %s, want %s", i, starter.targets[i], want[i])
		}
	}

	ic.Remove()
	doc.Click(doc.ByID("same"))
	if len(starter.targets) != 2 {
		t.Error("removed interceptor still starts transitions")
	}
}

func TestInterceptorRejectsBadConfig(t *testing.T) {
	doc := document.New(nil)
	if _, err := NewInterceptor(doc, &recordingStarter{}, "a[", nil, nil); err == nil {
		t.Error("expected selector error")
	}
	if _, err := NewInterceptor(doc, &recordingStarter{}, "", []string{"[a-"}, nil); err == nil {
		t.Error("expected pattern error")
	}
}
