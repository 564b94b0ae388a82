package script

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"findit/fetcher"
	"findit/html"
)

type recorder struct {
	mu   sync.Mutex
	runs []string
	fail map[string]error
}

func (r *recorder) Run(ctx context.Context, name, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, name+"="+code)
	return r.fail[name]
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}

func staticSource(ctx context.Context, u string) (string, error) {
	return "src:" + u[strings.LastIndex(u, "/")+1:], nil
}

const livePage = `<html><head><title>Home</title></head><body>
<main><p>home</p></main>
<script src="js/app.js"></script>
</body></html>`

func base(t *testing.T) *url.URL {
	u, err := url.Parse("http://findit.test/index.html")
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestReconcileSkipsPresentScripts(t *testing.T) {
	doc := newDoc(t, livePage, "http://findit.test/index.html")
	rec := &recorder{}
	r := NewReconciler(doc, rec, staticSource)

	frag := &html.Fragment{
		Scripts:       []string{"js/app.js", "js/charts.js", "js/dashboard.js"},
		InlineScripts: []string{"window.inlineRuns = 1"},
	}
	rep, err := r.Reconcile(context.Background(), base(t), frag)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if len(rep.Skipped) != 1 || rep.Skipped[0] != "js/app.js" {
		t.Errorf("skipped = %v", rep.Skipped)
	}
	want := []string{
		"js/charts.js=src:charts.js",
		"js/dashboard.js=src:dashboard.js",
		"inline-0=window.inlineRuns = 1",
	}
	got := rec.names()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("run order = %v, want %v", got, want)
	}
	if !doc.HasScript("js/charts.js") || !doc.HasScript("js/dashboard.js") {
		t.Error("new scripts were not inserted into the live document")
	}
	if rep.Inline != 1 {
		t.Errorf("inline count = %d", rep.Inline)
	}
}

func TestReconcileIsIdempotentForExternals(t *testing.T) {
	doc := newDoc(t, livePage, "http://findit.test/index.html")
	rec := &recorder{}
	r := NewReconciler(doc, rec, staticSource)
	frag := &html.Fragment{
		Scripts:       []string{"js/dashboard.js"},
		InlineScripts: []string{"tick()"},
	}

	for i := 0; i < 3; i++ {
		if _, err := r.Reconcile(context.Background(), base(t), frag); err != nil {
			t.Fatalf("Reconcile %d failed: %v", i, err)
		}
	}

	loads, inline := 0, 0
	for _, run := range rec.names() {
		if strings.HasPrefix(run, "js/dashboard.js=") {
			loads++
		} else {
			inline++
		}
	}
	if loads != 1 {
		t.Errorf("external script loaded %d times, want 1", loads)
	}
	if inline != 3 {
		t.Errorf("inline script ran %d times, want 3", inline)
	}
	if n := strings.Count(doc.HTML(), `src="js/dashboard.js"`); n != 1 {
		t.Errorf("document holds %d copies of the script", n)
	}
}

func TestReconcileStallDegrades(t *testing.T) {
	doc := newDoc(t, livePage, "http://findit.test/index.html")
	rec := &recorder{}
	stall := func(ctx context.Context, u string) (string, error) {
		if strings.HasSuffix(u, "slow.js") {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return staticSource(ctx, u)
	}
	r := NewReconciler(doc, rec, stall, WithTimeout(30*time.Millisecond))

	frag := &html.Fragment{Scripts: []string{"js/slow.js", "js/after.js"}}
	rep, err := r.Reconcile(context.Background(), base(t), frag)
	if err != nil {
		t.Fatalf("degrade policy should not fail: %v", err)
	}
	if len(rep.Failed) != 1 || rep.Failed[0] != "js/slow.js" {
		t.Errorf("failed = %v", rep.Failed)
	}
	if len(rep.Loaded) != 1 || rep.Loaded[0] != "js/after.js" {
		t.Errorf("loaded = %v", rep.Loaded)
	}
}

func TestReconcileStallAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL + "/dashboard.html")
	doc := newDoc(t, livePage, u.String())
	r := NewReconciler(doc, &recorder{}, fetcher.Source,
		WithTimeout(50*time.Millisecond), WithPolicy(Abort))

	_, err := r.Reconcile(context.Background(), u, &html.Fragment{Scripts: []string{"js/dashboard.js"}})
	if !errors.Is(err, ErrScriptLoadStall) {
		t.Fatalf("expected ErrScriptLoadStall, got %v", err)
	}
}

func TestReconcileLoadError(t *testing.T) {
	doc := newDoc(t, livePage, "http://findit.test/index.html")
	rec := &recorder{fail: map[string]error{"js/broken.js": errors.New("SyntaxError")}}
	r := NewReconciler(doc, rec, staticSource, WithPolicy(Abort))

	_, err := r.Reconcile(context.Background(), base(t), &html.Fragment{Scripts: []string{"js/broken.js"}})
	if !errors.Is(err, ErrScriptLoad) {
		t.Fatalf("expected ErrScriptLoad, got %v", err)
	}
}

func TestReconcileCancelled(t *testing.T) {
	doc := newDoc(t, livePage, "http://findit.test/index.html")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReconciler(doc, NewRuntime(doc, nil), staticSource)
	_, err := r.Reconcile(ctx, base(t), &html.Fragment{Scripts: []string{"js/new.js"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBootRunsInDocumentOrder(t *testing.T) {
	doc := newDoc(t, `<html><head><title>Dash</title></head><body>
<main></main>
<script>first()</script>
<script src="js/app.js"></script>
<script>second()</script>
</body></html>`, "http://findit.test/dashboard.html")
	rec := &recorder{}
	r := NewReconciler(doc, rec, staticSource)

	rep, err := r.Boot(context.Background(), base(t))
	if err != nil {
		t.Fatalf("Boot failed: %v", err)
	}
	want := []string{"inline-0=first()", "js/app.js=src:app.js", "inline-1=second()"}
	if got := rec.names(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("boot order = %v, want %v", got, want)
	}
	if rep.Inline != 2 || len(rep.Loaded) != 1 {
		t.Errorf("unexpected report: %+v", rep)
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": Degrade, "degrade": Degrade, "fallback": Abort} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("ignore"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
