package script

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"findit/document"
)

func newDoc(t *testing.T, markup, loc string) *document.Document {
	t.Helper()
	u, err := url.Parse(loc)
	if err != nil {
		t.Fatalf("bad url %q: %v", loc, err)
	}
	doc, err := document.ParseString(markup, u)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return doc
}

func TestRuntimeSharesGlobals(t *testing.T) {
	doc := newDoc(t, `<html><head><title>Home</title></head><body><main></main></body></html>`, "http://findit.test/index.html")
	rt := NewRuntime(doc, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := rt.Run(ctx, "app.js", `window.appScriptLoads = (window.appScriptLoads || 0) + 1;`); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	}
	if got := rt.Global("appScriptLoads"); got != int64(2) {
		t.Errorf("appScriptLoads = %v, want 2", got)
	}

	rt.Reset()
	if got := rt.Global("appScriptLoads"); got != nil {
		t.Errorf("Reset kept globals: %v", got)
	}
}

func TestRuntimeDocumentBindings(t *testing.T) {
	doc := newDoc(t, `<html><head><title>Home</title></head><body><main><p id="count">0</p></main></body></html>`, "http://findit.test/profile.html")
	rt := NewRuntime(doc, nil)

	code := `
		window.seenTitle = document.title;
		window.seenPath = location.pathname;
		document.getElementById("count").textContent = "3";
		document.title = "Profile";
	`
	if err := rt.Run(context.Background(), "inline", code); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := rt.Global("seenTitle"); got != "Home" {
		t.Errorf("seenTitle = %v", got)
	}
	if got := rt.Global("seenPath"); got != "/profile.html" {
		t.Errorf("seenPath = %v", got)
	}
	if got := doc.Text(doc.ByID("count")); got != "3" {
		t.Errorf("textContent not written through, got %q", got)
	}
	if doc.Title() != "Profile" {
		t.Errorf("title = %q", doc.Title())
	}
}

func TestRuntimeInterrupt(t *testing.T) {
	rt := NewRuntime(document.New(nil), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := rt.Run(ctx, "spin", `for (;;) {}`)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	// The runtime stays usable after an interrupt.
	if err := rt.Run(context.Background(), "after", `window.ok = true;`); err != nil {
		t.Fatalf("Run after interrupt failed: %v", err)
	}
	if rt.Global("ok") != true {
		t.Error("global not set after interrupt")
	}
}

func TestRuntimeScriptError(t *testing.T) {
	rt := NewRuntime(document.New(nil), nil)
	if err := rt.Run(context.Background(), "bad", `throw new Error("boom")`); err == nil {
		t.Fatal("expected error from throwing script")
	}
}
