package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chromedp/cdproto/network"
)

func TestSimpleBypassesCache(t *testing.T) {
	var gotCache, gotPragma, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCache = r.Header.Get("Cache-Control")
		gotPragma = r.Header.Get("Pragma")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("<main>hi</main>"))
	}))
	defer srv.Close()

	res, err := Simple(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Simple failed: %v", err)
	}
	if !res.OK() || res.HTML != "<main>hi</main>" {
		t.Errorf("unexpected result: %+v", res)
	}
	if gotCache != "no-cache" || gotPragma != "no-cache" {
		t.Errorf("cache headers not sent: Cache-Control=%q Pragma=%q", gotCache, gotPragma)
	}
	if gotUA != UserAgent() {
		t.Errorf("user agent = %q, want %q", gotUA, UserAgent())
	}
}

func TestCheckedStatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	res, err := Simple(context.Background(), srv.URL+"/settings.html")
	if err != nil {
		t.Fatalf("Simple should not fail on 404: %v", err)
	}
	if res.OK() || res.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 result, got %d", res.StatusCode)
	}

	_, err = Checked(context.Background(), srv.URL+"/settings.html")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", se.StatusCode)
	}
}

func TestSimpleHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Simple(ctx, srv.URL); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConfigure(t *testing.T) {
	saved := opts
	defer func() { opts = saved }()

	Configure(Options{UserAgent: "test-agent", TimeoutSeconds: 5})
	if UserAgent() != "test-agent" {
		t.Errorf("user agent not applied")
	}
	if Timeout().Seconds() != 5 {
		t.Errorf("timeout = %v, want 5s", Timeout())
	}

	Configure(Options{})
	if UserAgent() != "test-agent" {
		t.Errorf("empty options should keep the user agent")
	}
}

func TestDocumentStatus(t *testing.T) {
	var s documentStatus
	if s.code() != http.StatusOK {
		t.Errorf("no response seen: code = %d, want 200", s.code())
	}

	s.listen(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500},
	})
	s.listen(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{URL: "http://findit.test/settings.html", Status: 404},
	})
	s.listen(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{URL: "http://ads.test/frame.html", Status: 200},
	})
	s.listen(&network.EventLoadingFinished{})

	if s.code() != http.StatusNotFound {
		t.Errorf("code = %d, want the page's 404", s.code())
	}
}
