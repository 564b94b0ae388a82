// Test pages fetches every bulletin page and checks it can take part in
// in-page navigation.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"

	"golang.org/x/net/html"

	"findit/document"
	"findit/fetcher"
	findithtml "findit/html"
	"findit/navigator"
	"findit/site"
)

func main() {
	base := flag.String("base", "", "site to check (default: the embedded site on a local test server)")
	flag.Parse()

	if *base == "" {
		srv := httptest.NewServer(site.NewRouter(site.Config{}))
		defer srv.Close()
		*base = srv.URL + "/"
	}

	pages := flag.Args()
	if len(pages) == 0 {
		pages = site.Pages()
	}

	failed := 0
	for _, page := range pages {
		if !testPage(*base, page) {
			failed++
		}
		fmt.Println(strings.Repeat("=", 80))
	}
	if failed > 0 {
		fmt.Printf("%d of %d pages failed\n", failed, len(pages))
		os.Exit(1)
	}
}

func testPage(base, page string) bool {
	u, err := url.Parse(base)
	if err != nil {
		fmt.Printf("  ERROR bad base: %v\n", err)
		return false
	}
	u = u.ResolveReference(&url.URL{Path: page})
	fmt.Printf("Testing: %s\n", u)

	res, err := fetcher.Checked(context.Background(), u.String())
	if err != nil {
		fmt.Printf("  ERROR fetching: %v\n", err)
		return false
	}
	fmt.Printf("  Status: %d (%s)\n", res.StatusCode, res.FetchTime)

	root, err := html.Parse(strings.NewReader(res.HTML))
	if err != nil {
		fmt.Printf("  ERROR parsing: %v\n", err)
		return false
	}
	frag, err := findithtml.FromNode(root)
	if err != nil {
		fmt.Printf("  ERROR extracting: %v\n", err)
		return false
	}

	id := ""
	for _, a := range frag.Main.Attr {
		if a.Key == "id" {
			id = a.Val
		}
	}
	fmt.Printf("  Title: %q\n", frag.Title)
	fmt.Printf("  Main: <%s id=%q>\n", frag.Main.Data, id)
	fmt.Printf("  Header: %t, subtitle: %t\n", frag.HeaderTitle != nil, frag.Subtitle != nil)
	fmt.Printf("  Scripts: %s (+%d inline)\n", strings.Join(frag.Scripts, ", "), len(frag.InlineScripts))

	if family, ok := navigator.DefaultRoutes().Lookup(u); ok {
		fmt.Printf("  Controller: %s\n", family)
	} else {
		fmt.Printf("  Controller: none\n")
	}

	doc, err := document.ParseString(res.HTML, u)
	if err != nil {
		fmt.Printf("  ERROR loading document: %v\n", err)
		return false
	}
	ic, err := navigator.NewInterceptor(doc, nil, "", nil, nil)
	if err != nil {
		fmt.Printf("  ERROR interceptor: %v\n", err)
		return false
	}

	ok := true
	links := doc.Find(navigator.DefaultLinkSelector)
	fmt.Printf("  Nav links: %d\n", len(links))
	for _, n := range links {
		href, has := doc.Attr(n, "href")
		if !has {
			fmt.Printf("    (link without href)\n")
			ok = false
			continue
		}
		note := "swap"
		if _, intercepted := ic.Target(href); !intercepted {
			note = "full load"
		}
		fmt.Printf("    %-20s %s\n", href, note)
	}
	return ok
}
