package cachefirst

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/cache-first/cache-first/cache"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func newTestCoordinator(t *testing.T, origin string, config Config) *Coordinator {
	t.Helper()
	originURL, err := url.Parse(origin)
	if err != nil {
		t.Fatal(err)
	}
	logger := zerolog.New(io.Discard)
	config.Logger = &logger
	config.OriginURL = *originURL
	if config.Store == nil {
		config.Store = cache.NewMemStore()
	}
	if config.Version == "" {
		config.Version = "v1"
	}
	return CreateCoordinator(config)
}

func TestSecondRequestServedFromCache(t *testing.T) {
	var originHits int
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		originHits++
		w.Write([]byte("Hello world"))
	}))
	defer origin.Close()
	c := newTestCoordinator(t, origin.URL, Config{})

	c.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	c.Wait()
	rr := httptest.NewRecorder()
	c.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if originHits != 1 {
		t.Fatalf("origin hit %d times", originHits)
	}
	if body, err := io.ReadAll(rr.Result().Body); err != nil || string(body) != "Hello world" {
		t.Fatalf("Body is %s", body)
	}
	if cs := rr.Result().Header.Get("Cache-Status"); !strings.Contains(cs, "hit") {
		t.Fatalf("Cache-Status is %q", cs)
	}
}

func TestResponseHeadersSurviveCaching(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("content-type", "text/test")
		w.Write([]byte("Hello world"))
	}))
	defer origin.Close()
	c := newTestCoordinator(t, origin.URL, Config{})

	c.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	c.Wait()
	rr := httptest.NewRecorder()
	c.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if ct := rr.Result().Header.Get("content-type"); ct != "text/test" {
		t.Fatalf("Content-Type header is %s", ct)
	}
}

func TestOnlyGetRequestsAreCached(t *testing.T) {
	var originHits int
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		originHits++
		w.Write([]byte("ok"))
	}))
	defer origin.Close()
	c := newTestCoordinator(t, origin.URL, Config{})

	c.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/submit", strings.NewReader("{}")))
	c.Wait()
	c.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/submit", strings.NewReader("{}")))
	c.Wait()

	if originHits != 2 {
		t.Fatalf("origin hit %d times for POST", originHits)
	}
}

func TestNon200ResponsesAreNotCached(t *testing.T) {
	var originHits int
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		originHits++
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer origin.Close()
	c := newTestCoordinator(t, origin.URL, Config{})

	c.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/missing", nil))
	c.Wait()
	rr := httptest.NewRecorder()
	c.ServeHTTP(rr, httptest.NewRequest("GET", "/missing", nil))
	c.Wait()

	if originHits != 2 {
		t.Fatalf("origin hit %d times for 404", originHits)
	}
	if rr.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Result().StatusCode)
	}
}

func TestOfflineFallbackSynthesized(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	origin.Close() // origin is down from the start

	c := newTestCoordinator(t, origin.URL, Config{})
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rr := httptest.NewRecorder()
	c.ServeHTTP(rr, req)

	res := rr.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("content-type = %q", ct)
	}
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), "offline") {
		t.Fatalf("body = %q", body)
	}
}

func TestOfflineFallbackFromCache(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/offline.html" {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<h1>offline page</h1>"))
			return
		}
		w.Write([]byte("regular"))
	}))

	c := newTestCoordinator(t, origin.URL, Config{Assets: []string{"/offline.html"}})
	if err := c.OnInstall(context.Background()); err != nil {
		t.Fatal(err)
	}
	origin.Close()

	req := httptest.NewRequest("GET", "/some/page", nil)
	req.Header.Set("Accept", "text/html")
	rr := httptest.NewRecorder()
	c.ServeHTTP(rr, req)

	body, _ := io.ReadAll(rr.Result().Body)
	if string(body) != "<h1>offline page</h1>" {
		t.Fatalf("body = %q", body)
	}
	if cs := rr.Result().Header.Get("Cache-Status"); !strings.Contains(cs, "offline-fallback") {
		t.Fatalf("Cache-Status is %q", cs)
	}
}

func TestNonHTMLFailurePropagates(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	origin.Close()

	c := newTestCoordinator(t, origin.URL, Config{})
	req := httptest.NewRequest("GET", "/api/data", nil)
	req.Header.Set("Accept", "application/json")
	rr := httptest.NewRecorder()
	c.ServeHTTP(rr, req)

	if rr.Result().StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Result().StatusCode)
	}
}

func TestCrossOriginRequestsBypassCache(t *testing.T) {
	var originHits int
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		originHits++
		w.Write([]byte("app"))
	}))
	defer origin.Close()
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("third party"))
	}))
	defer other.Close()

	store := cache.NewMemStore()
	c := newTestCoordinator(t, origin.URL, Config{Store: store, AppHost: "app.example.com"})

	req := httptest.NewRequest("GET", other.URL+"/widget.js", nil)
	rr := httptest.NewRecorder()
	c.ServeHTTP(rr, req)
	c.Wait()

	if body, _ := io.ReadAll(rr.Result().Body); string(body) != "third party" {
		t.Fatalf("body = %q", body)
	}
	if originHits != 0 {
		t.Fatal("cross-origin request reached the app origin")
	}
	if _, ok, _ := store.Get("v1", "GET:/widget.js"); ok {
		t.Fatal("cross-origin response was cached")
	}
}

func TestRoutedThroughChi(t *testing.T) {
	var originHits int
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		originHits++
		w.Write([]byte("routed"))
	}))
	defer origin.Close()
	c := newTestCoordinator(t, origin.URL, Config{})

	r := chi.NewRouter()
	r.Handle("/*", c)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/page", nil))
	c.Wait()
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/page", nil))

	if originHits != 1 {
		t.Fatalf("origin hit %d times", originHits)
	}
	if body, _ := io.ReadAll(rr.Result().Body); string(body) != "routed" {
		t.Fatalf("body = %q", body)
	}
}
