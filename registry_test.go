package httpcore

import (
	"context"
	"testing"

	"github.com/valyala/fasthttp"
)

func noopView(_ context.Context, _ Transport, _ *fasthttp.Request, _ any) (*fasthttp.Response, error) {
	return nil, nil
}

func TestRegistry_AddRejectsHead(t *testing.T) {
	r := newRegistry()
	_, err := r.add(&Entry{Method: fasthttp.MethodHead, Path: "/x", Callback: noopView})
	if err == nil {
		t.Fatal("want error registering HEAD, got nil")
	}
}

func TestRegistry_AddRejectsEmptyMethodOrNilCallback(t *testing.T) {
	r := newRegistry()
	if _, err := r.add(&Entry{Path: "/x", Callback: noopView}); err == nil {
		t.Fatal("want error for empty method")
	}
	if _, err := r.add(&Entry{Method: fasthttp.MethodGet, Path: "/x"}); err == nil {
		t.Fatal("want error for nil callback")
	}
}

func TestRegistry_TrailingSlashNormalized(t *testing.T) {
	r := newRegistry()
	id, err := r.add(&Entry{Method: fasthttp.MethodGet, Path: "/foo/", Callback: noopView})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	e, result := r.match(fasthttp.MethodGet, "", "/foo")
	if result != matchFound || e.ID() != id {
		t.Fatalf("want matchFound for /foo, got %v", result)
	}
}

func TestRegistry_ConflictPrefixBothDirections(t *testing.T) {
	r := newRegistry()
	if _, err := r.add(&Entry{Method: fasthttp.MethodGet, Path: "/foo", Callback: noopView}); err != nil {
		t.Fatalf("add: %v", err)
	}
	// "/foo" and "/foobar" conflict under the min-length memcmp rule, even
	// though "/foo" is not a URL-semantic prefix of "/foobar".
	if _, err := r.add(&Entry{Method: fasthttp.MethodGet, Path: "/foobar", Callback: noopView}); err == nil {
		t.Fatal("want AddressInUse conflict between /foo and /foobar")
	}

	r2 := newRegistry()
	if _, err := r2.add(&Entry{Method: fasthttp.MethodGet, Path: "/foobar", Callback: noopView}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := r2.add(&Entry{Method: fasthttp.MethodGet, Path: "/foo", Callback: noopView}); err == nil {
		t.Fatal("want AddressInUse conflict between /foobar and /foo")
	}
}

func TestRegistry_NoConflictDifferentMethodOrHost(t *testing.T) {
	r := newRegistry()
	if _, err := r.add(&Entry{Method: fasthttp.MethodGet, Path: "/foo", Callback: noopView}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := r.add(&Entry{Method: fasthttp.MethodPost, Path: "/foo", Callback: noopView}); err != nil {
		t.Fatalf("different method should not conflict: %v", err)
	}
	if _, err := r.add(&Entry{Method: fasthttp.MethodGet, Path: "/foo", Host: "example.com", Callback: noopView}); err != nil {
		t.Fatalf("different host should not conflict: %v", err)
	}
}

func TestRegistry_AddThenRemoveIsByteIdentical(t *testing.T) {
	r := newRegistry()
	id, err := r.add(&Entry{Method: fasthttp.MethodGet, Path: "/foo", Callback: noopView})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	r.remove(id)
	if len(r.entries) != 0 {
		t.Fatalf("want empty registry after remove, got %d entries", len(r.entries))
	}
}

func TestRegistry_MatchMethodNotAllowed(t *testing.T) {
	r := newRegistry()
	if _, err := r.add(&Entry{Method: fasthttp.MethodPost, Path: "/x", Callback: noopView}); err != nil {
		t.Fatalf("add: %v", err)
	}
	_, result := r.match(fasthttp.MethodGet, "", "/x")
	if result != matchMethodNotAllowed {
		t.Fatalf("want matchMethodNotAllowed, got %v", result)
	}
}

func TestRegistry_MatchNone(t *testing.T) {
	r := newRegistry()
	_, result := r.match(fasthttp.MethodGet, "", "/x")
	if result != matchNone {
		t.Fatalf("want matchNone, got %v", result)
	}
}

func TestRegistry_HeadMatchesGetEntry(t *testing.T) {
	r := newRegistry()
	if _, err := r.add(&Entry{Method: fasthttp.MethodGet, Path: "/x", Callback: noopView}); err != nil {
		t.Fatalf("add: %v", err)
	}
	_, result := r.match(fasthttp.MethodHead, "", "/x")
	if result != matchFound {
		t.Fatalf("want HEAD to match GET entry, got %v", result)
	}
}

func TestHostMatches(t *testing.T) {
	cases := []struct {
		entryHost, reqHost string
		want               bool
	}{
		{"", "anything", true},
		{"example.com", "example.com", true},
		{"example.com", "example.com:8080", true},
		{"example.com", "example.com.", true},
		{"example.com", "example.org", false},
		{"example.com", "", false},
	}
	for _, c := range cases {
		if got := hostMatches(c.entryHost, c.reqHost); got != c.want {
			t.Fatalf("hostMatches(%q, %q) = %v, want %v", c.entryHost, c.reqHost, got, c.want)
		}
	}
}

func TestPathMatches_DirectoryAllowsSubpaths(t *testing.T) {
	if !pathMatches("/static", true, "/static/a/b") {
		t.Fatal("want /static (is_directory) to match /static/a/b")
	}
	if pathMatches("/static", false, "/static/a/b") {
		t.Fatal("want /static (not is_directory) to reject /static/a/b")
	}
}
