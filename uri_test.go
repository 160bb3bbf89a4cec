package httpcore

import "testing"

func TestCanonify_TruncatesAtQuery(t *testing.T) {
	got := Canonify("/search?q=go")
	if got != "/search" {
		t.Fatalf("want /search, got %q", got)
	}
}

func TestCanonify_StripsSchemeAndAuthority(t *testing.T) {
	cases := map[string]string{
		"http://example.com/a/b":  "/a/b",
		"HTTPS://Example.com/a":   "/a",
		"http://example.com":      "/",
		"https://example.com":     "/",
	}
	for in, want := range cases {
		if got := Canonify(in); got != want {
			t.Fatalf("Canonify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonify_PercentDecode(t *testing.T) {
	if got := Canonify("/a%2Fb"); got != "/a/b" {
		t.Fatalf("want /a/b, got %q", got)
	}
}

func TestCanonify_MalformedEscapeCopiesPercentThrough(t *testing.T) {
	// "%zz" is not a valid escape: the '%' is copied through verbatim,
	// per the preserved garbage-in/garbage-out behavior.
	if got := Canonify("/a%zzb"); got != "/a%zzb" {
		t.Fatalf("want /a%%zzb, got %q", got)
	}
}

func TestCanonify_DecodedNulTruncates(t *testing.T) {
	if got := Canonify("/abc%00def"); got != "/abc" {
		t.Fatalf("want /abc, got %q", got)
	}
}

func TestCanonify_Idempotent(t *testing.T) {
	inputs := []string{"/foo/bar", "http://x/a%2Fb", "/a%zzb", "/x?y=1"}
	for _, in := range inputs {
		once := Canonify(in)
		twice := Canonify(once)
		if once != twice {
			t.Fatalf("Canonify not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
