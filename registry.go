package httpcore

import (
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// matchResult is the outcome of Registry.match.
type matchResult int

const (
	matchFound matchResult = iota
	matchNone
	matchMethodNotAllowed
)

// Registry is the handler registry. It has no lock of its own: every method
// must be called with the owning Server's mutex held.
type Registry struct {
	entries []*Entry
}

func newRegistry() *Registry {
	return &Registry{}
}

// add validates and normalizes entry, checks it against every existing
// entry for a conflict, and appends it on success.
func (r *Registry) add(e *Entry) (HandlerID, error) {
	if e.Method == "" {
		return "", newErr(KindInvalid, "method must be non-empty")
	}
	if strings.EqualFold(e.Method, "HEAD") {
		return "", newErr(KindInvalid, "method must not be HEAD")
	}
	if e.Callback == nil {
		return "", newErr(KindInvalid, "callback must be non-nil")
	}

	e.Path = normalizePath(e.Path)
	if e.Host != "" {
		e.Host = normalizeHost(e.Host)
	}

	for _, existing := range r.entries {
		if conflicts(existing, e) {
			return "", newErr(KindAddressInUse, "handler conflicts with an existing registration")
		}
	}

	e.id = HandlerID(uuid.NewString())
	e.refcount.Store(1)
	r.entries = append(r.entries, e)
	return e.id, nil
}

// remove detaches the entry with the given id from the registry and drops
// its registry-held reference.
func (r *Registry) remove(id HandlerID) {
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			e.release()
			return
		}
	}
}

// conflicts reports a conflict when two entries share a host (or either is
// the wildcard host), share a method, and one path is a prefix of the other
// under a min-length byte comparison — deliberately stricter than URL
// semantics, so "/foo" and "/foobar" conflict even though "/foo" is not a
// path-segment prefix of "/foobar".
func conflicts(a, b *Entry) bool {
	if !hostsMatch(a.Host, b.Host) {
		return false
	}
	if a.Method != b.Method {
		return false
	}
	n := len(a.Path)
	if len(b.Path) < n {
		n = len(b.Path)
	}
	return a.Path[:n] == b.Path[:n]
}

func hostsMatch(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	return a == b
}

// match runs a linear scan: host then path then method, remembering a
// path+host match with the wrong method so that MethodNotAllowed is only
// reported when nothing else matches fully.
func (r *Registry) match(method, host, path string) (*Entry, matchResult) {
	methodNotAllowed := false
	for _, e := range r.entries {
		if !hostMatches(e.Host, host) {
			continue
		}
		if !pathMatches(e.Path, e.IsDirectory, path) {
			continue
		}
		if methodMatches(e.Method, method) {
			return e, matchFound
		}
		methodNotAllowed = true
	}
	if methodNotAllowed {
		return nil, matchMethodNotAllowed
	}
	return nil, matchNone
}

// hostMatches matches a registered Host against a request's Host header,
// allowing an exact match, a trailing ":port" on the request side, and a
// bare trailing "." on the request side.
func hostMatches(entryHost, reqHost string) bool {
	if entryHost == "" {
		return true
	}
	if reqHost == "" {
		return false
	}
	reqHost = strings.ToLower(reqHost)
	if !strings.HasPrefix(reqHost, entryHost) {
		return false
	}
	rest := reqHost[len(entryHost):]
	switch {
	case rest == "":
		return true
	case rest[0] == ':':
		return true
	case rest == ".":
		return true
	default:
		return false
	}
}

// pathMatches matches a registered Path against a request path: an exact
// match, the Path followed by a single trailing "/", or — when isDirectory
// is set — any "/sub..." continuation.
func pathMatches(entryPath string, isDirectory bool, reqPath string) bool {
	if !strings.HasPrefix(reqPath, entryPath) {
		return false
	}
	rest := reqPath[len(entryPath):]
	switch {
	case rest == "":
		return true
	case rest == "/":
		return true
	case isDirectory && len(rest) > 0 && rest[0] == '/':
		return true
	default:
		return false
	}
}

// methodMatches reports an exact method match, or a HEAD request against a
// GET-registered entry.
func methodMatches(entryMethod, reqMethod string) bool {
	if entryMethod == reqMethod {
		return true
	}
	return reqMethod == fasthttp.MethodHead && entryMethod == fasthttp.MethodGet
}
