package httpcore

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/valyala/fasthttp"
)

// HandlerID is the opaque id returned by Server.AddHandler and accepted by
// Server.DelHandler; we use a uuid (see SPEC_FULL.md DOMAIN STACK) so ids
// never collide even across heavy add/remove churn.
type HandlerID string

// View processes a matched request. It must either populate resp and return
// it, or — only if the owning Entry has IsUpgrader set — take ownership of
// the transport (via Transport.Hijack) and return (nil, nil) to signal the
// session that the connection has been handed off.
//
// Returning a non-nil error ends the session: it tears the connection down
// the same way a transport failure would.
type View func(ctx context.Context, t Transport, req *fasthttp.Request, arg any) (*fasthttp.Response, error)

// Entry is one registered route.
type Entry struct {
	Method string
	Path   string
	// Host, if non-empty, restricts this entry to the given Host header.
	// A trailing '.' is normalized away at registration time.
	Host string
	// IsDirectory marks Path as a prefix that may be followed by "/sub...".
	IsDirectory bool
	// IsUpgrader marks a handler that may assume the transport.
	IsUpgrader bool

	Callback View
	Arg      any
	// ArgCloser, if non-nil, runs exactly once when the entry's refcount
	// reaches zero.
	ArgCloser func(any)

	id       HandlerID
	refcount atomic.Int32
}

// ID reports the opaque id this entry was registered under.
func (e *Entry) ID() HandlerID { return e.id }

// acquire increments the entry's refcount. Must be called under the owning
// server's mutex.
func (e *Entry) acquire() { e.refcount.Add(1) }

// release decrements the entry's refcount, running ArgCloser exactly once
// when it reaches zero. Must be called under the owning server's mutex.
func (e *Entry) release() {
	if e.refcount.Add(-1) == 0 {
		if e.ArgCloser != nil {
			e.ArgCloser(e.Arg)
		}
	}
}

// normalizeHost lowercases host and strips a single trailing '.'. An empty
// host is a wildcard matching any request Host.
func normalizeHost(host string) string {
	host = strings.ToLower(host)
	host = strings.TrimSuffix(host, ".")
	return host
}

// normalizePath strips trailing '/' characters from path, never reducing it
// below empty: "/foo/" is stored as "/foo".
func normalizePath(path string) string {
	for len(path) > 0 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}
