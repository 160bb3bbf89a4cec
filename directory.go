package httpcore

import (
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/savsgio/gotils/nocopy"
)

// Directory is the process-wide dedup table: servers are keyed by
// (hostname, port) with string equality, refcounted, shared by every caller
// that opens the same URL.
//
// Directory is an explicit object you can construct with NewDirectory for
// tests or isolated subsystems, rather than a hidden package-level
// singleton. DefaultDirectory is provided as the shared process-wide
// instance for callers that just want one global namespace.
type Directory struct {
	noCopy nocopy.NoCopy //nolint:unused

	mu      sync.Mutex
	servers map[dirKey]*Server
}

type dirKey struct {
	host string
	port string
}

// NewDirectory constructs an empty, independent server directory.
func NewDirectory() *Directory {
	return &Directory{servers: make(map[dirKey]*Server)}
}

var (
	defaultDirectoryOnce sync.Once
	defaultDirectory     *Directory
)

// DefaultDirectory returns the lazily-initialized process-wide Directory.
func DefaultDirectory() *Directory {
	defaultDirectoryOnce.Do(func() {
		defaultDirectory = NewDirectory()
	})
	return defaultDirectory
}

// Open parses rawurl, validates its scheme, and returns either a new Server
// or an existing one that already owns the same (hostname, port). The
// returned Server's refcount is incremented; pair every successful Open
// with a Close.
func (d *Directory) Open(rawurl string) (*Server, error) {
	return d.OpenWithLogger(rawurl, nil)
}

// OpenWithLogger is Open but with an explicit Logger for the server's
// diagnostic output (defaultLogger if nil).
func (d *Directory) OpenWithLogger(rawurl string, logger Logger) (*Server, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, wrapErr(KindInvalidAddress, "malformed URL", err)
	}

	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, newErr(KindInvalidAddress, "unsupported scheme: "+u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, newErr(KindInvalidAddress, "URL has no host")
	}
	port := u.Port()
	if port == "" {
		if schemeRequiresTLS(u.Scheme) {
			port = "443"
		} else {
			port = "80"
		}
	}

	// Resolution is synchronous and blocks this call; callers should pass
	// numeric addresses or well-cached names if Open must stay fast.
	if net.ParseIP(host) == nil {
		if _, err := net.LookupHost(host); err != nil {
			return nil, wrapErr(KindInvalidAddress, "host does not resolve", err)
		}
	}

	key := dirKey{host: host, port: port}

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.servers[key]; ok {
		existing.mu.Lock()
		existing.dirRefcount++
		existing.mu.Unlock()
		return existing, nil
	}

	var tlsRef TLSConfig
	addr := net.JoinHostPort(host, port)
	srv := newServer("tcp", addr, rawurl, tlsRef, logger)
	d.servers[key] = srv
	return srv, nil
}

// Close decrements srv's directory refcount; at zero it is removed from the
// directory and torn down (any still-running Start is left to the caller to
// Stop — Close only releases the directory's claim).
func (d *Directory) Close(srv *Server) {
	d.mu.Lock()
	defer d.mu.Unlock()

	srv.mu.Lock()
	srv.dirRefcount--
	remaining := srv.dirRefcount
	srv.mu.Unlock()

	if remaining > 0 {
		return
	}

	for key, s := range d.servers {
		if s == srv {
			delete(d.servers, key)
			break
		}
	}

	srv.mu.Lock()
	srv.closed = true
	srv.mu.Unlock()
	srv.cancelBase()
}

// Open opens (or shares) a server for rawurl via the process-wide
// DefaultDirectory.
func Open(rawurl string) (*Server, error) {
	return DefaultDirectory().Open(rawurl)
}

// Close releases srv back to the process-wide DefaultDirectory.
func Close(srv *Server) {
	DefaultDirectory().Close(srv)
}
