package httpcore

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/net/http/httpguts"
)

// maxPostHandlerReadBytes bounds how much unread request body a session will
// drain before giving up and closing the connection instead, so a handler
// that ignores a large body doesn't force every persistent connection closed.
const maxPostHandlerReadBytes = 256 << 10

// maxRequestLineAndHeaderBytes bounds the request line + header block this
// transport will read before giving up, mirroring net/http's
// DefaultMaxHeaderBytes.
const maxRequestLineAndHeaderBytes = 1 << 20

// versionClass classifies a request's HTTP-Version token: HTTP/1.1, HTTP/1.0,
// another HTTP/1.x, too old (0.x), too new (2+), or unparsable.
type versionClass int

const (
	versionHTTP11 versionClass = iota
	versionHTTP10
	versionHTTP1Other // HTTP/1.x, x != 0, 1 — accepted, served with close=true
	versionTooOld     // HTTP/0.x
	versionTooNew     // HTTP/2 and above
	versionInvalid    // not an "HTTP/" token at all
)

// Transport is the framed HTTP transport consumed by Session. Implementations
// read one request at a time and write one response at a time; callers
// never pipeline.
type Transport interface {
	// ReadRequest blocks until a full request line + header block has been
	// read into req, or ctx is done, or the connection fails.
	ReadRequest(ctx context.Context, req *fasthttp.Request) error
	// WriteResponse writes the status line and headers of resp.
	WriteResponse(ctx context.Context, resp *fasthttp.Response) error
	// WriteBody writes exactly body to the connection.
	WriteBody(ctx context.Context, body []byte) error
	// DrainBody discards up to n bytes of unread request body. It returns
	// an error if more than n bytes remain.
	DrainBody(ctx context.Context, n int64) error
	// Hijack relinquishes ownership of the underlying connection to an
	// upgrader handler and marks the transport closed without closing the
	// connection itself.
	Hijack() net.Conn
	// Close closes the underlying connection, unblocking any in-flight
	// Read/Write. Idempotent.
	Close() error
	// RemoteAddr reports the peer address.
	RemoteAddr() net.Addr
}

// connTransport is the default Transport: a raw net.Conn (plain or TLS)
// framed by this module's own minimal HTTP/1.x request-line/header reader.
//
// The request LINE and HEADER BLOCK are hand-parsed here, reading a
// connection line-at-a-time with bufio.Reader.ReadString, so that the exact
// version-rejection and Connection-token rules are enforced precisely rather
// than inherited from whatever a general purpose parser happens to do. The
// parsed fields are written into a pooled *fasthttp.Request so that handler
// code sees the same accessor surface a fasthttp-based embedder already
// expects.
type connTransport struct {
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer

	closed   atomic.Bool
	hijacked atomic.Bool

	// unreadBody is the number of request-body bytes the peer may still
	// send for the most recently read request.
	unreadBody int64

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// TransportOption configures optional behavior on NewPlainTransport/NewTLSTransport.
type TransportOption func(*connTransport)

// WithReadTimeout bounds every ReadRequest call with conn.SetReadDeadline.
// Zero (the default) means no deadline.
func WithReadTimeout(d time.Duration) TransportOption {
	return func(t *connTransport) { t.readTimeout = d }
}

// WithWriteTimeout bounds every WriteResponse/WriteBody call with
// conn.SetWriteDeadline. Zero (the default) means no deadline.
func WithWriteTimeout(d time.Duration) TransportOption {
	return func(t *connTransport) { t.writeTimeout = d }
}

// NewPlainTransport wraps conn for unencrypted HTTP/1.x framing.
func NewPlainTransport(conn net.Conn, opts ...TransportOption) Transport {
	t := &connTransport{
		conn: conn,
		br:   bufio.NewReader(conn),
		bw:   bufio.NewWriter(conn),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewTLSTransport performs (lazily, on first read) a TLS handshake over conn
// using cfg and wraps the result for HTTP/1.x framing.
func NewTLSTransport(cfg *tls.Config, conn net.Conn, opts ...TransportOption) Transport {
	tlsConn := tls.Server(conn, cfg)
	t := &connTransport{
		conn: tlsConn,
		br:   bufio.NewReader(tlsConn),
		bw:   bufio.NewWriter(tlsConn),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// withCancel races fn against ctx.Done(), tripping the connection's deadline
// to unblock fn's underlying Read/Write if ctx finishes first.
func (t *connTransport) withCancel(ctx context.Context, fn func() error) error {
	if ctx.Done() == nil {
		return fn()
	}
	done := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-ctx.Done():
			once.Do(func() { _ = t.conn.SetDeadline(time.Now()) })
		case <-done:
		}
	}()
	err := fn()
	close(done)
	if err != nil && ctx.Err() != nil {
		return wrapErr(KindClosed, "transport op cancelled", ctx.Err())
	}
	return err
}

func (t *connTransport) ReadRequest(ctx context.Context, req *fasthttp.Request) error {
	return t.withCancel(ctx, func() error {
		return t.readRequest(req)
	})
}

func (t *connTransport) readRequest(req *fasthttp.Request) error {
	req.Reset()

	if t.readTimeout > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(t.readTimeout))
	}

	var total int64
	line, err := t.readLine(&total)
	if err != nil {
		return err
	}
	method, target, version, vclass, err := parseRequestLine(line)
	if err != nil {
		return err
	}

	req.Header.SetMethod(method)
	req.Header.SetProtocol(version)

	contentLength := int64(0)
	transferEncoding := ""
	hostHeader := ""

	for {
		line, err = t.readLine(&total)
		if err != nil {
			return err
		}
		if line == "" {
			break
		}
		name, value, ok := splitHeaderLine(line)
		if !ok {
			continue
		}
		switch {
		case strings.EqualFold(name, "Host"):
			hostHeader = value
			req.Header.SetHost(value)
		case strings.EqualFold(name, "Content-Length"):
			if n, perr := strconv.ParseInt(value, 10, 64); perr == nil {
				contentLength = n
			}
			req.Header.Set(name, value)
		case strings.EqualFold(name, "Transfer-Encoding"):
			transferEncoding = value
			req.Header.Set(name, value)
		default:
			req.Header.Set(name, value)
		}
	}

	req.SetRequestURI(target)
	req.Header.SetContentLength(int(contentLength))
	_ = hostHeader

	switch vclass {
	case versionTooOld:
		return &requestError{status: fasthttp.StatusBadRequest, forceClose: true}
	case versionTooNew:
		return &requestError{status: fasthttp.StatusHTTPVersionNotSupported, forceClose: true}
	case versionInvalid:
		return &requestError{status: fasthttp.StatusBadRequest, forceClose: true}
	}

	if transferEncoding != "" && !strings.EqualFold(transferEncoding, "identity") {
		// Chunked transfer-encoding on ingress is out of scope: we cannot
		// safely frame the body, so the connection must not persist.
		t.unreadBody = 0
		return &requestError{status: fasthttp.StatusBadRequest, forceClose: true}
	}

	t.unreadBody = contentLength
	return nil
}

// readLine reads one CRLF- or LF-terminated line (the trailing newline
// stripped), enforcing maxRequestLineAndHeaderBytes across the whole
// request-line+header read.
func (t *connTransport) readLine(total *int64) (string, error) {
	line, err := t.br.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return "", wrapErr(KindClosed, "connection closed", io.EOF)
		}
		return "", wrapErr(KindClosed, "read failed", err)
	}
	*total += int64(len(line))
	if *total > maxRequestLineAndHeaderBytes {
		return "", &requestError{status: fasthttp.StatusRequestHeaderFieldsTooLarge, forceClose: true}
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return "", "", false
	}
	name = strings.TrimSpace(line[:i])
	value = strings.TrimSpace(line[i+1:])
	if !httpguts.ValidHeaderFieldName(name) {
		return "", "", false
	}
	return name, value, true
}

// parseRequestLine splits "METHOD SP request-target SP HTTP-Version" and
// classifies the version (reject 0.x with 400, 2+ with 505).
func parseRequestLine(line string) (method, target, version string, vclass versionClass, err error) {
	sp1 := strings.IndexByte(line, ' ')
	if sp1 <= 0 {
		return "", "", "", versionInvalid, &requestError{status: fasthttp.StatusBadRequest, forceClose: true}
	}
	rest := line[sp1+1:]
	sp2 := strings.LastIndexByte(rest, ' ')
	if sp2 <= 0 {
		return "", "", "", versionInvalid, &requestError{status: fasthttp.StatusBadRequest, forceClose: true}
	}
	method = line[:sp1]
	target = rest[:sp2]
	version = rest[sp2+1:]

	if !httpguts.ValidMethod(method) {
		return "", "", "", versionInvalid, &requestError{status: fasthttp.StatusBadRequest, forceClose: true}
	}

	vclass = classifyVersion(version)
	return method, target, version, vclass, nil
}

func classifyVersion(version string) versionClass {
	if !strings.HasPrefix(version, "HTTP/") {
		return versionInvalid
	}
	v := version[len("HTTP/"):]
	dot := strings.IndexByte(v, '.')
	if dot < 0 {
		return versionInvalid
	}
	major, err := strconv.Atoi(v[:dot])
	if err != nil {
		return versionInvalid
	}
	minor, err := strconv.Atoi(v[dot+1:])
	if err != nil {
		return versionInvalid
	}
	switch {
	case major < 1:
		return versionTooOld
	case major == 1 && minor == 0:
		return versionHTTP10
	case major == 1 && minor == 1:
		return versionHTTP11
	case major == 1:
		// HTTP/1.x for x != 0, 1: a valid request line, served like
		// HTTP/1.0 — decideClose already forces close for anything that
		// isn't exactly "HTTP/1.1".
		return versionHTTP1Other
	default:
		return versionTooNew
	}
}

func (t *connTransport) WriteResponse(ctx context.Context, resp *fasthttp.Response) error {
	return t.withCancel(ctx, func() error {
		return t.writeResponseHeaders(resp)
	})
}

func (t *connTransport) writeResponseHeaders(resp *fasthttp.Response) error {
	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	status := resp.StatusCode()
	if status == 0 {
		status = fasthttp.StatusOK
	}
	if _, err := t.bw.WriteString("HTTP/1.1 "); err != nil {
		return wrapErr(KindClosed, "write failed", err)
	}
	if _, err := t.bw.WriteString(strconv.Itoa(status)); err != nil {
		return wrapErr(KindClosed, "write failed", err)
	}
	if _, err := t.bw.WriteString(" " + statusText(status) + "\r\n"); err != nil {
		return wrapErr(KindClosed, "write failed", err)
	}

	var writeErr error
	resp.Header.VisitAll(func(key, value []byte) {
		if writeErr != nil {
			return
		}
		if _, err := t.bw.Write(key); err != nil {
			writeErr = err
			return
		}
		if _, err := t.bw.WriteString(": "); err != nil {
			writeErr = err
			return
		}
		if _, err := t.bw.Write(value); err != nil {
			writeErr = err
			return
		}
		if _, err := t.bw.WriteString("\r\n"); err != nil {
			writeErr = err
		}
	})
	if writeErr != nil {
		return wrapErr(KindClosed, "write failed", writeErr)
	}
	if _, err := t.bw.WriteString("\r\n"); err != nil {
		return wrapErr(KindClosed, "write failed", err)
	}
	if err := t.bw.Flush(); err != nil {
		return wrapErr(KindClosed, "flush failed", err)
	}
	return nil
}

func (t *connTransport) WriteBody(ctx context.Context, body []byte) error {
	return t.withCancel(ctx, func() error {
		if t.writeTimeout > 0 {
			_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
		}
		if _, err := t.bw.Write(body); err != nil {
			return wrapErr(KindClosed, "write failed", err)
		}
		if err := t.bw.Flush(); err != nil {
			return wrapErr(KindClosed, "flush failed", err)
		}
		return nil
	})
}

func (t *connTransport) DrainBody(ctx context.Context, n int64) error {
	if t.unreadBody == 0 {
		return nil
	}
	if t.unreadBody > n {
		return newErr(KindClosed, "unread body exceeds drain limit")
	}
	toDrain := t.unreadBody
	t.unreadBody = 0
	return t.withCancel(ctx, func() error {
		_, err := io.CopyN(io.Discard, t.br, toDrain)
		if err != nil {
			return wrapErr(KindClosed, "drain failed", err)
		}
		return nil
	})
}

func (t *connTransport) Hijack() net.Conn {
	t.hijacked.Store(true)
	t.closed.Store(true)
	return t.conn
}

func (t *connTransport) Close() error {
	if t.hijacked.Load() {
		return nil
	}
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.conn.Close()
}

func (t *connTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// requestError carries the HTTP status a malformed request should receive
// along with whether the connection must be closed afterward.
type requestError struct {
	status     int
	forceClose bool
}

func (e *requestError) Error() string { return "malformed request" }

func statusText(code int) string {
	if s := fasthttp.StatusMessage(code); s != "" {
		return s
	}
	return "Unknown"
}
