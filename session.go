package httpcore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/savsgio/gotils/nocopy"
	"github.com/valyala/fasthttp"
)

// sessionState names the phases a session passes through. It exists mainly
// for logging/assertions — Go's goroutine-per-session model drives the
// actual transitions with ordinary control flow, not a dispatch table.
type sessionState int32

const (
	stateReadingRequest sessionState = iota
	stateDispatching
	stateWritingHeaders
	stateWritingBody
	stateClosing
	stateFinished
)

// Session drives the request/response state machine for one accepted
// connection. It runs entirely on one goroutine; cancellation
// is delivered by cancelling ctx (the session's own context, cancelled by
// Server.Stop or by Session.Close) and by closing the transport, which
// unblocks whatever Read/Write that goroutine is blocked in.
type Session struct {
	noCopy nocopy.NoCopy //nolint:unused

	srv       *Server
	transport Transport

	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32

	mu     sync.Mutex
	close  bool // mark the connection non-persistent
	closed bool // teardown begun

	reqMethod string // method of the request currently in flight, for the HEAD special case
}

func newSession(srv *Server, t Transport) *Session {
	ctx, cancel := context.WithCancel(srv.ctx())
	return &Session{
		srv:       srv,
		transport: t,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// serve runs the session's state machine to completion. It always returns
// after the transport has quiesced (closed, or relinquished to an upgrader).
func (s *Session) serve() {
	defer s.reap()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	for {
		s.setState(stateReadingRequest)
		if !s.readAndDispatch(req, resp) {
			return
		}
	}
}

// readAndDispatch runs one full request/response cycle. It returns false
// when the session should tear down (connection closed, handed off to an
// upgrader, or a non-persistent response has been written).
func (s *Session) readAndDispatch(req *fasthttp.Request, resp *fasthttp.Response) bool {
	req.Reset()
	s.reqMethod = ""
	if err := s.transport.ReadRequest(s.ctx, req); err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			resp.Reset()
			s.markCloseIfNeeded(true)
			s.buildErrorResponse(resp, reqErr.status)
			return s.writeAndContinue(resp)
		}
		return false
	}

	s.reqMethod = string(req.Header.Method())

	persistDecision := decideClose(req)
	s.mu.Lock()
	s.close = s.close || persistDecision
	s.mu.Unlock()

	path := Canonify(string(req.Header.RequestURI()))
	req.SetRequestURI(path)

	entry, result := s.matchHandler(req)
	switch result {
	case matchNone:
		resp.Reset()
		s.buildErrorResponse(resp, fasthttp.StatusNotFound)
		return s.writeAndContinue(resp)
	case matchMethodNotAllowed:
		resp.Reset()
		s.buildErrorResponse(resp, fasthttp.StatusMethodNotAllowed)
		return s.writeAndContinue(resp)
	}

	return s.dispatch(entry, req, resp)
}

// matchHandler acquires the server mutex, runs Registry.match, and — on a
// full match — increments the entry's refcount before releasing the mutex.
func (s *Session) matchHandler(req *fasthttp.Request) (*Entry, matchResult) {
	method := string(req.Header.Method())
	host := string(req.Header.Host())
	path := string(req.RequestURI())

	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()

	entry, result := s.srv.registry.match(method, host, path)
	if result == matchFound {
		entry.acquire()
	}
	return entry, result
}

// dispatch invokes the matched handler's callback and interprets its
// outcome: a written response, a transport handoff, or an error.
func (s *Session) dispatch(entry *Entry, req *fasthttp.Request, resp *fasthttp.Response) bool {
	s.setState(stateDispatching)

	out, err := entry.Callback(s.ctx, s.transport, req, entry.Arg)

	s.srv.mu.Lock()
	isUpgrader := entry.IsUpgrader
	entry.release()
	s.srv.mu.Unlock()

	if err != nil {
		return false
	}

	if isUpgrader && out == nil {
		// The handler has assumed the transport: drop our references to it
		// without closing it.
		s.setState(stateFinished)
		return false
	}

	if out == nil {
		// The handler wrote its own response bytes directly.
		s.mu.Lock()
		shouldClose := s.close
		s.mu.Unlock()
		return !shouldClose
	}

	if hasCloseToken(string(out.Header.Peek("Connection"))) {
		s.markCloseIfNeeded(true)
	}
	s.mu.Lock()
	shouldClose := s.close
	s.mu.Unlock()
	if shouldClose {
		out.SetConnectionClose()
	}

	persist := s.writeAndContinue(out)
	fasthttp.ReleaseResponse(out)
	return persist
}

// writeAndContinue writes resp's headers and body, then drains any unread
// request body so the connection is safe to reuse.
func (s *Session) writeAndContinue(resp *fasthttp.Response) bool {
	s.setState(stateWritingHeaders)

	head := s.reqMethod == fasthttp.MethodHead
	body := resp.Body()
	// Set explicitly rather than relying on fasthttp to derive it at
	// marshal time: writeResponseHeaders below walks the header set
	// directly and never calls resp.Write/WriteTo.
	resp.Header.SetContentLength(len(body))
	if head {
		body = nil
	}

	if err := s.transport.WriteResponse(s.ctx, resp); err != nil {
		return false
	}

	if len(body) > 0 {
		s.setState(stateWritingBody)
		if err := s.transport.WriteBody(s.ctx, body); err != nil {
			return false
		}
	}

	if err := s.transport.DrainBody(s.ctx, maxPostHandlerReadBytes); err != nil {
		return false
	}

	s.mu.Lock()
	shouldClose := s.close
	s.mu.Unlock()
	return !shouldClose
}

// buildErrorResponse constructs an error response: status set, Connection:
// close added if s.close is set.
func (s *Session) buildErrorResponse(resp *fasthttp.Response, status int) {
	resp.SetStatusCode(status)
	resp.SetBodyString(statusText(status))
	resp.Header.SetContentType("text/plain; charset=utf-8")
	s.mu.Lock()
	shouldClose := s.close
	s.mu.Unlock()
	if shouldClose {
		resp.SetConnectionClose()
	}
}

func (s *Session) markCloseIfNeeded(v bool) {
	s.mu.Lock()
	s.close = s.close || v
	s.mu.Unlock()
}

func (s *Session) setState(st sessionState) {
	s.state.Store(int32(st))
}

// Close marks the session non-persistent, and closes the transport,
// unblocking any in-flight read/write.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.close = true
	s.mu.Unlock()

	s.cancel()
	_ = s.transport.Close()
}

// reap closes the transport (a no-op once it has been hijacked), cancels the
// session's context, then removes the session from its server's live-session
// set, waking Server.Stop's condvar if the set has drained. It always runs on the session's own goroutine, never inside
// another operation's callback, so it cannot self-deadlock.
func (s *Session) reap() {
	s.setState(stateClosing)
	_ = s.transport.Close()
	s.cancel()
	s.srv.removeSession(s)
	s.setState(stateFinished)
}

// decideClose implements the persistence rules: non-HTTP/1.1 requests and
// any Connection header containing a "close" token force close=true.
func decideClose(req *fasthttp.Request) bool {
	version := string(req.Header.Protocol())
	if version != "HTTP/1.1" {
		return true
	}
	return hasCloseToken(string(req.Header.Peek("Connection")))
}

// hasCloseToken reports whether the comma-separated Connection header value
// contains a "close" token, case-insensitively. "Connection: keep-alive,
// close" (multiple tokens) triggers close too.
func hasCloseToken(value string) bool {
	for _, tok := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(tok), "close") {
			return true
		}
	}
	return false
}
