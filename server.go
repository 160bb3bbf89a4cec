package httpcore

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/savsgio/gotils/nocopy"
)

// Server owns a listening endpoint, its handler registry, its live session
// set, and an optional TLS config reference.
//
// It is prohibited to copy a Server value. Create new values with Open
// instead.
type Server struct {
	noCopy nocopy.NoCopy //nolint:unused

	mu   sync.Mutex
	cond *sync.Cond

	network string
	addr    string
	url     string

	readTimeout  time.Duration
	writeTimeout time.Duration

	listener net.Listener
	tls      TLSConfig

	registry *Registry
	sessions map[*Session]struct{}

	starts int
	closed bool

	logger Logger

	baseCtx    context.Context
	cancelBase context.CancelFunc

	// dirRefcount is owned and mutated by Directory while it holds its own
	// mutex, with the server mutex taken inside it around each change (lock
	// order: Directory -> Server, never reverse).
	dirRefcount int
}

func newServer(network, addr, url string, tlsRef TLSConfig, logger Logger) *Server {
	return newServerWithTimeouts(network, addr, url, tlsRef, logger, 0, 0)
}

func newServerWithTimeouts(network, addr, url string, tlsRef TLSConfig, logger Logger, readTimeout, writeTimeout time.Duration) *Server {
	if logger == nil {
		logger = defaultLogger
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		network:      network,
		addr:         addr,
		url:          url,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		tls:          tlsRef,
		registry:     newRegistry(),
		sessions:     make(map[*Session]struct{}),
		logger:       logger,
		baseCtx:      baseCtx,
		cancelBase:   cancel,
		dirRefcount:  1,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// ctx returns the context every session derives its own cancellable context
// from; it is cancelled once, by Directory.Close when the server's last
// directory reference is released. Stop does not cancel it: Stop cancels
// each live session's own context through Session.Close.
func (s *Server) ctx() context.Context {
	return s.baseCtx
}

// URL reports the URL this server was opened with.
func (s *Server) URL() string { return s.url }

// Addr reports the listener's actual bound address, useful when Addr/URL
// used port 0 and the kernel assigned one. Returns nil if the server is not
// currently started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start begins serving, refcounted: the first call binds the listener and
// launches the accept loop; subsequent calls only bump the start counter so
// nested owners can Start/Stop independently.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return newErr(KindClosed, "server is closed")
	}
	if s.starts > 0 {
		s.starts++
		s.mu.Unlock()
		return nil
	}

	ln, err := s.listen()
	if err != nil {
		s.mu.Unlock()
		return wrapErr(KindInvalidAddress, "listen failed", err)
	}
	s.listener = ln
	s.starts = 1
	s.mu.Unlock()

	go s.acceptLoop(ln)
	return nil
}

func (s *Server) listen() (net.Listener, error) {
	network := s.network
	if network == "" {
		network = "tcp"
	}
	return net.Listen(network, s.addr)
}

// Stop is the mirror of Start: decrements the start counter, and on the
// counter reaching zero closes the listener and every live session, then
// blocks until the session list has drained.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.starts == 0 {
		s.mu.Unlock()
		return
	}
	s.starts--
	if s.starts > 0 {
		s.mu.Unlock()
		return
	}

	ln := s.listener
	s.listener = nil

	live := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, sess := range live {
		sess.Close()
	}

	s.mu.Lock()
	for len(s.sessions) > 0 {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// acceptLoop is the server's single accept loop: discard on closed, retry on
// transient error, spawn a Session on success.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		s.mu.Lock()
		closed := s.closed || s.starts == 0
		s.mu.Unlock()
		if closed {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err != nil {
			s.logger.Printf("httpcore: accept error, retrying: %v", err)
			continue
		}

		transport, werr := s.wrapTransport(conn)
		if werr != nil {
			s.logger.Printf("httpcore: transport wrap failed, dropping connection: %v", werr)
			_ = conn.Close()
			continue
		}

		sess := newSession(s, transport)
		s.mu.Lock()
		if s.closed || s.starts == 0 {
			// Stop may have already snapshotted the live-session set and
			// started waiting on the condvar; registering this session now
			// would leave it undiscovered and un-closed. Discard it instead.
			s.mu.Unlock()
			_ = transport.Close()
			return
		}
		s.sessions[sess] = struct{}{}
		s.mu.Unlock()

		go sess.serve()
	}
}

// wrapTransport wraps conn in a plain or TLS framed transport depending on
// whether a TLSConfig reference is currently set.
func (s *Server) wrapTransport(conn net.Conn) (Transport, error) {
	s.mu.Lock()
	ref := s.tls
	s.mu.Unlock()

	opts := []TransportOption{
		WithReadTimeout(s.readTimeout),
		WithWriteTimeout(s.writeTimeout),
	}

	if ref == nil {
		return NewPlainTransport(conn, opts...), nil
	}

	cfg := &tls.Config{
		GetConfigForClient: tlsConfigFunc(ref),
	}
	return NewTLSTransport(cfg, conn, opts...), nil
}

// removeSession drops sess from the live set and wakes any Stop waiting on
// the condvar once the set has drained. Called from Session.reap.
func (s *Server) removeSession(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	if len(s.sessions) == 0 {
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

// AddHandler registers entry with this server's handler registry, spec
// §4.2/§4.5 ("add_handler forwards to the registry under the server mutex").
func (s *Server) AddHandler(e *Entry) (HandlerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.add(e)
}

// DelHandler removes the handler registered under id.
func (s *Server) DelHandler(id HandlerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.remove(id)
}

// SetTLS installs ref as the server's TLS config reference. Rejected with
// Busy while the server has outstanding Start calls.
func (s *Server) SetTLS(ref TLSConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.starts > 0 {
		return newErr(KindBusy, "cannot change TLS config while server is running")
	}
	s.tls = ref
	return nil
}

// GetTLS returns the server's current TLS config reference, or nil if none
// is set.
func (s *Server) GetTLS() TLSConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tls
}

// schemeRequiresTLS reports whether scheme (as passed to Open) needs a TLS
// config reference before Start can usefully serve anything.
func schemeRequiresTLS(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "https", "wss":
		return true
	default:
		return false
	}
}
