package httpcore

import "time"

// Config mirrors atreugo's Config shape, trimmed to the knobs this core
// actually consumes: we are not fasthttp's own server loop, so
// worker-pool/compression/prefork fields that only make sense there are not
// carried (see DESIGN.md for what was dropped and why).
type Config struct {
	// Addr is the listen address passed to net.Listen, e.g. "127.0.0.1:8080",
	// or a socket path such as "/tmp/httpcore.sock" with Network set to "unix".
	Addr string

	// Network is one of "tcp", "tcp4", "tcp6", "unix". Defaults to "tcp".
	Network string

	// TLS, if non-nil, is installed as the server's TLS config reference when
	// NewServer constructs it.
	TLS TLSConfig

	// Logger receives the server's operational diagnostics. Defaults to a
	// logrus-backed Logger at Warn level.
	Logger Logger

	// ReadTimeout bounds how long a session will wait for a request line and
	// headers before the read is cancelled and the connection closed.
	ReadTimeout time.Duration

	// WriteTimeout bounds how long a session will wait for a response write
	// to complete.
	WriteTimeout time.Duration
}

// NewServer builds an un-started Server directly from cfg, bypassing the
// process-wide Directory — useful for embedders that manage their own
// server lifetime and don't want (hostname, port) dedup semantics.
func NewServer(cfg Config) *Server {
	network := cfg.Network
	if network == "" {
		network = "tcp"
	}
	return newServerWithTimeouts(network, cfg.Addr, "", cfg.TLS, cfg.Logger, cfg.ReadTimeout, cfg.WriteTimeout)
}
