package httpcore

import (
	"crypto/tls"

	"github.com/nabbar/golib/certificates"
)

// TLSConfig is the reference type Server.SetTLS/GetTLS store: the core never
// owns certificate material, only a reference to an externally-managed TLS
// config object that can mint a *tls.Config per accepted connection's SNI
// server name.
type TLSConfig = certificates.TLSConfig

// tlsConfigFunc adapts a TLSConfig reference into the crypto/tls.Config.GetConfigForClient
// hook, so SNI-driven server-name selection happens per handshake rather than
// once at listener construction.
func tlsConfigFunc(ref TLSConfig) func(*tls.ClientHelloInfo) (*tls.Config, error) {
	return func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
		return ref.TLS(hello.ServerName), nil
	}
}
