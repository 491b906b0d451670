package smtpd

import (
	"crypto/tls"
	"net"

	"github.com/nimblemail/submitd/internal/certutil"
)

// tlsTransport wraps an accepted stream in a TLS server endpoint on
// demand. If no certificate/key pair is configured, a self-signed
// certificate is synthesized from the configured hosts.
type tlsTransport struct {
	config *tls.Config
}

func newTLSTransport(certFile, keyFile string, hosts []string) (*tlsTransport, error) {
	var cert tls.Certificate
	var err error
	if certFile != "" && keyFile != "" {
		cert, err = tls.LoadX509KeyPair(certFile, keyFile)
	} else {
		cert, err = certutil.SelfSigned(hosts)
	}
	if err != nil {
		return nil, err
	}

	return &tlsTransport{
		config: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}, nil
}

// start performs a server-side TLS handshake over conn and returns the
// stream that replaces it, plus the negotiated connection state.
// Handshake failures are fatal to the session.
func (t *tlsTransport) start(conn net.Conn) (net.Conn, *tls.ConnectionState, error) {
	tlsConn := tls.Server(conn, t.config)
	if err := tlsConn.Handshake(); err != nil {
		return nil, nil, err
	}
	state := tlsConn.ConnectionState()
	return tlsConn, &state, nil
}
