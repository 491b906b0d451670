// Package tlsconst contains TLS constants for human consumption, used when
// recording connection facts (Session.Server.TLSVersion/TLSCipher) for a
// host callback to build its own trace/headers from.
package tlsconst

import (
	"crypto/tls"
	"fmt"
)

var versionName = map[uint16]string{
	tls.VersionSSL30: "SSL-3.0",
	tls.VersionTLS10: "TLS-1.0",
	tls.VersionTLS11: "TLS-1.1",
	tls.VersionTLS12: "TLS-1.2",
	tls.VersionTLS13: "TLS-1.3",
}

// VersionName returns a human-readable TLS version name.
func VersionName(v uint16) string {
	name, ok := versionName[v]
	if !ok {
		return fmt.Sprintf("TLS-%#04x", v)
	}
	return name
}

// CipherSuiteName returns a human-readable TLS cipher suite name.
//
// The teacher generates this table from IANA's cipher suite assignments via
// a go:generate script; that generated table was not part of the retrieved
// pack, so this delegates to the stdlib's own registry (tls.CipherSuiteName,
// available since Go 1.14) instead of hand-authoring a partial copy.
func CipherSuiteName(s uint16) string {
	if name := tls.CipherSuiteName(s); name != "" {
		return name
	}
	return fmt.Sprintf("TLS_UNKNOWN_CIPHER_SUITE-%#04x", s)
}
