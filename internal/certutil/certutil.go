// Package certutil generates self-signed TLS certificates in memory, for
// use when the server is not given an explicit certificate/key pair.
// Unlike a typical test-only certificate generator, this one stays in
// memory and is part of the server's normal (non-test) startup path.
package certutil

import (
	crand "crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

// ValidFor is how long a generated certificate remains valid.
const ValidFor = 365 * 24 * time.Hour

// SelfSigned generates a self-signed RSA certificate whose Subject CN and
// SANs are derived from hosts. If the first host is a loopback address or
// "localhost", the CN defaults to "localhost.local", since some mail
// clients refuse to validate a bare "localhost" certificate.
func SelfSigned(hosts []string) (tls.Certificate, error) {
	if len(hosts) == 0 {
		hosts = []string{"localhost"}
	}

	cn := hosts[0]
	if cn == "localhost" || net.ParseIP(cn).IsLoopback() {
		cn = "localhost.local"
	}

	serial, err := crand.Int(crand.Reader, big.NewInt(1<<62))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generating serial number: %v", err)
	}

	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: cn, Organization: []string{"submitd self-signed"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(ValidFor),
		KeyUsage: x509.KeyUsageKeyEncipherment |
			x509.KeyUsageDigitalSignature |
			x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	for _, h := range hosts {
		if strings.TrimSpace(h) == "" {
			continue
		}
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
			continue
		}
		// IDNA-encode non-ASCII hostnames; crypto/x509 requires DNSNames
		// to be ASCII.
		ih, err := idna.ToASCII(h)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("host %q cannot be IDNA-encoded: %v", h, err)
		}
		tmpl.DNSNames = append(tmpl.DNSNames, ih)
	}

	priv, err := rsa.GenerateKey(crand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generating key: %v", err)
	}

	der, err := x509.CreateCertificate(crand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("creating certificate: %v", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        &tmpl,
	}, nil
}
