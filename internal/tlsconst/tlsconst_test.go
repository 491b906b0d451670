package tlsconst

import (
	"crypto/tls"
	"testing"
)

func TestVersionName(t *testing.T) {
	cases := []struct {
		ver      uint16
		expected string
	}{
		{tls.VersionTLS11, "TLS-1.1"},
		{tls.VersionTLS13, "TLS-1.3"},
		{0x1234, "TLS-0x1234"},
	}
	for _, c := range cases {
		got := VersionName(c.ver)
		if got != c.expected {
			t.Errorf("VersionName(%x) = %q, expected %q",
				c.ver, got, c.expected)
		}
	}
}

func TestCipherSuiteName(t *testing.T) {
	cases := []struct {
		suite    uint16
		expected string
	}{
		{tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256"},
		{tls.TLS_AES_128_GCM_SHA256, "TLS_AES_128_GCM_SHA256"},
	}
	for _, c := range cases {
		got := CipherSuiteName(c.suite)
		if got != c.expected {
			t.Errorf("CipherSuiteName(%x) = %q, expected %q",
				c.suite, got, c.expected)
		}
	}
}
