package certutil

import (
	"crypto/x509"
	"testing"
)

func TestSelfSignedLoopbackCN(t *testing.T) {
	cert, err := SelfSigned([]string{"127.0.0.1"})
	if err != nil {
		t.Fatalf("SelfSigned: %v", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	if leaf.Subject.CommonName != "localhost.local" {
		t.Errorf("CN = %q, want %q", leaf.Subject.CommonName, "localhost.local")
	}
	if len(leaf.IPAddresses) != 1 || leaf.IPAddresses[0].String() != "127.0.0.1" {
		t.Errorf("IPAddresses = %v, want [127.0.0.1]", leaf.IPAddresses)
	}
}

func TestSelfSignedHostname(t *testing.T) {
	cert, err := SelfSigned([]string{"mail.example.com"})
	if err != nil {
		t.Fatalf("SelfSigned: %v", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	if leaf.Subject.CommonName != "mail.example.com" {
		t.Errorf("CN = %q, want %q", leaf.Subject.CommonName, "mail.example.com")
	}
	if len(leaf.DNSNames) != 1 || leaf.DNSNames[0] != "mail.example.com" {
		t.Errorf("DNSNames = %v, want [mail.example.com]", leaf.DNSNames)
	}
}
