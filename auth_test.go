package smtpd

import (
	"encoding/base64"
	"testing"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestDecodeAuthPlainThreeFields(t *testing.T) {
	authz, authn, secret, err := decodeAuthPlain(b64("\x00alice\x00pw"))
	if err != nil {
		t.Fatalf("decodeAuthPlain: %v", err)
	}
	if authz != "" || authn != "alice" || secret != "pw" {
		t.Errorf("got %q, %q, %q", authz, authn, secret)
	}
}

func TestDecodeAuthPlainWithAuthz(t *testing.T) {
	authz, authn, secret, err := decodeAuthPlain(b64("boss\x00alice\x00pw"))
	if err != nil {
		t.Fatalf("decodeAuthPlain: %v", err)
	}
	if authz != "boss" || authn != "alice" || secret != "pw" {
		t.Errorf("got %q, %q, %q", authz, authn, secret)
	}
}

func TestDecodeAuthPlainRejectsTwoFields(t *testing.T) {
	_, _, _, err := decodeAuthPlain(b64("alice\x00pw"))
	if err == nil {
		t.Errorf("decodeAuthPlain with two fields succeeded, want error")
	}
}

func TestDecodeAuthPlainRejectsBadBase64(t *testing.T) {
	_, _, _, err := decodeAuthPlain("not-base64!!!")
	if err == nil {
		t.Errorf("decodeAuthPlain with bad base64 succeeded, want error")
	}
}

func TestChosenAuthzID(t *testing.T) {
	cases := []struct {
		override, authz, authn, want string
	}{
		{"override", "a", "b", "override"},
		{"", "a", "b", "a"},
		{"", "", "b", "b"},
	}
	for _, c := range cases {
		got := chosenAuthzID(c.override, c.authz, c.authn)
		if got != c.want {
			t.Errorf("chosenAuthzID(%q,%q,%q) = %q, want %q",
				c.override, c.authz, c.authn, got, c.want)
		}
	}
}
