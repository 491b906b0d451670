package smtpd

import (
	"encoding/base64"
	"strings"

	"github.com/nimblemail/submitd/internal/normalize"
)

// authScratch holds the pending identities between AUTH LOGIN's two
// challenges; cleared on completion or reset.
type authScratch struct {
	authzID string
	authnID string
}

func (a *authScratch) clear() {
	*a = authScratch{}
}

// decodeAuthPlain splits a decoded AUTH PLAIN response into its three
// NUL-delimited fields. Exactly three fields are required even though
// RFC 4616 permits a shorter encoding; two-field PLAIN payloads are
// rejected.
func decodeAuthPlain(b64 string) (authz, authn, secret string, err error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", "", "", Errorf(500, "5.5.2 cannot decode AUTH PLAIN response")
	}
	fields := strings.SplitN(string(raw), "\x00", 3)
	if len(fields) != 3 {
		return "", "", "", Errorf(500, "5.5.2 malformed AUTH PLAIN response")
	}
	return fields[0], fields[1], fields[2], nil
}

// chosenAuthzID picks the authorization identity to record: the override
// if the host callback returned one, else the decoded authz if
// non-empty, else the authn.
func chosenAuthzID(override, authz, authn string) string {
	if override != "" {
		return override
	}
	if authz != "" {
		return authz
	}
	return authn
}

// authenticate normalizes the two identities and calls into the host's
// Callbacks.OnAuth. Any error aborts with 535 (ErrAuthFailed if the host
// didn't supply a more specific one).
func (c *Conn) authenticate(authz, authn, secret string) error {
	normAuthz, err := normalize.AuthID(authz)
	if err != nil {
		return ErrAuthFailed
	}
	normAuthn, err := normalize.AuthID(authn)
	if err != nil {
		return ErrAuthFailed
	}

	override, err := c.cfg.Callbacks.OnAuth(&c.session, normAuthz, normAuthn, secret)
	if err != nil {
		c.recordError(err)
		if se, ok := err.(*SMTPError); ok {
			return se
		}
		return ErrAuthFailed
	}

	c.session.Server.AuthorizationID = chosenAuthzID(override, normAuthz, normAuthn)
	c.session.Server.AuthenticationID = normAuthn
	c.session.Server.Authenticated = nowFunc()
	return nil
}

// Known AUTH mechanisms; CRAM-MD5 and any other challenge mechanism are
// out of scope.
const (
	mechPlain = "PLAIN"
	mechLogin = "LOGIN"
)
