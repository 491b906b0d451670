package smtpd

// Callbacks is the set of hooks the host program supplies to observe and
// steer a session. All methods default to no-op when embedding
// NoopCallbacks, except OnAuth (denies) and OnUnknownCommand (replies
// 500).
//
// A method may return an *SMTPError to control the exact reply; any other
// error becomes a 500 during command handling or a 451 during DATA
// completion. Every returned error increments the session's exception
// counter and is recorded in Session.Errors().
type Callbacks interface {
	// OnConnect fires once the connection is accepted and the Session is
	// initialized. It may mutate Session.Server.LocalResponse/HeloResponse.
	// A returned error is recorded but does not change the 220 greeting.
	OnConnect(s *Session) error

	// OnDisconnect always fires, exactly once, regardless of how the
	// session ended.
	OnDisconnect(s *Session)

	// OnHelo fires on a successful HELO/EHLO; arg is the client's stated
	// domain. It may mutate Session.Server.HeloResponse.
	OnHelo(s *Session, arg string) error

	// OnAuth verifies credentials for AUTH LOGIN/PLAIN. authzID may be
	// empty. It returns the authorization id to record (an override of
	// authzID), or an error — typically ErrAuthFailed — to reject.
	OnAuth(s *Session, authzID, authnID, secret string) (authzOverride string, err error)

	// OnMailFrom fires after MAIL FROM is parsed. Returning a non-empty
	// address overrides what is recorded on Session.Envelope.From.
	OnMailFrom(s *Session, arg string) (overrideAddr string, err error)

	// OnRcptTo fires after each RCPT TO is parsed. Returning a non-empty
	// address overrides what is appended to Session.Envelope.To.
	OnRcptTo(s *Session, arg string) (overrideAddr string, err error)

	// OnDataStart fires once, the first line after the DATA verb.
	OnDataStart(s *Session) error

	// OnDataHeaders fires once the blank line ending the header block is
	// seen (Session.Message.Headers flips true right before this call).
	OnDataHeaders(s *Session) error

	// OnDataReceiving fires once per body line accepted into
	// Session.Message.Data (after dot-unstuffing). Returning an error
	// aborts DATA.
	OnDataReceiving(s *Session) error

	// OnDataComplete fires once the terminating "." line is seen, with
	// Session.Message.Data holding the full reassembled body. This is
	// the host's chance to accept/store the message.
	OnDataComplete(s *Session) error

	// OnUnknownCommand fires for any verb outside the supported command
	// grammar. The default denies with 500.
	OnUnknownCommand(s *Session, line string) error

	// OnLoggingEvent is a hook into every log line the engine would
	// otherwise only send to its own logger; sev is one of "debug",
	// "info", "error".
	OnLoggingEvent(s *Session, sev string, message string, err error)
}

// NoopCallbacks implements Callbacks with the documented defaults. Embed
// it and override only the hooks you need.
type NoopCallbacks struct{}

func (NoopCallbacks) OnConnect(*Session) error                       { return nil }
func (NoopCallbacks) OnDisconnect(*Session)                          {}
func (NoopCallbacks) OnHelo(*Session, string) error                  { return nil }
func (NoopCallbacks) OnDataStart(*Session) error                     { return nil }
func (NoopCallbacks) OnDataHeaders(*Session) error                   { return nil }
func (NoopCallbacks) OnDataReceiving(*Session) error                 { return nil }
func (NoopCallbacks) OnDataComplete(*Session) error                  { return nil }
func (NoopCallbacks) OnLoggingEvent(*Session, string, string, error) {}

func (NoopCallbacks) OnMailFrom(*Session, string) (string, error) { return "", nil }
func (NoopCallbacks) OnRcptTo(*Session, string) (string, error)   { return "", nil }

// OnAuth denies all credentials by default; a host that wants to accept
// AUTH must override this.
func (NoopCallbacks) OnAuth(*Session, string, string, string) (string, error) {
	return "", ErrAuthFailed
}

// OnUnknownCommand rejects with 500 by default.
func (NoopCallbacks) OnUnknownCommand(*Session, string) error {
	return Errorf(500, "5.5.1 unrecognized command")
}
