package smtpd

import (
	"time"

	"github.com/nimblemail/submitd/internal/calltrace"
)

// sessionTracer is the diagnostic trace attached to a Session. It is a
// thin alias over calltrace.Trace, used for the Session.tr field.
type sessionTracer = calltrace.Trace

// cmdState is the command-sequence state machine's explicit state,
// attached to the connection (not the Session context itself, which
// holds only observable data).
type cmdState int

const (
	cmdHelo cmdState = iota
	cmdRset
	cmdMail
	cmdRcpt
	cmdData
	cmdQuit
	cmdStartTLS
	cmdAuthPlainValues
	cmdAuthLoginUser
	cmdAuthLoginPass
)

func (s cmdState) String() string {
	switch s {
	case cmdHelo:
		return "CMD_HELO"
	case cmdRset:
		return "CMD_RSET"
	case cmdMail:
		return "CMD_MAIL"
	case cmdRcpt:
		return "CMD_RCPT"
	case cmdData:
		return "CMD_DATA"
	case cmdQuit:
		return "CMD_QUIT"
	case cmdStartTLS:
		return "CMD_STARTTLS"
	case cmdAuthPlainValues:
		return "CMD_AUTH_PLAIN_VALUES"
	case cmdAuthLoginUser:
		return "CMD_AUTH_LOGIN_USER"
	case cmdAuthLoginPass:
		return "CMD_AUTH_LOGIN_PASS"
	default:
		return "CMD_UNKNOWN"
	}
}

// ServerInfo is the "server" field group of the Session context.
type ServerInfo struct {
	LocalHost, LocalIP, LocalPort    string
	RemoteHost, RemoteIP, RemotePort string

	Helo string

	LocalResponse string
	HeloResponse  string

	Connected time.Time

	AuthorizationID  string
	AuthenticationID string
	Authenticated    time.Time // zero means "not authenticated"

	Encrypted  time.Time // zero means "not encrypted"
	TLSVersion string
	TLSCipher  string

	Exceptions int
}

// Envelope is the "envelope" field group of the Session context.
type Envelope struct {
	From         string
	To           []string // ordered, duplicates allowed
	EncodingBody string   // "", "7bit", "8bitmime"
	EncodingUTF8 string   // "", "utf8"
}

// Message is the "message" field group of the Session context.
type Message struct {
	Received  time.Time
	Delivered time.Time
	ByteSize  int64
	Headers   bool   // false before headers seen, true after
	CRLF      string // line terminator observed in the body, for CRLF_LEAVE
	Data      []byte
}

// Session is the per-connection context handed to every Callbacks method.
// It is created on accept, reset between messages, and discarded at
// disconnect; it is never shared across connections.
type Session struct {
	Server   ServerInfo
	Envelope Envelope
	Message  Message

	tr *sessionTracer
}

// Errors returns the errors recorded against this session so far
// (cloned: every raised error is appended to the session's error list,
// but callers never get a reference to the live slice).
func (s *Session) Errors() []error {
	if s.tr == nil {
		return nil
	}
	return s.tr.Errors()
}

// Exceptions is the count of errors recorded against this session so far.
func (s *Session) Exceptions() int {
	return s.Server.Exceptions
}

// connectionInitialize rebuilds the server group with empty strings and
// zero counters.
func (s *Session) connectionInitialize() {
	s.Server = ServerInfo{}
}

// clearAuth drops authentication state. Server.Authenticated (and the
// identities that go with it) is truthy only up to the next RSET or
// successful HELO/EHLO; both call this.
func (s *Session) clearAuth() {
	s.Server.AuthorizationID = ""
	s.Server.AuthenticationID = ""
	s.Server.Authenticated = time.Time{}
}

// resetPerMessage clears envelope and message. It does not touch the
// server group: helo, authentication and encryption state survive a
// per-message reset (authentication is cleared by RSET, HELO/EHLO and
// STARTTLS via clearAuth, helo by STARTTLS, encryption only by
// disconnect).
func (s *Session) resetPerMessage() {
	s.Envelope = Envelope{}
	s.Message = Message{}
}
