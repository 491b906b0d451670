package smtpd

import "fmt"

// CRLFMode selects how the dispatcher treats input line terminators and
// what it writes back into a stored message body.
type CRLFMode int

const (
	// CRLFEnsure strips every CR and LF the client sent and always
	// writes "\r\n" into stored body lines. This is the default.
	CRLFEnsure CRLFMode = iota
	// CRLFLeave records whether each DATA line ended in "\r\n" or a bare
	// "\n", and reuses that terminator when storing the line.
	CRLFLeave
	// CRLFStrict requires exactly "\r\n" with no bare "\n" anywhere in
	// the line; any violation is a 500.
	CRLFStrict
)

func (m CRLFMode) String() string {
	switch m {
	case CRLFEnsure:
		return "CRLF_ENSURE"
	case CRLFLeave:
		return "CRLF_LEAVE"
	case CRLFStrict:
		return "CRLF_STRICT"
	default:
		return "CRLF_UNKNOWN"
	}
}

// AuthMode controls whether AUTH is offered and whether it is required
// before mail submission proceeds.
type AuthMode int

const (
	AuthForbidden AuthMode = iota
	AuthOptional
	AuthRequired
)

func (m AuthMode) String() string {
	switch m {
	case AuthForbidden:
		return "AUTH_FORBIDDEN"
	case AuthOptional:
		return "AUTH_OPTIONAL"
	case AuthRequired:
		return "AUTH_REQUIRED"
	default:
		return "AUTH_UNKNOWN"
	}
}

// EncryptMode controls whether STARTTLS is offered and whether it is
// required before mail submission proceeds.
type EncryptMode int

const (
	TLSForbidden EncryptMode = iota
	TLSOptional
	TLSRequired
)

func (m EncryptMode) String() string {
	switch m {
	case TLSForbidden:
		return "TLS_FORBIDDEN"
	case TLSOptional:
		return "TLS_OPTIONAL"
	case TLSRequired:
		return "TLS_REQUIRED"
	default:
		return "TLS_UNKNOWN"
	}
}

// Config is the full set of knobs a host supplies to New. Zero-value
// Config is invalid; call Validate (New calls it for you) before use.
type Config struct {
	// Hosts and Ports are comma-separated lists expanded into concrete
	// bindings by internal/bind.Expand.
	Hosts string
	Ports string

	// TLSCertFile/TLSKeyFile name a certificate/key pair on disk. If
	// both are empty, a self-signed certificate is generated from Hosts
	// (internal/certutil.SelfSigned).
	TLSCertFile string
	TLSKeyFile  string

	// MaxConnections bounds the number of held-open TCP sessions; nil
	// (zero value 0) means unbounded. If set, it must be ≥ MaxProcessings.
	MaxConnections int
	// MaxProcessings bounds the number of sessions actively processing
	// commands at once; required, must be positive.
	MaxProcessings int

	// PreFork, if ≥ 2, re-execs this many worker processes that share
	// the bound listeners; 0 disables pre-forking. 1 is invalid.
	PreFork int

	// CRLFMode, AuthMode, EncryptMode select the line-ending, auth, and
	// TLS policies for the session.
	CRLFMode    CRLFMode
	AuthMode    AuthMode
	EncryptMode EncryptMode

	// PipeliningExtension, when false, rejects a second complete line
	// already buffered ahead of the first outside of DATA (500).
	PipeliningExtension bool
	// I18n enables BODY=7BIT/8BITMIME and SMTPUTF8 MAIL FROM parameters
	// and their advertisement in EHLO.
	I18n bool

	// DNSReverseLookup, when true, resolves the remote address to a
	// hostname at accept time; when false, RemoteHost stays numeric.
	DNSReverseLookup bool

	// IOCmdTimeoutSeconds is the idle deadline for a single command
	// line; 0 disables it. IOBufferMaxSize bounds a single line's
	// buffered size before a newline is seen; 0 disables it.
	IOCmdTimeoutSeconds int
	IOBufferMaxSize     int
	// IOBufferChunkSize is how much the line framer reads per
	// non-blocking attempt; 0 picks a sane default (4096).
	IOBufferChunkSize int

	// WaitSecondsBeforeClose is the grace period Stop waits, if
	// connections remain, after closing the listeners. Graceful, when
	// true, then makes Stop wait indefinitely for every session to end.
	// Stop does not close sessions that are still running after these
	// waits; they end when their clients end them.
	WaitSecondsBeforeClose int
	Graceful               bool

	Callbacks Callbacks
}

// DefaultConfig returns sane defaults: bind 127.0.0.1:2525, CRLF_ENSURE,
// AUTH_OPTIONAL, TLS_OPTIONAL, pipelining and i18n on, reverse lookup
// off, a 100-processing/unbounded-connection admission policy, and
// NoopCallbacks.
func DefaultConfig() Config {
	return Config{
		Hosts:               "127.0.0.1",
		Ports:               "2525",
		MaxProcessings:      100,
		CRLFMode:            CRLFEnsure,
		AuthMode:            AuthOptional,
		EncryptMode:         TLSOptional,
		PipeliningExtension: true,
		I18n:                true,
		IOCmdTimeoutSeconds: 300,
		IOBufferMaxSize:     1 << 20,
		IOBufferChunkSize:   4096,
		Callbacks:           NoopCallbacks{},
	}
}

// Validate checks the constraints on Config's fields. It is called by
// New; hosts embedding Config directly should call it too before
// relying on the values.
func (c *Config) Validate() error {
	if c.MaxProcessings <= 0 {
		return fmt.Errorf("smtpd: max_processings must be positive, got %d", c.MaxProcessings)
	}
	if c.MaxConnections != 0 && c.MaxConnections < c.MaxProcessings {
		return fmt.Errorf("smtpd: max_connections (%d) must be >= max_processings (%d)",
			c.MaxConnections, c.MaxProcessings)
	}
	if c.PreFork == 1 {
		return fmt.Errorf("smtpd: pre_fork must be 0 or >= 2, got 1")
	}
	if c.PreFork < 0 {
		return fmt.Errorf("smtpd: pre_fork must be 0 or >= 2, got %d", c.PreFork)
	}
	switch c.CRLFMode {
	case CRLFEnsure, CRLFLeave, CRLFStrict:
	default:
		return fmt.Errorf("smtpd: invalid crlf_mode %v", c.CRLFMode)
	}
	switch c.AuthMode {
	case AuthForbidden, AuthOptional, AuthRequired:
	default:
		return fmt.Errorf("smtpd: invalid auth_mode %v", c.AuthMode)
	}
	switch c.EncryptMode {
	case TLSForbidden, TLSOptional, TLSRequired:
	default:
		return fmt.Errorf("smtpd: invalid encrypt_mode %v", c.EncryptMode)
	}
	if c.Callbacks == nil {
		return fmt.Errorf("smtpd: Callbacks must be set")
	}
	return nil
}
