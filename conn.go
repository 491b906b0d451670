package smtpd

import (
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nimblemail/submitd/internal/calltrace"
	"github.com/nimblemail/submitd/internal/tlsconst"
)

// Conn drives the SMTP command/state machine for one accepted
// connection. It owns the line framer, the session context and the
// optional TLS transport, and is never shared across goroutines.
type Conn struct {
	cfg *Config

	netConn net.Conn
	framer  *lineFramer
	tls     *tlsTransport

	session Session
	state   cmdState
	scratch authScratch

	dataStarted  bool
	lastDataTerm []byte
	errCount     int

	// pipelineViolation is set when a line is seen sitting fully buffered
	// ahead of the one just dispatched, while pipelining is disallowed:
	// the line that arrived too early is the NEXT one read, not the
	// current one, so the reject is deferred to that read.
	pipelineViolation bool

	tr *calltrace.Trace
}

func newConn(cfg *Config, nc net.Conn, tls *tlsTransport) *Conn {
	return &Conn{
		cfg:     cfg,
		netConn: nc,
		tls:     tls,
		framer:  newLineFramer(nc, cfg.IOBufferChunkSize, cfg.IOBufferMaxSize, idleTimeout(cfg)),
		state:   cmdHelo,
	}
}

func idleTimeout(cfg *Config) time.Duration {
	if cfg.IOCmdTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(cfg.IOCmdTimeoutSeconds) * time.Second
}

// recordError appends err to the session's trace-backed error list and
// bumps the exception counter. It never logs shutdown signals (errQuit,
// errStopConnection) as errors.
func (c *Conn) recordError(err error) {
	if err == nil || err == errQuit || err == errStopConnection {
		return
	}
	if c.tr != nil {
		c.tr.Error(err)
	}
	c.session.Server.Exceptions++
	c.cfg.Callbacks.OnLoggingEvent(&c.session, "error", err.Error(), err)
}

// logEvent reports a non-error event both to the trace and to the host's
// OnLoggingEvent hook.
func (c *Conn) logEvent(sev, message string) {
	if c.tr != nil {
		if sev == "debug" {
			c.tr.Debugf("%s", message)
		} else {
			c.tr.Printf("%s", message)
		}
	}
	c.cfg.Callbacks.OnLoggingEvent(&c.session, sev, message, nil)
}

// serve runs the full per-connection protocol loop: greeting, command
// dispatch, and resource release on every exit path. It never returns an
// error the caller need act on beyond logging; all reply writing and
// connection teardown happens here.
func (c *Conn) serve() {
	c.tr = calltrace.New("smtpd.Conn", c.netConn.RemoteAddr().String())
	defer c.tr.Finish()
	c.session.tr = c.tr

	c.session.connectionInitialize()
	c.session.Server.Connected = nowFunc()
	c.fillAddrInfo()
	c.logEvent("info", "connection accepted")

	if err := c.cfg.Callbacks.OnConnect(&c.session); err != nil {
		c.recordError(err)
	}
	defer c.cfg.Callbacks.OnDisconnect(&c.session)

	greeting := c.session.Server.LocalResponse
	if greeting == "" {
		greeting = c.session.Server.LocalHost + " ESMTP ready"
	}
	if err := c.writeReply(reply{220, sanitizeReplyLine(greeting)}); err != nil {
		return
	}

	for {
		if err := c.step(); err != nil {
			switch err {
			case errQuit, errStopConnection:
				return
			case io.EOF:
				c.logEvent("debug", "client closed the connection")
				return
			default:
				return
			}
		}
	}
}

func (c *Conn) fillAddrInfo() {
	if local, ok := c.netConn.LocalAddr().(*net.TCPAddr); ok {
		c.session.Server.LocalIP = local.IP.String()
		c.session.Server.LocalPort = strconv.Itoa(local.Port)
	}
	if remote, ok := c.netConn.RemoteAddr().(*net.TCPAddr); ok {
		c.session.Server.RemoteIP = remote.IP.String()
		c.session.Server.RemotePort = strconv.Itoa(remote.Port)
		c.session.Server.RemoteHost = remote.IP.String()
		if c.cfg.DNSReverseLookup {
			if names, err := net.LookupAddr(remote.IP.String()); err == nil && len(names) > 0 {
				c.session.Server.RemoteHost = strings.TrimSuffix(names[0], ".")
			}
		}
	}
}

// step reads and dispatches exactly one command (or, while in CMD_DATA,
// one data line), writing whatever reply results. A returned error other
// than errQuit/errStopConnection means the connection is already in an
// unrecoverable state and must be torn down by the caller.
func (c *Conn) step() error {
	violation := c.pipelineViolation
	c.pipelineViolation = false
	stateBefore := c.state

	line, term, err := c.framer.readLine()
	if err != nil {
		if se, ok := err.(*SMTPError); ok {
			c.writeReply(reply{se.Code, se.Message})
		}
		return err
	}

	// A command is only a pipelining violation if it was already sitting
	// in the buffer when the PRIOR line was read — i.e. it was sent
	// before the client could have seen the prior command's reply. That
	// was detected one step() call ago (below) and deferred to this read,
	// since the line doing the arriving-too-early is this one, not the
	// one before it.
	if violation {
		c.recordError(Errorf(500, "5.5.1 pipelining not supported"))
		c.writeReply(reply{500, "5.5.1 pipelining not supported"})
		return nil
	}

	line, err = c.applyCRLFPolicy(line, term)
	if err != nil {
		c.recordError(err)
		c.writeReply(asReply(err, 500, "5.5.2 bad line ending"))
		return nil
	}

	var stepErr error
	if stateBefore == cmdData {
		stepErr = c.stepData(line, term)
	} else {
		stepErr = c.dispatch(line)
	}

	// DATA body lines are expected to arrive back-to-back; only flag the
	// next read as over-eager if neither side of this dispatch was DATA.
	if !c.cfg.PipeliningExtension && stateBefore != cmdData && c.state != cmdData && c.framer.hasBufferedLine() {
		c.pipelineViolation = true
	}

	return stepErr
}

// applyCRLFPolicy implements the three CRLF handling modes. For
// CRLF_ENSURE/CRLF_LEAVE the framer has already stripped the terminator
// and classified it; CRLF_STRICT additionally rejects a bare "\n"
// embedded in what was supposed to be a "\r\n"-only line, which shows up
// here as term == termLF.
func (c *Conn) applyCRLFPolicy(line string, term lineTerm) (string, error) {
	switch c.cfg.CRLFMode {
	case CRLFStrict:
		if term != termCRLF {
			return "", Errorf(500, "5.5.2 bare LF not permitted")
		}
		if strings.ContainsAny(line, "\r\n") {
			return "", Errorf(500, "5.5.2 bare CR not permitted")
		}
		return line, nil
	case CRLFEnsure:
		// Strip any interior CR the framer's newline-only split left
		// behind: CRLF_ENSURE guarantees a clean line with every CR and
		// LF removed.
		return strings.ReplaceAll(line, "\r", ""), nil
	default: // CRLFLeave
		return line, nil
	}
}

func (c *Conn) stepData(line string, term lineTerm) error {
	done, err := c.feedDataLine(line, term)
	if err != nil {
		code, msg := 451, "4.3.0 error processing message"
		if !done {
			code, msg = 500, "5.5.0 error processing message"
		}
		r := asReply(err, code, msg)
		c.writeReply(r)
		if done {
			c.state = cmdRset
		}
		return nil
	}
	if done {
		c.state = cmdRset
		c.writeReply(reply{250, "2.0.0 message accepted"})
	}
	return nil
}

// dispatch implements the command grammar: which verbs are legal from
// which prior state, and what each one does.
func (c *Conn) dispatch(line string) error {
	verb, params := splitCommand(line)
	upper := strings.ToUpper(verb)
	commandsTotal.WithLabelValues(upper).Inc()

	var r reply
	var err error

	switch upper {
	case "HELO":
		r, err = c.cmdHELO(params, false)
	case "EHLO":
		r, err = c.cmdHELO(params, true)
	case "STARTTLS":
		r, err = c.cmdSTARTTLS()
	case "AUTH":
		r, err = c.cmdAUTH(params)
	case "NOOP":
		r = reply{250, "2.0.0 OK"}
	case "RSET":
		if err = c.requireHelo(); err == nil {
			if err = c.requireEncryptionIfMandated(); err == nil {
				c.session.resetPerMessage()
				c.session.clearAuth()
				c.state = cmdRset
				r = reply{250, "2.0.0 OK"}
			}
		}
	case "QUIT":
		c.writeReply(reply{221, "2.0.0 goodbye"})
		return errQuit
	case "MAIL":
		r, err = c.cmdMAIL(params)
	case "RCPT":
		r, err = c.cmdRCPT(params)
	case "DATA":
		r, err = c.cmdDATA()
	case "GET", "POST", "CONNECT":
		// Cross-protocol confusion guard: a client speaking HTTP at us
		// has no business here.
		c.writeReply(reply{502, "5.5.1 this is not an HTTP server"})
		return errStopConnection
	default:
		err = c.cfg.Callbacks.OnUnknownCommand(&c.session, line)
		r = asReply(err, 500, "5.5.1 unrecognized command")
	}

	if err == errStopConnection || err == errQuit {
		return err
	}

	if err != nil {
		c.recordError(err)
		if r.code == 0 {
			r = asReply(err, 500, "5.5.0 command failed")
		}
	}

	if r.code != 0 {
		c.writeReply(r)
		if r.code >= 400 {
			c.errCount++
			if c.errCount >= 3 {
				c.recordError(fmt.Errorf("too many consecutive errors"))
				c.writeReply(reply{421, "4.5.0 too many errors, goodbye"})
				return errStopConnection
			}
		} else {
			c.errCount = 0
		}
	}

	return nil
}

func splitCommand(line string) (verb, params string) {
	line = strings.TrimSpace(line)
	sp := strings.SplitN(line, " ", 2)
	verb = sp[0]
	if len(sp) > 1 {
		params = strings.TrimSpace(sp[1])
	}
	return verb, params
}

func (c *Conn) requireHelo() error {
	if c.state == cmdHelo {
		return Errorf(503, "5.5.1 send HELO/EHLO first")
	}
	return nil
}

func (c *Conn) requireEncryptionIfMandated() error {
	if c.cfg.EncryptMode == TLSRequired && c.session.Server.Encrypted.IsZero() {
		return Errorf(530, "5.7.0 must issue STARTTLS first")
	}
	return nil
}

func (c *Conn) requireAuthIfMandated() error {
	if c.cfg.AuthMode == AuthRequired && c.session.Server.Authenticated.IsZero() {
		return Errorf(530, "5.7.1 authentication required")
	}
	return nil
}

func (c *Conn) cmdHELO(arg string, extended bool) (reply, error) {
	if c.state != cmdHelo {
		return reply{}, Errorf(503, "5.5.1 already said hello")
	}
	if strings.TrimSpace(arg) == "" {
		return reply{}, Errorf(501, "5.5.4 HELO requires a domain argument")
	}

	c.session.Server.Helo = strings.Fields(arg)[0]
	c.session.clearAuth()

	if err := c.cfg.Callbacks.OnHelo(&c.session, arg); err != nil {
		return reply{}, err
	}
	c.state = cmdRset

	if !extended {
		msg := c.session.Server.HeloResponse
		if msg == "" {
			msg = c.session.Server.LocalHost
		}
		return reply{250, sanitizeReplyLine(msg)}, nil
	}

	var lines []string
	base := c.session.Server.HeloResponse
	if base == "" {
		base = c.session.Server.LocalHost
	}
	lines = append(lines, sanitizeReplyLine(base))
	if c.cfg.I18n {
		lines = append(lines, "8BITMIME", "SMTPUTF8")
	}
	if c.cfg.PipeliningExtension {
		lines = append(lines, "PIPELINING")
	}
	if c.cfg.AuthMode != AuthForbidden {
		lines = append(lines, "AUTH LOGIN PLAIN")
	}
	if c.cfg.EncryptMode != TLSForbidden && c.session.Server.Encrypted.IsZero() {
		lines = append(lines, "STARTTLS")
	}
	return reply{250, strings.Join(lines, "\n")}, nil
}

func (c *Conn) cmdSTARTTLS() (reply, error) {
	if err := c.requireHelo(); err != nil {
		return reply{}, err
	}
	if !c.session.Server.Encrypted.IsZero() {
		return reply{}, Errorf(503, "5.5.1 already encrypted")
	}
	if c.cfg.EncryptMode == TLSForbidden {
		return reply{}, Errorf(503, "5.5.1 STARTTLS not offered")
	}

	if err := c.writeReply(reply{220, "2.0.0 Ready to start TLS"}); err != nil {
		return reply{}, err
	}

	upgraded, state, err := c.tls.start(c.netConn)
	if err != nil {
		c.recordError(err)
		return reply{}, errStopConnection
	}

	c.netConn = upgraded
	c.framer = newLineFramer(upgraded, c.cfg.IOBufferChunkSize, c.cfg.IOBufferMaxSize, idleTimeout(c.cfg))

	c.session.Server.Encrypted = nowFunc()
	c.session.Server.TLSVersion = tlsconst.VersionName(state.Version)
	c.session.Server.TLSCipher = tlsconst.CipherSuiteName(state.CipherSuite)
	tlsConnectionsTotal.WithLabelValues("starttls").Inc()

	c.session.Server.Helo = ""
	c.session.clearAuth()
	c.session.resetPerMessage()
	c.state = cmdHelo

	return reply{0, ""}, nil
}

func (c *Conn) cmdAUTH(params string) (reply, error) {
	if err := c.requireHelo(); err != nil {
		return reply{}, err
	}
	if err := c.requireEncryptionIfMandated(); err != nil {
		return reply{}, err
	}
	if c.cfg.AuthMode == AuthForbidden {
		return reply{}, Errorf(503, "5.5.1 AUTH not offered")
	}
	if c.state != cmdRset {
		return reply{}, Errorf(503, "5.5.1 AUTH not allowed now")
	}
	if !c.session.Server.Authenticated.IsZero() {
		return reply{}, Errorf(503, "5.5.1 already authenticated")
	}

	defer c.scratch.clear()

	sp := strings.SplitN(strings.TrimSpace(params), " ", 2)
	mech := strings.ToUpper(sp[0])
	var arg string
	if len(sp) == 2 {
		arg = sp[1]
	}

	var authz, authn, secret string
	var err error

	switch mech {
	case mechPlain:
		authz, authn, secret, err = c.authPlainFlow(arg)
	case mechLogin:
		authz, authn, secret, err = c.authLoginFlow(arg)
	default:
		return reply{}, Errorf(504, "5.5.4 unsupported AUTH mechanism")
	}
	if err != nil {
		c.state = cmdRset
		return reply{}, err
	}

	c.state = cmdRset
	if err := c.authenticate(authz, authn, secret); err != nil {
		return reply{}, err
	}
	return reply{235, "2.7.0 authentication successful"}, nil
}

func (c *Conn) authPlainFlow(arg string) (authz, authn, secret string, err error) {
	resp := arg
	if resp == "" {
		if werr := c.writeReply(reply{334, ""}); werr != nil {
			return "", "", "", werr
		}
		resp, _, err = c.framer.readLine()
		if err != nil {
			return "", "", "", err
		}
	}
	return decodeAuthPlain(resp)
}

func (c *Conn) authLoginFlow(arg string) (authz, authn, secret string, err error) {
	userB64 := arg
	if userB64 == "" {
		if werr := c.writeReply(reply{334, base64.StdEncoding.EncodeToString([]byte("Username:"))}); werr != nil {
			return "", "", "", werr
		}
		userB64, _, err = c.framer.readLine()
		if err != nil {
			return "", "", "", err
		}
	}
	user, err := base64.StdEncoding.DecodeString(userB64)
	if err != nil {
		return "", "", "", Errorf(500, "5.5.2 cannot decode AUTH LOGIN username")
	}

	if werr := c.writeReply(reply{334, base64.StdEncoding.EncodeToString([]byte("Password:"))}); werr != nil {
		return "", "", "", werr
	}
	passB64, _, err := c.framer.readLine()
	if err != nil {
		return "", "", "", err
	}
	pass, err := base64.StdEncoding.DecodeString(passB64)
	if err != nil {
		return "", "", "", Errorf(500, "5.5.2 cannot decode AUTH LOGIN password")
	}

	return "", string(user), string(pass), nil
}

func (c *Conn) cmdMAIL(params string) (reply, error) {
	if err := c.requireHelo(); err != nil {
		return reply{}, err
	}
	if c.state != cmdRset {
		return reply{}, Errorf(503, "5.5.1 MAIL not allowed now")
	}
	if err := c.requireEncryptionIfMandated(); err != nil {
		return reply{}, err
	}
	if err := c.requireAuthIfMandated(); err != nil {
		return reply{}, err
	}
	if !strings.HasPrefix(strings.ToUpper(params), "FROM:") {
		return reply{}, Errorf(501, "5.5.4 syntax: MAIL FROM:<address>")
	}

	addr, bodyEnc, utf8Enc, err := parseMailFromParams(params[len("FROM:"):], c.cfg.I18n)
	if err != nil {
		return reply{}, err
	}

	if override, cbErr := c.cfg.Callbacks.OnMailFrom(&c.session, addr); cbErr != nil {
		c.recordError(cbErr)
		return reply{}, cbErr
	} else if override != "" {
		addr = override
	}

	c.session.Envelope.From = addr
	c.session.Envelope.EncodingBody = bodyEnc
	c.session.Envelope.EncodingUTF8 = utf8Enc
	c.state = cmdMail
	return reply{250, "2.1.0 OK"}, nil
}

// parseMailFromParams extracts the address and the optional BODY=/
// SMTPUTF8 parameters from a MAIL FROM command line.
func parseMailFromParams(rest string, i18n bool) (addr, bodyEnc, utf8Enc string, err error) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", "", "", Errorf(501, "5.5.4 MAIL FROM requires an address")
	}
	addr = strings.TrimSuffix(strings.TrimPrefix(fields[0], "<"), ">")

	for _, tok := range fields[1:] {
		upper := strings.ToUpper(tok)
		switch {
		case upper == "BODY=7BIT":
			if !i18n {
				return "", "", "", Errorf(501, "5.5.4 BODY parameter not supported")
			}
			bodyEnc = "7bit"
		case upper == "BODY=8BITMIME":
			if !i18n {
				return "", "", "", Errorf(501, "5.5.4 BODY parameter not supported")
			}
			bodyEnc = "8bitmime"
		case strings.HasPrefix(upper, "BODY="):
			return "", "", "", Errorf(501, "5.5.4 unsupported BODY parameter")
		case upper == "SMTPUTF8":
			if !i18n {
				return "", "", "", Errorf(501, "5.5.4 SMTPUTF8 parameter not supported")
			}
			utf8Enc = "utf8"
		}
	}
	return addr, bodyEnc, utf8Enc, nil
}

func (c *Conn) cmdRCPT(params string) (reply, error) {
	if err := c.requireHelo(); err != nil {
		return reply{}, err
	}
	if c.state != cmdMail && c.state != cmdRcpt {
		return reply{}, Errorf(503, "5.5.1 need MAIL FROM first")
	}
	if err := c.requireEncryptionIfMandated(); err != nil {
		return reply{}, err
	}
	if err := c.requireAuthIfMandated(); err != nil {
		return reply{}, err
	}
	if !strings.HasPrefix(strings.ToUpper(params), "TO:") {
		return reply{}, Errorf(501, "5.5.4 syntax: RCPT TO:<address>")
	}

	fields := strings.Fields(params[len("TO:"):])
	if len(fields) == 0 {
		return reply{}, Errorf(501, "5.5.4 RCPT TO requires an address")
	}
	addr := strings.TrimSuffix(strings.TrimPrefix(fields[0], "<"), ">")

	if override, cbErr := c.cfg.Callbacks.OnRcptTo(&c.session, addr); cbErr != nil {
		c.recordError(cbErr)
		return reply{}, cbErr
	} else if override != "" {
		addr = override
	}

	c.session.Envelope.To = append(c.session.Envelope.To, addr)
	c.state = cmdRcpt
	return reply{250, "2.1.5 OK"}, nil
}

func (c *Conn) cmdDATA() (reply, error) {
	if err := c.requireHelo(); err != nil {
		return reply{}, err
	}
	if c.state != cmdRcpt {
		return reply{}, Errorf(503, "5.5.1 need RCPT TO first")
	}
	if err := c.requireEncryptionIfMandated(); err != nil {
		return reply{}, err
	}
	if err := c.requireAuthIfMandated(); err != nil {
		return reply{}, err
	}

	c.session.Message.Received = nowFunc()
	c.state = cmdData
	return reply{354, `Enter message, ending with "." on a line by itself`}, nil
}

func (c *Conn) writeReply(r reply) error {
	if r.code == 0 {
		return nil
	}
	responseCodesTotal.WithLabelValues(strconv.Itoa(r.code)).Inc()
	lines := strings.Split(r.msg, "\n")
	var buf strings.Builder
	for i, l := range lines {
		sep := "-"
		if i == len(lines)-1 {
			sep = " "
		}
		fmt.Fprintf(&buf, "%d%s%s\r\n", r.code, sep, l)
	}
	_, err := io.WriteString(c.netConn, buf.String())
	return err
}

// sanitizeReplyLine strips CR/LF from a value a host callback may have
// set, so it can't be used to inject extra reply lines.
func sanitizeReplyLine(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
