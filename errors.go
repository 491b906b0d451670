package smtpd

import "fmt"

// SMTPError is an error that carries the SMTP reply it should produce.
// Host callbacks may return one of these (or use the helpers below) to
// control exactly what the client sees; any other error becomes a generic
// 500 (command handling) or 451 (DATA completion).
type SMTPError struct {
	Code    int
	Message string
}

func (e *SMTPError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

// Errorf builds an SMTPError with a formatted message.
func Errorf(code int, format string, a ...interface{}) *SMTPError {
	return &SMTPError{Code: code, Message: fmt.Sprintf(format, a...)}
}

// ErrAuthFailed is the error a Callbacks.OnAuth implementation should
// return (or wrap) to reject credentials; it maps to a 535 reply.
var ErrAuthFailed = &SMTPError{Code: 535, Message: "5.7.8 authentication failed"}

// asReply maps an arbitrary error to an SMTP reply: an *SMTPError carries
// its own code, anything else becomes the given default code.
func asReply(err error, defaultCode int, defaultMsg string) reply {
	if se, ok := err.(*SMTPError); ok {
		return reply{code: se.Code, msg: se.Message}
	}
	return reply{code: defaultCode, msg: defaultMsg}
}

// reply is an internal formatted SMTP response. msg may contain embedded
// "\n" to produce a multi-line reply. A zero-value reply.code means "no
// reply" (e.g. after STARTTLS has already written its own 220).
type reply struct {
	code int
	msg  string
}

// sentinel errors used internally to unwind the session loop; never
// surfaced to a Callbacks method, and never logged as errors.
var (
	errQuit           = fmt.Errorf("quit")
	errStopConnection = fmt.Errorf("stop-connection")
)
