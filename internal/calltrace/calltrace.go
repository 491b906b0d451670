// Package calltrace extends golang.org/x/net/trace with the session-local
// error bookkeeping the SMTP engine needs: every recovered error is both
// written to the trace and appended to an in-memory list the session can
// hand back to host callbacks after the fact.
package calltrace

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/nimblemail/submitd/internal/log"

	nettrace "golang.org/x/net/trace"
)

func init() {
	// golang.org/x/net/trace only allows localhost by default, which is
	// more restrictive than useful for a server meant to be embedded and
	// debugged from wherever its operator runs.
	nettrace.AuthRequest = func(req *http.Request) (any, sensitive bool) {
		return true, true
	}
}

// A Trace represents the diagnostic record of one SMTP session.
type Trace struct {
	family string
	title  string
	t      nettrace.Trace

	mu         sync.Mutex
	errors     []error
	exceptions int
}

// New trace, with a title (normally the remote address of the connection).
func New(family, title string) *Trace {
	t := &Trace{family: family, title: title, t: nettrace.New(family, title)}

	// The default max events (10) is short for a full SMTP exchange
	// (greeting, EHLO, AUTH, MAIL, RCPT*, DATA).
	t.t.SetMaxEvents(40)
	return t
}

// Printf adds this message to the trace's log.
func (t *Trace) Printf(format string, a ...interface{}) {
	t.t.LazyPrintf(format, a...)
	log.Log(log.Info, 1, "%s %s: %s", t.family, t.title,
		quote(fmt.Sprintf(format, a...)))
}

// Debugf adds this message to the trace's log, with a debugging level.
func (t *Trace) Debugf(format string, a ...interface{}) {
	t.t.LazyPrintf(format, a...)
	log.Log(log.Debug, 1, "%s %s: %s", t.family, t.title,
		quote(fmt.Sprintf(format, a...)))
}

// Error records err against the trace: marks it, logs it, increments the
// exception counter, and keeps a copy for later inspection via Errors().
func (t *Trace) Error(err error) error {
	t.t.SetError()
	t.t.LazyPrintf("error: %v", err)
	log.Log(log.Info, 1, "%s %s: error: %s", t.family, t.title,
		quote(err.Error()))

	t.mu.Lock()
	t.exceptions++
	t.errors = append(t.errors, err)
	t.mu.Unlock()

	return err
}

// Errorf is Error, but builds the error from a format string.
func (t *Trace) Errorf(format string, a ...interface{}) error {
	return t.Error(fmt.Errorf(format, a...))
}

// Errors returns a copy of the errors recorded so far.
func (t *Trace) Errors() []error {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]error, len(t.errors))
	copy(out, t.errors)
	return out
}

// Exceptions returns the count of errors recorded so far.
func (t *Trace) Exceptions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exceptions
}

// Finish the trace. It should not be used after this is called.
func (t *Trace) Finish() {
	t.t.Finish()
}

func quote(s string) string {
	qs := strconv.Quote(s)
	return qs[1 : len(qs)-1]
}
