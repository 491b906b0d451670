package smtpd

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"
)

// testHarness wires a Conn directly to one end of a net.Pipe, bypassing
// Server, so the dispatcher's sequencing and CRLF/pipelining policies can
// be exercised without a real TCP listener.
type testHarness struct {
	t      *testing.T
	client net.Conn
	reader *bufio.Reader
	done   chan struct{}
}

func newHarness(t *testing.T, mutate func(*Config)) *testHarness {
	t.Helper()
	client, server := net.Pipe()

	cfg := DefaultConfig()
	cfg.Callbacks = &recordingCallbacks{}
	if mutate != nil {
		mutate(&cfg)
	}

	tr, err := newTLSTransport("", "", []string{"localhost"})
	if err != nil {
		t.Fatalf("newTLSTransport: %v", err)
	}
	c := newConn(&cfg, server, tr)

	h := &testHarness{t: t, client: client, reader: bufio.NewReader(client), done: make(chan struct{})}
	go func() {
		c.serve()
		close(h.done)
	}()
	return h
}

func (h *testHarness) send(line string) {
	h.t.Helper()
	if _, err := h.client.Write([]byte(line + "\r\n")); err != nil {
		h.t.Fatalf("write %q: %v", line, err)
	}
}

func (h *testHarness) readLine() string {
	h.t.Helper()
	h.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := h.reader.ReadString('\n')
	if err != nil {
		h.t.Fatalf("readLine: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

func (h *testHarness) readCode() string {
	l := h.readLine()
	if len(l) < 3 {
		h.t.Fatalf("reply line too short: %q", l)
	}
	return l[:3]
}

func TestDispatchGreeting(t *testing.T) {
	h := newHarness(t, nil)
	defer h.client.Close()

	if code := h.readCode(); code != "220" {
		t.Errorf("greeting code = %q, want 220", code)
	}
}

func TestDispatchSequencingBeforeHelo(t *testing.T) {
	h := newHarness(t, nil)
	defer h.client.Close()
	h.readLine() // greeting

	h.send("MAIL FROM:<a@x>")
	if code := h.readCode(); code != "503" {
		t.Errorf("MAIL before HELO = %q, want 503", code)
	}
}

func TestDispatchEhloAdvertisesExtensions(t *testing.T) {
	h := newHarness(t, nil)
	defer h.client.Close()
	h.readLine() // greeting

	h.send("EHLO client")
	var lines []string
	for {
		l := h.readLine()
		lines = append(lines, l)
		if len(l) >= 4 && l[3] == ' ' {
			break
		}
	}
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"STARTTLS", "PIPELINING", "AUTH LOGIN PLAIN"} {
		if !strings.Contains(joined, want) {
			t.Errorf("EHLO response missing %q: %q", want, joined)
		}
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	h := newHarness(t, nil)
	defer h.client.Close()
	h.readLine()
	h.send("EHLO client")
	for {
		l := h.readLine()
		if len(l) >= 4 && l[3] == ' ' {
			break
		}
	}

	h.send("FOOBAR")
	if code := h.readCode(); code != "500" {
		t.Errorf("unknown command = %q, want 500", code)
	}

	h.send("RSET")
	if code := h.readCode(); code != "250" {
		t.Errorf("RSET after unknown command = %q, want 250 (session still alive)", code)
	}
}

func TestDispatchPipeliningDisabledRejectsSecondCommand(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.PipeliningExtension = false })
	defer h.client.Close()
	h.readLine()
	h.send("EHLO client")
	for {
		l := h.readLine()
		if len(l) >= 4 && l[3] == ' ' {
			break
		}
	}

	if _, err := h.client.Write([]byte("RSET\r\nNOOP\r\n")); err != nil {
		h.t.Fatalf("write: %v", err)
	}
	time.Sleep(150 * time.Millisecond) // let both lines land in the framer's buffer

	if code := h.readCode(); code != "250" {
		t.Errorf("first of two pipelined commands (RSET) with pipelining off = %q, want 250", code)
	}
	if code := h.readCode(); code != "500" {
		t.Errorf("second of two pipelined commands (NOOP) with pipelining off = %q, want 500", code)
	}
}

func TestDispatchTLSRequiredRejectsAuthAndRsetBeforeStartTLS(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.EncryptMode = TLSRequired })
	defer h.client.Close()
	h.readLine()
	h.send("EHLO client")
	for {
		l := h.readLine()
		if len(l) >= 4 && l[3] == ' ' {
			break
		}
	}

	h.send("AUTH PLAIN")
	if code := h.readCode(); code != "530" {
		t.Errorf("AUTH before STARTTLS under TLS_REQUIRED = %q, want 530", code)
	}

	h.send("RSET")
	if code := h.readCode(); code != "530" {
		t.Errorf("RSET before STARTTLS under TLS_REQUIRED = %q, want 530", code)
	}
}

func TestDispatchHttpSniffingCloses(t *testing.T) {
	h := newHarness(t, nil)
	defer h.client.Close()
	h.readLine()

	h.send("GET / HTTP/1.1")
	if code := h.readCode(); code != "502" {
		t.Errorf("GET as first command = %q, want 502", code)
	}

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Errorf("connection was not closed after HTTP sniffing guard fired")
	}
}
