package prefork

import (
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
)

func setenv(marker, fds string, names ...string) {
	os.Setenv(EnvMarker, marker)
	os.Setenv(EnvFDs, fds)
	os.Setenv(EnvNames, strings.Join(names, ":"))
}

func clearenv() {
	os.Unsetenv(EnvMarker)
	os.Unsetenv(EnvFDs)
	os.Unsetenv(EnvNames)
}

func TestNotAWorker(t *testing.T) {
	clearenv()
	if IsWorker() {
		t.Errorf("IsWorker() = true with no environment set")
	}
	ls, err := InheritedListeners()
	if ls != nil || err != nil {
		t.Errorf("InheritedListeners() = %v, %v; want nil, nil", ls, err)
	}
}

func TestBadEnvironment(t *testing.T) {
	l := newListener(t)
	defer l.Close()
	firstFD = listenerFd(t, l)

	cases := []struct {
		fds   string
		names []string
	}{
		{"a", []string{"name"}},              // Invalid fd count.
		{"1", []string{"name1", "name2"}},    // Too many names.
		{"1", []string{}},                    // Not enough names.
	}
	for _, c := range cases {
		setenv("1", c.fds, c.names...)
		if _, err := InheritedListeners(); err == nil {
			t.Errorf("FDs=%q Names=%q: expected error, got none", c.fds, c.names)
		}
	}
	clearenv()
}

func TestNoFDs(t *testing.T) {
	setenv("1", "0")
	ls, err := InheritedListeners()
	if err != nil || len(ls) != 0 {
		t.Errorf("InheritedListeners() = %v, %v; want empty, nil", ls, err)
	}
	clearenv()
}

func newListener(t *testing.T) *net.TCPListener {
	t.Helper()
	l, err := net.ListenTCP("tcp", &net.TCPAddr{Port: 0})
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	return l
}

func listenerFd(t *testing.T, l *net.TCPListener) int {
	t.Helper()
	f, err := l.File()
	if err != nil {
		t.Fatalf("listener File(): %v", err)
	}
	return int(f.Fd())
}

func sameAddr(a, b net.Addr) bool {
	return a.Network() == b.Network() && a.String() == b.String()
}

func TestOneSocket(t *testing.T) {
	l := newListener(t)
	defer l.Close()
	firstFD = listenerFd(t, l)

	setenv("1", "1", "smtp")

	ls, err := InheritedListeners()
	if err != nil || len(ls) != 1 {
		t.Fatalf("InheritedListeners() = %v, %v", ls, err)
	}
	if ls[0].Name != "smtp" {
		t.Errorf("Name = %q, want %q", ls[0].Name, "smtp")
	}
	if !sameAddr(ls[0].Listener.Addr(), l.Addr()) {
		t.Errorf("Addr mismatch: got %v, want %v", ls[0].Listener.Addr(), l.Addr())
	}

	if os.Getenv(EnvMarker) != "" || os.Getenv(EnvFDs) != "" {
		t.Errorf("environment was not cleared after InheritedListeners")
	}
}

func TestManySockets(t *testing.T) {
	// Find two listeners with contiguous FDs, as the real inheritance
	// scheme requires them to be laid out from firstFD consecutively.
	var l0, l1 *net.TCPListener
	f0, f1 := -1, -3
	for f0+1 != f1 {
		l0 = newListener(t)
		l1 = newListener(t)
		f0 = listenerFd(t, l0)
		f1 = listenerFd(t, l1)
	}
	defer l0.Close()
	defer l1.Close()

	firstFD = f0
	setenv("1", "2", "submission", "submission-tls")

	ls, err := InheritedListeners()
	if err != nil || len(ls) != 2 {
		t.Fatalf("InheritedListeners() = %v, %v", ls, err)
	}
	if ls[0].Name != "submission" || ls[1].Name != "submission-tls" {
		t.Errorf("names = %q, %q", ls[0].Name, ls[1].Name)
	}
	if !sameAddr(ls[0].Listener.Addr(), l0.Addr()) {
		t.Errorf("listener 0 addr mismatch")
	}
	if !sameAddr(ls[1].Listener.Addr(), l1.Addr()) {
		t.Errorf("listener 1 addr mismatch")
	}
}

func TestSpawnRejectsSmallCount(t *testing.T) {
	for _, n := range []int{0, 1} {
		if _, err := Spawn(n, nil); err == nil {
			t.Errorf("Spawn(%d, nil) succeeded, want error", n)
		}
	}
}

func TestFDCountParses(t *testing.T) {
	// Sanity check that a decimal FD count, as Spawn writes it with
	// strconv.Itoa, parses back with strconv.Atoi the way
	// InheritedListeners reads it.
	n, err := strconv.Atoi("3")
	if err != nil || n != 3 {
		t.Fatalf("unexpected strconv result: %d, %v", n, err)
	}
}
