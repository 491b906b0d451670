// submitd-serve is a standalone demo host for the smtpd package: it
// accepts mail over SMTP submission and writes each message to a
// maildir-style directory, for manual testing and as a wiring example.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nimblemail/submitd"
	"github.com/nimblemail/submitd/internal/log"
)

var (
	hosts    = flag.String("hosts", "127.0.0.1", "comma-separated hosts/interfaces to bind")
	ports    = flag.String("ports", "2525", "comma-separated ports (aligned positionally with hosts)")
	maildir  = flag.String("maildir", "/tmp/submitd-mail", "directory to drop accepted messages into")
	authMode = flag.String("auth_mode", "optional", "one of forbidden, optional, required")
	tlsMode  = flag.String("tls_mode", "optional", "one of forbidden, optional, required")
	showVer  = flag.Bool("version", false, "show version and exit")
)

var version = "undefined"

func main() {
	flag.Parse()
	log.Init()

	if *showVer {
		fmt.Printf("submitd-serve %s\n", version)
		return
	}

	cfg := submitd.DefaultConfig()
	cfg.Hosts = *hosts
	cfg.Ports = *ports

	var err error
	cfg.AuthMode, err = parseAuthMode(*authMode)
	if err != nil {
		log.Fatalf("bad -auth_mode: %v", err)
	}
	cfg.EncryptMode, err = parseEncryptMode(*tlsMode)
	if err != nil {
		log.Fatalf("bad -tls_mode: %v", err)
	}

	if err := os.MkdirAll(*maildir, 0700); err != nil {
		log.Fatalf("creating maildir %q: %v", *maildir, err)
	}
	cfg.Callbacks = &maildirCallbacks{dir: *maildir}

	srv, err := submitd.New(cfg)
	if err != nil {
		log.Fatalf("building server: %v", err)
	}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("listening: %v", err)
	}

	log.Infof("submitd-serve listening on %s:%s, writing mail to %s", *hosts, *ports, *maildir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Infof("shutting down")
	srv.Stop()
}

func parseAuthMode(s string) (submitd.AuthMode, error) {
	switch s {
	case "forbidden":
		return submitd.AuthForbidden, nil
	case "optional":
		return submitd.AuthOptional, nil
	case "required":
		return submitd.AuthRequired, nil
	}
	return 0, fmt.Errorf("unknown auth mode %q", s)
}

func parseEncryptMode(s string) (submitd.EncryptMode, error) {
	switch s {
	case "forbidden":
		return submitd.TLSForbidden, nil
	case "optional":
		return submitd.TLSOptional, nil
	case "required":
		return submitd.TLSRequired, nil
	}
	return 0, fmt.Errorf("unknown tls mode %q", s)
}

// maildirCallbacks is a minimal Callbacks implementation that accepts
// any AUTH attempt and writes each completed message as one file per
// delivery, named by timestamp and sender.
type maildirCallbacks struct {
	submitd.NoopCallbacks
	dir string
}

func (m *maildirCallbacks) OnAuth(s *submitd.Session, authz, authn, secret string) (string, error) {
	// Demo only: accept anything. A real host verifies against its own
	// user store here.
	return authz, nil
}

func (m *maildirCallbacks) OnDataComplete(s *submitd.Session) error {
	name := fmt.Sprintf("%d-%s.eml", time.Now().UnixNano(), sanitizeFilename(s.Envelope.From))
	path := filepath.Join(m.dir, name)
	return os.WriteFile(path, s.Message.Data, 0600)
}

func (m *maildirCallbacks) OnLoggingEvent(s *submitd.Session, sev, message string, err error) {
	if err != nil {
		log.Errorf("%s: %s: %v", sev, message, err)
	} else {
		log.Infof("%s: %s", sev, message)
	}
}

func sanitizeFilename(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "unknown"
	}
	return string(out)
}
