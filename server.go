package smtpd

import (
	"net"
	"sync"
	"time"

	"github.com/nimblemail/submitd/internal/bind"
	"github.com/nimblemail/submitd/internal/log"
	"github.com/nimblemail/submitd/internal/prefork"
)

// Server owns a set of listeners, accepts connections on each, and
// admits sessions under a max_connections/max_processings backpressure
// policy. It optionally pre-forks worker processes instead of accepting
// itself.
type Server struct {
	cfg *Config
	tls *tlsTransport

	mu           sync.Mutex
	cond         *sync.Cond
	connections  map[*Conn]struct{}
	processings  map[*Conn]struct{}
	shuttingDown bool

	listeners []net.Listener
	master    *prefork.Master
}

// New validates cfg and builds a Server ready for ListenAndServe. It does
// not bind any sockets yet.
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hosts, err := splitHostsForCert(cfg.Hosts)
	if err != nil {
		return nil, err
	}
	tr, err := newTLSTransport(cfg.TLSCertFile, cfg.TLSKeyFile, hosts)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:         &cfg,
		tls:         tr,
		connections: map[*Conn]struct{}{},
		processings: map[*Conn]struct{}{},
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

func splitHostsForCert(hosts string) ([]string, error) {
	addrs, err := bind.Expand(hosts, "0")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		h, _, err := net.SplitHostPort(a)
		if err != nil {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// ListenAndServe binds every address named by cfg.Hosts/cfg.Ports and
// either spawns pre-fork workers (if configured; the master then accepts
// nothing itself) or starts one accept goroutine per listener. It does
// not block: it returns once that is done, and Stop ends the service.
func (s *Server) ListenAndServe() error {
	addrs, err := bind.Expand(s.cfg.Hosts, s.cfg.Ports)
	if err != nil {
		return err
	}

	var listeners []prefork.Named
	if prefork.IsWorker() {
		listeners, err = prefork.InheritedListeners()
		if err != nil {
			return err
		}
	} else {
		for _, a := range addrs {
			l, err := net.Listen("tcp", a)
			if err != nil {
				return err
			}
			// The name travels to pre-fork workers in a ':'-separated
			// list, so it must not be the address itself.
			listeners = append(listeners, prefork.Named{Name: "smtp", Listener: l})
		}

		if s.cfg.PreFork >= 2 {
			s.master, err = prefork.Spawn(s.cfg.PreFork, listeners)
			if err != nil {
				return err
			}
			// The master itself does not accept; it just supervises.
			return nil
		}
	}

	for _, nl := range listeners {
		log.Infof("smtpd: listening on %s", nl.Listener.Addr())
		s.listeners = append(s.listeners, nl.Listener)
		go s.acceptLoop(nl.Listener)
	}

	return nil
}

func (s *Server) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			down := s.shuttingDown
			s.mu.Unlock()
			if down {
				return
			}
			log.Errorf("smtpd: accept error on %s: %v", l.Addr(), err)
			return
		}
		go s.handle(conn)
	}
}

// handle runs one connection through admission control and the session
// loop.
func (s *Server) handle(nc net.Conn) {
	c := newConn(s.cfg, nc, s.tls)

	s.mu.Lock()
	if s.cfg.MaxConnections > 0 && len(s.connections) >= s.cfg.MaxConnections {
		s.mu.Unlock()
		io421(nc)
		nc.Close()
		return
	}
	s.connections[c] = struct{}{}
	connectionsGauge.Set(float64(len(s.connections)))
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.connections, c)
		delete(s.processings, c)
		connectionsGauge.Set(float64(len(s.connections)))
		processingsGauge.Set(float64(len(s.processings)))
		s.cond.Broadcast()
		s.mu.Unlock()
		nc.Close()
	}()

	c.session.Server.LocalHost = s.localHostname(nc)

	s.mu.Lock()
	for !s.shuttingDown && len(s.processings) >= s.cfg.MaxProcessings {
		s.cond.Wait()
	}
	if s.shuttingDown {
		s.mu.Unlock()
		return
	}
	s.processings[c] = struct{}{}
	processingsGauge.Set(float64(len(s.processings)))
	s.mu.Unlock()

	c.serve()
}

func (s *Server) localHostname(nc net.Conn) string {
	if local, ok := nc.LocalAddr().(*net.TCPAddr); ok {
		return local.IP.String()
	}
	return "localhost"
}

func io421(nc net.Conn) {
	nc.Write([]byte("421 4.3.2 too many connections, try again later\r\n"))
}

// Connections returns the number of currently held-open sessions.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// Processings returns the number of sessions currently admitted to
// process commands.
func (s *Server) Processings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processings)
}

// Workers returns the number of pre-forked worker processes, 0 if
// pre-forking is not in use.
func (s *Server) Workers() int {
	if s.master == nil {
		return 0
	}
	return s.master.Workers()
}

// Stop runs an orderly shutdown: stop accepting by closing the listeners,
// optionally wait a grace period for connections to drain, optionally
// (Graceful) wait until every session has ended, then release any
// still-blocked admission waiters, which close their connections without
// being served. Sessions already admitted are not closed by Stop; they
// run until their clients end them.
func (s *Server) Stop() {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()

	for _, l := range s.listeners {
		l.Close()
	}

	if s.cfg.WaitSecondsBeforeClose > 0 {
		deadline := time.Now().Add(time.Duration(s.cfg.WaitSecondsBeforeClose) * time.Second)
		for time.Now().Before(deadline) {
			if s.Connections() == 0 {
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
	}

	if s.cfg.Graceful {
		s.mu.Lock()
		for len(s.connections) > 0 {
			s.cond.Wait()
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.master != nil {
		s.master.Stop()
	}
}
