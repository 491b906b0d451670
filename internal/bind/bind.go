// Package bind expands a host/port configuration into concrete
// "host:port" strings ready for net.Listen.
//
// There is no third-party library in play here: enumerating local
// interfaces and resolving hostnames is inherently a net/net.Interfaces
// concern, and every example this module draws on reaches for net.Listen
// directly rather than through a binding library.
package bind

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/nimblemail/submitd/internal/set"
)

// Expand parses comma-separated hosts and ports lists and returns every
// concrete "host:port" binding.
//
// Each host token becomes one or more addresses: "*" expands to every
// local non-multicast, non-link-local address (v4 and v6 alike); a
// literal IP is used as-is; anything else is resolved via DNS to all of
// its addresses. Ports align positionally with hosts — if there are
// fewer port tokens than host tokens, the last port token is reused —
// and a single port token may itself be a colon-separated list (e.g.
// "2525:3535"), expanding to multiple bindings for that host.
func Expand(hosts, ports string) ([]string, error) {
	hostTokens, err := splitNonEmpty(hosts)
	if err != nil {
		return nil, fmt.Errorf("bind: hosts: %w", err)
	}
	portTokens, err := splitNonEmpty(ports)
	if err != nil {
		return nil, fmt.Errorf("bind: ports: %w", err)
	}
	if len(hostTokens) == 0 {
		return nil, fmt.Errorf("bind: no hosts given")
	}
	if len(portTokens) == 0 {
		return nil, fmt.Errorf("bind: no ports given")
	}

	var out []string
	seen := &set.String{}
	for i, h := range hostTokens {
		portTok := portTokens[len(portTokens)-1]
		if i < len(portTokens) {
			portTok = portTokens[i]
		}
		portList, err := splitPorts(portTok)
		if err != nil {
			return nil, fmt.Errorf("bind: port %q: %w", portTok, err)
		}

		addrs, err := expandHost(h)
		if err != nil {
			return nil, fmt.Errorf("bind: host %q: %w", h, err)
		}

		for _, a := range addrs {
			for _, p := range portList {
				// A "*" expansion and an explicit host can resolve to the
				// same address; a listener can only be opened on it once.
				joined := net.JoinHostPort(a, p)
				if seen.Has(joined) {
					continue
				}
				seen.Add(joined)
				out = append(out, joined)
			}
		}
	}
	return out, nil
}

func splitNonEmpty(list string) ([]string, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	var out []string
	for _, tok := range strings.Split(list, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, fmt.Errorf("empty token in %q", list)
		}
		out = append(out, tok)
	}
	return out, nil
}

func splitPorts(tok string) ([]string, error) {
	var out []string
	for _, p := range strings.Split(tok, ":") {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("empty port in %q", tok)
		}
		if _, err := strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("non-numeric port %q", p)
		}
		out = append(out, p)
	}
	return out, nil
}

// expandHost resolves one host token to one or more literal addresses.
func expandHost(h string) ([]string, error) {
	if h == "*" {
		return localAddrs()
	}
	if ip := net.ParseIP(h); ip != nil {
		return []string{h}, nil
	}
	ips, err := net.LookupIP(h)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, ip.String())
	}
	return out, nil
}

// localAddrs lists every non-multicast, non-link-local address bound to
// a local interface, loopback included.
func localAddrs() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipnet.IP
		if ip.IsMulticast() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			continue
		}
		out = append(out, ip.String())
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable local addresses found")
	}
	return out, nil
}
