// Package smtpd implements an embeddable SMTP submission server: the
// per-connection protocol engine described by RFC 5321 (HELO/EHLO, MAIL,
// RCPT, DATA, RSET, NOOP, QUIT), the STARTTLS and AUTH (LOGIN/PLAIN)
// extensions, and a connection supervisor that multiplexes many sessions
// under strict concurrency admission control.
//
// It is a submission-side server, not a relay: acceptance, routing,
// recipient verification, DKIM/SPF/DMARC and persistence are left to the
// host program via the Callbacks interface.
package smtpd
