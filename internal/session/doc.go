// Package session is the multi-session lifecycle core: a registry of
// live WhatsApp sessions, the state machine that drives each one from
// connect through QR pairing to ready, the per-session status poll
// loop, broadcast fan-out across all subscribed recipients, and the
// inbound command router for messages arriving on the sessions.
//
// The package owns no transport details: it talks to WhatsApp through
// the wadriver boundary and to operators through a Notifier.
package session
