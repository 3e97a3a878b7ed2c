// Package session owns client<->server session transport helpers.
//
// Ownership boundary:
// - reconnect policy and backoff
// - server sequence filtering and client sequence numbering
// - pending client event tracking (ack outbox)
// - transport security for the event channel
//
// Everything here is owned by a single channel loop and carries no I/O.
package session
