// Package channel owns the session event channel: one logical, resumable
// connection to a session's event endpoint, backed by any number of physical
// websocket connections over its lifetime.
//
// Ownership boundary:
// - connect, keepalive, reconnect with backoff, resume handshake
// - server sequence filtering before delivery
// - client sequence numbering and ack tracking for outbound events
//
// Delivery guarantee: Handler methods are called from a single goroutine,
// never concurrently, in the order events are admitted. After Disconnect the
// loop stops dispatching; a call already running is allowed to finish.
//
// State machine:
// - Disconnected -> Connecting -> Open -> (Closing | Reconnecting)
// - Reconnecting -> Connecting when the single pending reconnect timer fires
// - Closing -> Disconnected is terminal
package channel
