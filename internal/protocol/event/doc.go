// Package event owns the session event wire contract.
//
// Ownership boundary:
// - envelope shape and type tags
// - typed payload variants and the defensive payload decoder
// - client event construction
//
// Consumers must tolerate unknown payload fields and unknown types; the
// decoder never fails on a well-formed JSON object.
package event
