// Package session owns the client side of one netvend round trip.
//
// Ownership boundary:
// - connect, send one packet, read one response, disconnect
// - connection state and the single in-flight request rule
// - timeout and retry/backoff configuration shared with the server
package session
