// Package server hosts the vending protocol listener and the operator
// admin API.
//
// Ownership boundary:
// - TCP accept loop with one request/response round trip per connection
// - packet framing and deadlines; command semantics live in executor
// - admin HTTP routes for health, metrics, stats and deposits
package server
