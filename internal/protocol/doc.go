// Package protocol owns the netvend command and result contract.
//
// Ownership boundary:
// - Command variants and the Batch that carries them
// - Result variants, the CommandError taxonomy and the ResultBatch
// - target identifiers ("p:<id>", "f:<id>", "a:<address>")
//
// A success Result does not name its command on the wire. Decoding a
// ResultBatch therefore always takes the originating Batch.
package protocol
