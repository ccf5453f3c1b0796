// Package identity covers agent keys, addresses and batch signatures.
//
// Agents sign with Ed25519. The public key travels as a fixed-size PKIX
// DER blob and the address is Base58Check(version || RIPEMD160(DER)).
package identity
