package l402

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// KeyNamespace is the fixed prefix under which quota ledger entries are
// keyed in the store.
const KeyNamespace = "lsat/proxy/secrets/"

// IdentityDigest computes SHA-256 of an identifier's canonical binary
// encoding. This digest doubles as both the macaroon signing secret and the
// seed for the quota ledger key — the two must be the same 32 bytes, so
// this is the single place that computation happens.
//
// This is deliberately its own named routine rather than a generic "hash
// anything" helper shared with the preimage hash (lntypes.Preimage.Hash) or
// the request-body digest (binder.Digest):
// each hashes a different input shape, so a shared polymorphic helper would
// need a type switch for no reuse benefit.
func IdentityDigest(id *Identifier) ([sha256.Size]byte, error) {
	var buf bytes.Buffer
	if err := EncodeIdentifier(&buf, id); err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(buf.Bytes()), nil
}

// NamespacedHex returns the quota-store key for a given identity digest:
// the fixed namespace prefix followed by the digest's hex encoding.
func NamespacedHex(digest [sha256.Size]byte) string {
	return KeyNamespace + hex.EncodeToString(digest[:])
}

// IdentifierHex hex-encodes an Identifier's binary encoding for use as a
// macaroon's public identifier field.
func IdentifierHex(id *Identifier) (string, error) {
	var buf bytes.Buffer
	if err := EncodeIdentifier(&buf, id); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// IdentifierFromHex reverses IdentifierHex.
func IdentifierFromHex(s string) (*Identifier, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return DecodeIdentifier(bytes.NewReader(raw))
}
