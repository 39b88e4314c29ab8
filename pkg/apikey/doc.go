// Package apikey mints and verifies the long-lived API credentials that
// stand in for an interactive login.
//
// A key reads sak_<checksum>_<body>: a 96 character random body drawn from
// a base58 alphabet, preceded by a 7 character checksum derived from the
// body. The checksum lets IsWellFormed reject arbitrary bearer tokens
// offline, before any storage lookup. Only a salted sha3-256 hash of the
// key is ever persisted; the plaintext is returned exactly once, at
// creation.
//
// Verification looks up stored rows by the key's prefix (the type and
// checksum segments), recomputes the salted hash per row and accepts only a
// unique match. Two rows matching one hash is a data integrity fault and is
// surfaced as such.
package apikey
