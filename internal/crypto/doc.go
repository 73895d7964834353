// Package crypto provides AES-256-GCM sealing of journal payloads.
//
// A sealed payload is laid out as
//
//	+--------+----------------+----------+
//	| Nonce  | Encrypted Data | Auth Tag |
//	| 12 B   | Variable       | 16 B     |
//	+--------+----------------+----------+
//
// The journal passes the record header as additional data, so a sealed
// payload cannot be moved under a different transaction header.
//
// Usage:
//
//	key, err := crypto.LoadKeyFromFile("/etc/voron/journal.key")
//	sealed, err := key.Seal(nil, payload, header)
//	payload, err = key.Open(nil, sealed, header)
package crypto
