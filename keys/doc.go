// Package keys handles secret-key credentials for event signing.
//
// Normalize is the single entry point for operator-supplied keys: it accepts
// 64-character hex or a bech32 "nsec" string and reports absence rather than
// an error for anything else. Callers decide whether absence is fatal.
//
// KeyStore is a small filesystem store for named pairing keys, so a key
// generated by `pwapub connect --save` can be reused by a later publish.
package keys
