// Package pairing establishes a remote-signing session.
//
// A pairing string names the remote signer in one of three shapes, checked in
// this order:
//
//  1. contains "@": a directory identity (name@domain) resolved to a public
//     key and relay hints;
//  2. starts with "bunker://": a URI whose host (or first path segment) is
//     the remote public key and whose "relay" query parameters are the RPC
//     relays;
//  3. anything else: an opaque token, either "<pubkey>[#secret]" or a bare
//     secret, in which case the remote key is learned from the first RPC
//     response carrying the secret.
//
// Open drives the session Init → ResolvingIdentity → AwaitingRemoteReady →
// Ready, or to Failed with an errs.Kind of IdentityNotFound, MissingRelays,
// ConnectionFailed, or HandshakeTimeout. A failed session is never retried.
//
// RPC messages are kind-24133 events whose content is a NIP-04 encrypted JSON
// request or response. An "auth_url" response is an out-of-band
// authorization challenge: it is reported through Options.OnAuthURL and the
// session keeps waiting.
package pairing
