// Package relay manages connections to event relays.
//
// A Pool is owned by the top-level invocation and passed to every component
// that needs the network; there is no package-level pool. Relays are
// registered lazily with Add and dialed on first use. A relay that fails to
// dial stays failed for the life of the Pool: there are no retries.
//
// Per-relay outcomes are independent. Publish reports an Ack per relay and
// never fails as a whole; callers decide what an empty acceptance list means.
package relay
