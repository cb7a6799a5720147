// Package credential provides durable, synchronous persistence for the
// access/refresh credential pair and the expiry policy applied to it.
//
// Stores are pure data layers: reads never trigger a network or renewal
// call, and a read never fails — any storage problem on the read path is
// reported as "absent". The expiry policy treats a credential as expired a
// skew margin before its declared expiry, because comparing wall clocks
// across client and server is unreliable: expiring slightly early is always
// safe, slightly late is not.
//
// A partial state (access present, refresh absent, or a missing expiry) is
// treated as absent by every backend.
package credential
