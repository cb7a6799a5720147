// Package fundauth keeps a user session against the campus fund-management
// API alive for the lifetime of a client process: it persists the access and
// refresh credential pair, transparently renews the access token on expiry,
// serializes concurrent renewal attempts into a single upstream call, and
// announces terminal session conditions to decoupled consumers.
//
// The package is designed for concurrent client workloads: Client methods and
// the Transport are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// fundauth is the public surface. It exposes [Client], [Builder], [Config],
// [Transport], [Bus], and value types (Event, State, MetricsSnapshot).
// Credential persistence lives in package credential, claim decoding in
// package claims, and wire shapes under internal/ — none of those leak
// transport or storage details into this package's API.
//
// # What this package must NOT do
//
//   - Verify token signatures. The client holds no server key; claims are
//     decoded unverified and a failed decode is treated as no credential.
//   - Retry a request more than once. Renewal bounds amplification to 2x
//     traffic per failing request.
//   - Renew through the renewal path itself. Authentication-surface
//     endpoints bypass the coordinator entirely.
//
// # Concurrency contract
//
// If N requests observe a 401 while no renewal is in flight, exactly one
// renewal call reaches the server; the other N-1 join its result and each
// replays its own request once. The credential store is the only shared
// mutable resource; every store access is a single read or write.
package fundauth
