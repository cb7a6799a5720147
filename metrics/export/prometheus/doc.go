// Package prometheus provides Prometheus collectors for fundauth metrics.
//
// [NewPrometheusExporter] accepts a [fundauth.Client] and exposes an [http.Handler]
// that renders all client counters and histograms in Prometheus text exposition
// format. Counter names are prefixed fundauth_*_total; the single histogram is
// fundauth_request_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate client state.
package prometheus
