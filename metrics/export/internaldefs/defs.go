package internaldefs

import (
	fundauth "github.com/campuskit/fundauth"
)

// CounterDef binds a client counter to its exported metric name.
//
// CounterDef instances are configured here once and treated as immutable.
type CounterDef struct {
	ID   fundauth.MetricID
	Name string
	Help string
}

// HistogramDef binds a client histogram to its exported metric name.
//
// HistogramDef instances are configured here once and treated as immutable.
type HistogramDef struct {
	ID   fundauth.MetricID
	Name string
	Help string
}

// CounterDefs enumerates every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: fundauth.MetricLoginSuccess, Name: "fundauth_login_success_total", Help: "Successful login attempts."},
	{ID: fundauth.MetricLoginFailure, Name: "fundauth_login_failure_total", Help: "Failed login attempts."},
	{ID: fundauth.MetricRenewalIssued, Name: "fundauth_renewal_issued_total", Help: "Token renewal calls issued to the server."},
	{ID: fundauth.MetricRenewalJoined, Name: "fundauth_renewal_joined_total", Help: "Requests that shared an in-flight renewal."},
	{ID: fundauth.MetricRenewalSuccess, Name: "fundauth_renewal_success_total", Help: "Renewals that produced a fresh token."},
	{ID: fundauth.MetricRenewalFailure, Name: "fundauth_renewal_failure_total", Help: "Renewals that terminated the session."},
	{ID: fundauth.MetricRequestReplayed, Name: "fundauth_request_replayed_total", Help: "Requests replayed after a renewal."},
	{ID: fundauth.MetricSessionTerminated, Name: "fundauth_session_terminated_total", Help: "Terminal session events, any reason."},
	{ID: fundauth.MetricUserDeleted, Name: "fundauth_user_deleted_total", Help: "Terminations caused by a deleted account."},
	{ID: fundauth.MetricIdleTimeout, Name: "fundauth_idle_timeout_total", Help: "Idle-monitor expirations."},
	{ID: fundauth.MetricLogout, Name: "fundauth_logout_total", Help: "Caller-initiated logouts."},
	{ID: fundauth.MetricPasswordChangeSuccess, Name: "fundauth_password_change_success_total", Help: "Successful password rotations."},
	{ID: fundauth.MetricPasswordChangeFailure, Name: "fundauth_password_change_failure_total", Help: "Failed password rotations."},
}

// HistogramDefs enumerates every exported histogram in a stable order.
var HistogramDefs = []HistogramDef{
	{ID: fundauth.MetricRequestLatency, Name: "fundauth_request_latency_seconds", Help: "Request round-trip latency histogram."},
}

// HistogramBounds holds the upper bound of each bucket in Prometheus
// exposition form.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix holds the same bounds in OTel-safe instrument-name
// form.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed bucket
// count used by every exporter.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus and OTel gauges expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
