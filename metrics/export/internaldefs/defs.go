package internaldefs

import (
	"github.com/MrEthical07/credflow"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   credflow.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   credflow.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: credflow.MetricSignInSuccess, Name: "credflow_sign_in_success_total", Help: "Sign-ins that started a session."},
	{ID: credflow.MetricSignInFailure, Name: "credflow_sign_in_failure_total", Help: "Rejected sign-in attempts."},
	{ID: credflow.MetricTwoFactorChallenge, Name: "credflow_two_factor_challenge_total", Help: "Sign-ins that required an emailed two-factor code."},
	{ID: credflow.MetricSignOut, Name: "credflow_sign_out_total", Help: "Sign-outs."},
	{ID: credflow.MetricSignUpPending, Name: "credflow_sign_up_pending_total", Help: "Sign-ups staged for email verification."},
	{ID: credflow.MetricSignUpDuplicate, Name: "credflow_sign_up_duplicate_total", Help: "Sign-ups rejected for an existing email."},
	{ID: credflow.MetricEmailVerificationSuccess, Name: "credflow_email_verification_success_total", Help: "Pending users promoted after verification."},
	{ID: credflow.MetricEmailVerificationFailure, Name: "credflow_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: credflow.MetricPasswordResetRequest, Name: "credflow_password_reset_request_total", Help: "Password reset links sent."},
	{ID: credflow.MetricPasswordResetSuccess, Name: "credflow_password_reset_success_total", Help: "Consumed password reset tokens."},
	{ID: credflow.MetricPasswordResetFailure, Name: "credflow_password_reset_failure_total", Help: "Rejected password reset attempts."},
	{ID: credflow.MetricTwoFactorSuccess, Name: "credflow_two_factor_success_total", Help: "Accepted two-factor codes."},
	{ID: credflow.MetricTwoFactorFailure, Name: "credflow_two_factor_failure_total", Help: "Rejected two-factor codes."},
	{ID: credflow.MetricPasswordChange, Name: "credflow_password_change_total", Help: "Password changes."},
	{ID: credflow.MetricAccountDeleted, Name: "credflow_account_deleted_total", Help: "Deleted accounts."},
	{ID: credflow.MetricOAuthSignIn, Name: "credflow_oauth_sign_in_total", Help: "Completed OAuth callbacks."},
	{ID: credflow.MetricOAuthFailure, Name: "credflow_oauth_failure_total", Help: "Failed OAuth callbacks."},
	{ID: credflow.MetricRateLimitHit, Name: "credflow_rate_limit_hit_total", Help: "Requests denied by a rate-limit window."},
	{ID: credflow.MetricSessionCreated, Name: "credflow_session_created_total", Help: "Created sessions."},
	{ID: credflow.MetricSessionInvalidated, Name: "credflow_session_invalidated_total", Help: "Mass session invalidations."},
	{ID: credflow.MetricUnexpectedError, Name: "credflow_unexpected_error_total", Help: "Infrastructure failures reported as unexpected errors."},
}

var HistogramDefs = []HistogramDef{
	{ID: credflow.MetricFlowLatency, Name: "credflow_flow_latency_seconds", Help: "Credential flow latency."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's latency
// buckets.
var HistogramBounds = []string{
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"+Inf",
}

// HistogramBoundSuffix renders HistogramBounds as metric name suffixes.
var HistogramBoundSuffix = []string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
