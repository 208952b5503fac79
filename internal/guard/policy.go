package guard

import (
	"time"

	"sptm.org/internal/auth"
)

// Policy holds the rate-limit and lockout tuning for one principal kind. The
// window and the block are independent durations; a block can outlast the
// window that produced it.
type Policy struct {
	RateMaxAttempts  int
	RateWindow       time.Duration
	RateBlock        time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration
	// FailureResetWindow: failures older than this do not count toward the
	// lockout threshold.
	FailureResetWindow time.Duration
}

// Higher-privilege kinds get more attempts but longer blocks; organizations
// get the fewest attempts and the longest block; end users the most lenient
// settings.
var policies = map[auth.Kind]Policy{
	auth.KindSuperAdmin: {
		RateMaxAttempts:    10,
		RateWindow:         15 * time.Minute,
		RateBlock:          30 * time.Minute,
		LockoutThreshold:   5,
		LockoutDuration:    30 * time.Minute,
		FailureResetWindow: 15 * time.Minute,
	},
	auth.KindAdmin: {
		RateMaxAttempts:    10,
		RateWindow:         15 * time.Minute,
		RateBlock:          30 * time.Minute,
		LockoutThreshold:   5,
		LockoutDuration:    30 * time.Minute,
		FailureResetWindow: 15 * time.Minute,
	},
	auth.KindOrganization: {
		RateMaxAttempts:    3,
		RateWindow:         15 * time.Minute,
		RateBlock:          60 * time.Minute,
		LockoutThreshold:   3,
		LockoutDuration:    60 * time.Minute,
		FailureResetWindow: 30 * time.Minute,
	},
	auth.KindUser: {
		RateMaxAttempts:    5,
		RateWindow:         15 * time.Minute,
		RateBlock:          15 * time.Minute,
		LockoutThreshold:   5,
		LockoutDuration:    15 * time.Minute,
		FailureResetWindow: 10 * time.Minute,
	},
}

// PolicyFor returns the tuning for a kind. Unknown kinds fall back to the
// end-user policy, the strict-enough default.
func PolicyFor(kind auth.Kind) Policy {
	if p, ok := policies[kind]; ok {
		return p
	}
	return policies[auth.KindUser]
}
