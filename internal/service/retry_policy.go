package service

import "time"

// RetryPolicy computes exponential backoff for failed recipient jobs:
// delay = min(BaseDelay * 2^attempts, MaxDelay).
type RetryPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	BaseDelay: 5 * time.Minute,
	MaxDelay:  30 * time.Minute,
}

type RetryDecision struct {
	WillRetry   bool
	Delay       time.Duration
	NextRetryAt *time.Time
}

// Backoff returns the delay after the given number of failed attempts.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempts && d < p.MaxDelay; i++ {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Decide evaluates a job whose attempt count (after the failure) is attempts.
func (p RetryPolicy) Decide(attempts, maxRetries int, now time.Time) RetryDecision {
	if attempts >= maxRetries {
		return RetryDecision{}
	}
	delay := p.Backoff(attempts)
	next := now.Add(delay)
	return RetryDecision{WillRetry: true, Delay: delay, NextRetryAt: &next}
}
