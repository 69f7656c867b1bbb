package session

import "time"

// IsWithinThresholdPeriod checks if the given time is within the threshold
func IsWithinThresholdPeriod(t time.Time, pattern string) (bool, error) {
	duration, err := time.ParseDuration(pattern)
	if err != nil {
		return false, err
	}

	threshold := time.Now().Add(-duration)
	if t.After(threshold) {
		return true, nil
	}

	return false, nil
}

// IsOutsideThresholdPeriod is the negation of IsWithinThresholdPeriod
func IsOutsideThresholdPeriod(t time.Time, pattern string) (bool, error) {
	valid, err := IsWithinThresholdPeriod(t, pattern)
	if err != nil {
		return false, err
	}

	return !valid, nil
}

// CodeExpired reports whether a one-time code's deadline has passed.
func CodeExpired(c *VerificationCode, now time.Time) bool {
	if c == nil {
		return true
	}
	return !now.Before(c.ExpiresAt)
}

// WithinResendWindow reports whether a code was issued recently enough that
// a new dispatch for the same email and purpose should be throttled.
func WithinResendWindow(c *VerificationCode, now time.Time, window time.Duration) bool {
	if c == nil || c.CreatedAt == nil {
		return false
	}
	return now.Sub(*c.CreatedAt) < window
}
