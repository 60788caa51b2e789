package domain

import "time"

// OTPRecord is the pending signup state for one email address.
// It lives only in process memory and is keyed by the normalized email.
type OTPRecord struct {
	OTP       string
	ExpiresAt time.Time
	Verified  bool
}
