package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCredential is matched by every [CredentialError].
	ErrCredential = errors.New("credential rejected")
	// ErrInvalidConfig is returned when a [Config] cannot be used.
	ErrInvalidConfig = errors.New("invalid credential config")
)

// CredentialError reports a token exchange the identity provider refused,
// or a response that did not contain a usable token. Retrying with the
// same credential cannot succeed.
type CredentialError struct {
	StatusCode  int
	Code        string
	Description string
	Err         error
}

func (e *CredentialError) Error() string {
	msg := ErrCredential.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: %d", msg, e.StatusCode)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s %s", msg, e.Code)
	}
	if e.Description != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Description)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *CredentialError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCredential}
	}
	return []error{ErrCredential, e.Err}
}

// Token is an opaque bearer credential and the time it stops being accepted.
// A zero ExpiresOn means the provider gave no expiry; such a token is never
// valid on its own, the bearer transport stamps it with [DefaultTokenLifetime].
type Token struct {
	Value     string
	ExpiresOn time.Time
}

// Valid reports whether t can still be presented at now, leaving margin
// before its expiry.
func (t Token) Valid(now time.Time, margin time.Duration) bool {
	if t.Value == "" || t.ExpiresOn.IsZero() {
		return false
	}

	return now.Add(margin).Before(t.ExpiresOn)
}
