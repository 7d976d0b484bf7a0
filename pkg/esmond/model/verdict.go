package model

import "time"

// Verdict is the outcome of an archive attempt as reported to the host. A
// failed Verdict with a Retry asks the host to try again after Retry seconds;
// a failed Verdict without one is permanent.
type Verdict struct {
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
	Retry     *int64 `json:"retry,omitempty"`
}

// Success returns a successful Verdict.
func Success() Verdict {
	return Verdict{Succeeded: true}
}

// Retry returns a failed Verdict asking to retry after wait, rounded up to
// whole seconds.
func Retry(msg string, wait time.Duration) Verdict {
	seconds := int64((wait + time.Second - 1) / time.Second)
	return Verdict{
		Error: msg,
		Retry: &seconds,
	}
}

// Abandon returns a failed Verdict that must not be retried.
func Abandon(msg string) Verdict {
	return Verdict{Error: msg}
}

// Retryable reports whether the host should try again.
func (v Verdict) Retryable() bool {
	return !v.Succeeded && v.Retry != nil
}
