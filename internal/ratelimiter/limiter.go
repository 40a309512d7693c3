// Package ratelimiter decides whether a client may make another request
// within a sliding window.
package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrStoreUnavailable is returned by Check when the window store cannot be
// reached and the limiter is configured to fail closed.
var ErrStoreUnavailable = errors.New("rate limiter store unavailable")

type State uint32

const (
	Deny State = iota
	Allow
)

var stateStrings = map[State]string{
	Allow: "Allow",
	Deny:  "Deny",
}

func (s State) String() string {
	return stateStrings[s]
}

// Verdict is the outcome of one admission check.
type Verdict struct {
	State     State
	Limit     int64
	Remaining int64
	// Degraded is set when the verdict came from the failure policy rather
	// than from the window store.
	Degraded bool
}

func (v *Verdict) Admitted() bool {
	return v.State == Allow
}

// FailurePolicy selects what Check does when the window store is down.
type FailurePolicy uint32

const (
	// FailOpen admits the request and reports zero remaining quota.
	FailOpen FailurePolicy = iota
	// FailClosed returns ErrStoreUnavailable.
	FailClosed
)

var policyStrings = map[FailurePolicy]string{
	FailOpen:   "fail-open",
	FailClosed: "fail-closed",
}

func (p FailurePolicy) String() string {
	if v, ok := policyStrings[p]; ok {
		return v
	}
	return "unknown"
}

// ParseFailurePolicy accepts "fail-open" or "fail-closed".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	for p, name := range policyStrings {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return p, nil
		}
	}
	return FailOpen, fmt.Errorf("unknown failure policy %q", s)
}

// RateLimiter defines the interface for a rate limiter.
type RateLimiter interface {
	Check(ctx context.Context, identity string) (*Verdict, error)
}
