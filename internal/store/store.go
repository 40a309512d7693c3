// Package store holds the sliding-window record store shared by every
// server instance.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable marks failures to reach the backing store. Callers
	// decide how to degrade; the store never turns it into a verdict.
	ErrUnavailable = errors.New("window store unavailable")

	// ErrMissingURL is returned when no store URL is configured.
	ErrMissingURL = errors.New("window store URL is required")
)

// State describes the connection lifecycle of a store client.
type State int32

const (
	// StateDisconnected means the client has never completed a round trip.
	StateDisconnected State = iota
	// StateConnected means the last round trip succeeded.
	StateConnected
	// StateLost means the client was connected and the last round trip failed.
	StateLost
)

var stateStrings = map[State]string{
	StateDisconnected: "disconnected",
	StateConnected:    "connected",
	StateLost:         "lost",
}

func (s State) String() string {
	if v, ok := stateStrings[s]; ok {
		return v
	}
	return "unknown"
}

// AdmitRequest describes one admission attempt against a window key.
type AdmitRequest struct {
	Now    time.Time
	Window time.Duration
	Limit  int64
	// Member is the unique token recorded for the request when admitted.
	Member string
}

// AdmitResult is the outcome of an atomic prune, count and conditional add.
type AdmitResult struct {
	Admitted bool
	// Count is the number of records in the live window before this
	// request was considered.
	Count int64
}

// Record is one admitted request stored under a window key.
type Record struct {
	Member string
	At     time.Time
}

// WindowStore is the contract the rate limiter needs from its backing store.
//
// Admit must prune records with a score at or below Now-Window, count what
// remains, and record Member only when the count is below Limit, all as one
// atomic unit. Implementations refresh the key's expiry to Window on every
// admission so idle identities are reclaimed by the store.
type WindowStore interface {
	Admit(ctx context.Context, key string, req AdmitRequest) (AdmitResult, error)
	Ping(ctx context.Context) error
	State() State
}
