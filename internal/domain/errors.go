// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists indicates a create collided with an existing id.
var ErrAlreadyExists = errors.New("already exists")

// ErrUnavailable indicates the AGV cannot accept work right now
// (wrong status, battery too low, or already carrying a task).
var ErrUnavailable = errors.New("agv unavailable")

// ErrUnreachable indicates the AGV's battery cannot cover the trip
// plus the safety margin.
var ErrUnreachable = errors.New("destination unreachable on current battery")
