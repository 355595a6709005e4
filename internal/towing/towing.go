// Package towing holds the request lifecycle: statuses, the allowed
// transitions between them, and the authorization guards applied before
// the store is mutated.
package towing

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusCompleted Status = "completed"
)

// transitions is the full lifecycle. Strictly forward, no skips, no
// backward edges. There is no cancellation or reassignment path.
var transitions = map[Status][]Status{
	StatusPending:   {StatusAssigned},
	StatusAssigned:  {StatusCompleted},
	StatusCompleted: {},
}

func CanTransition(from, to Status) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

var (
	ErrInvalidState = errors.New("transition not permitted from current status")
	ErrUnauthorized = errors.New("actor is not permitted to perform this action")
	ErrNotFound     = errors.New("towing request not found")
)

// ValidationError carries field-level messages for malformed input.
type ValidationError struct {
	Fields map[string][]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %d field(s)", len(e.Fields))
}

func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// Request is the lifecycle-bearing view of a towing request that the
// guards operate on. The storage layer maps rows into and out of it.
type Request struct {
	ID         int64
	CustomerID *int64
	DriverID   *int64
	Status     Status
	UpdatedAt  time.Time
}

// Accept claims a pending request for the acting driver. Only a driver
// may accept, and only while the request is still pending; the losing
// side of a race over the same request gets ErrInvalidState.
func Accept(req *Request, actor Actor, now time.Time) error {
	if !actor.IsDriver() {
		return ErrUnauthorized
	}
	if req.Status != StatusPending {
		return ErrInvalidState
	}
	if !CanTransition(req.Status, StatusAssigned) {
		return ErrInvalidState
	}
	id := actor.ID
	req.DriverID = &id
	req.Status = StatusAssigned
	req.UpdatedAt = now
	return nil
}

// Complete marks an assigned request finished. Ownership subsumes the
// state check: only the driver that accepted may complete, and a request
// without a driver cannot be completed by anyone. The explicit status
// check stays as defense in depth.
func Complete(req *Request, actor Actor, now time.Time) error {
	if !actor.IsDriver() {
		return ErrUnauthorized
	}
	if req.DriverID == nil || *req.DriverID != actor.ID {
		return ErrUnauthorized
	}
	if req.Status != StatusAssigned {
		return ErrInvalidState
	}
	req.Status = StatusCompleted
	req.UpdatedAt = now
	return nil
}
