// Package apperr defines the error types shared by the allocation core.
// Callers branch on them with errors.As; the HTTP layer maps each type to a
// status code.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError is returned for malformed input before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// ConflictError is returned when an operation is not allowed in the current
// state of an entity: an invalid status transition, a double booking, or a
// lost race on a compare-and-set update.
type ConflictError struct {
	Entity  string
	ID      string
	Current string
	Reason  string
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("conflict on %s", e.Entity)
	if e.ID != "" {
		msg += " " + e.ID
	}
	if e.Current != "" {
		msg += fmt.Sprintf(" (current state %s)", e.Current)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// NotFoundError is returned when a user, spot, release, request or hold does
// not exist (or is not visible to the acting user).
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// PersistenceError wraps a storage failure. The enclosing transaction has
// been rolled back when a caller sees it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// GatewayError wraps a notification delivery failure. It is logged, never
// propagated into a rollback.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("notification gateway failure during %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Validation builds a ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Conflict builds a ConflictError.
func Conflict(entity, id, current, reason string) error {
	return &ConflictError{Entity: entity, ID: id, Current: current, Reason: reason}
}

// NotFound builds a NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// Persistence wraps err as a PersistenceError unless it already carries one
// of the typed errors of this package.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTyped(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsTyped reports whether err (or anything it wraps) is one of the error
// types defined here.
func IsTyped(err error) bool {
	var (
		v *ValidationError
		c *ConflictError
		n *NotFoundError
		p *PersistenceError
		g *GatewayError
	)
	return errors.As(err, &v) || errors.As(err, &c) || errors.As(err, &n) ||
		errors.As(err, &p) || errors.As(err, &g)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}
