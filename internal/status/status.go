// Package status holds the lifecycle of releases and requests. Statuses are
// closed sets of value tags; every write of a status elsewhere in the code goes
// through ReleaseTransition or RequestTransition first.
package status

import (
	"parking-spot-backend/internal/apperr"
)

// ReleaseStatus is the state of a spot release offer.
type ReleaseStatus string

const (
	ReleasePending  ReleaseStatus = "PENDING"
	ReleaseWaiting  ReleaseStatus = "WAITING"
	ReleaseAccepted ReleaseStatus = "ACCEPTED"
	ReleaseCanceled ReleaseStatus = "CANCELED"
	ReleaseNotFound ReleaseStatus = "NOT_FOUND"
)

// RequestStatus is the state of a spot request.
type RequestStatus string

const (
	RequestPending             RequestStatus = "PENDING"
	RequestWaitingConfirmation RequestStatus = "WAITING_CONFIRMATION"
	RequestAccepted            RequestStatus = "ACCEPTED"
	RequestCanceled            RequestStatus = "CANCELED"
	RequestNotFound            RequestStatus = "NOT_FOUND"
)

var releaseTransitions = map[ReleaseStatus][]ReleaseStatus{
	ReleasePending:  {ReleaseWaiting, ReleaseAccepted, ReleaseCanceled, ReleaseNotFound},
	ReleaseWaiting:  {ReleaseAccepted, ReleasePending},
	ReleaseAccepted: {ReleasePending},
}

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:             {RequestWaitingConfirmation, RequestAccepted, RequestCanceled, RequestNotFound},
	RequestWaitingConfirmation: {RequestAccepted, RequestCanceled, RequestPending},
	RequestAccepted:            {RequestCanceled},
}

// Valid reports whether s is one of the known release statuses.
func (s ReleaseStatus) Valid() bool {
	switch s {
	case ReleasePending, ReleaseWaiting, ReleaseAccepted, ReleaseCanceled, ReleaseNotFound:
		return true
	}
	return false
}

// Active reports whether a release in this status still blocks its
// (spot, date) slot.
func (s ReleaseStatus) Active() bool {
	return s.Valid() && s != ReleaseCanceled && s != ReleaseNotFound
}

// CanTransition reports whether the release may move from s to next.
func (s ReleaseStatus) CanTransition(next ReleaseStatus) bool {
	for _, allowed := range releaseTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known request statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestWaitingConfirmation, RequestAccepted, RequestCanceled, RequestNotFound:
		return true
	}
	return false
}

// Active reports whether a request in this status still blocks its
// (user, date) slot.
func (s RequestStatus) Active() bool {
	return s.Valid() && s != RequestCanceled && s != RequestNotFound
}

// CanTransition reports whether the request may move from s to next.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ReleaseTransition validates a release status change. id is only used to
// enrich the returned ConflictError.
func ReleaseTransition(id string, from, to ReleaseStatus) error {
	if !from.Valid() || !to.Valid() {
		return apperr.Validation("status", "unknown release status %q -> %q", from, to)
	}
	if !from.CanTransition(to) {
		return apperr.Conflict("release", id, string(from), "cannot move to "+string(to))
	}
	return nil
}

// RequestTransition validates a request status change.
func RequestTransition(id string, from, to RequestStatus) error {
	if !from.Valid() || !to.Valid() {
		return apperr.Validation("status", "unknown request status %q -> %q", from, to)
	}
	if !from.CanTransition(to) {
		return apperr.Conflict("request", id, string(from), "cannot move to "+string(to))
	}
	return nil
}
