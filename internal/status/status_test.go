package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-spot-backend/internal/apperr"
)

func TestReleaseTransition(t *testing.T) {
	testCases := []struct {
		name    string
		from    ReleaseStatus
		to      ReleaseStatus
		allowed bool
	}{
		{"engine defers for confirmation", ReleasePending, ReleaseWaiting, true},
		{"direct award", ReleasePending, ReleaseAccepted, true},
		{"user confirms", ReleaseWaiting, ReleaseAccepted, true},
		{"timeout returns spot to pool", ReleaseWaiting, ReleasePending, true},
		{"owner revokes before award", ReleasePending, ReleaseCanceled, true},
		{"request-side revoke after award", ReleaseAccepted, ReleasePending, true},
		{"stale sweep", ReleasePending, ReleaseNotFound, true},
		{"cancel accepted release", ReleaseAccepted, ReleaseCanceled, false},
		{"cancel waiting release", ReleaseWaiting, ReleaseCanceled, false},
		{"sweep waiting release", ReleaseWaiting, ReleaseNotFound, false},
		{"revive canceled", ReleaseCanceled, ReleasePending, false},
		{"revive not found", ReleaseNotFound, ReleasePending, false},
		{"self loop", ReleasePending, ReleasePending, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ReleaseTransition("r1", tc.from, tc.to)
			if tc.allowed {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var conflict *apperr.ConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, string(tc.from), conflict.Current)
			assert.Equal(t, "release", conflict.Entity)
		})
	}
}

func TestRequestTransition(t *testing.T) {
	testCases := []struct {
		name    string
		from    RequestStatus
		to      RequestStatus
		allowed bool
	}{
		{"provisional award", RequestPending, RequestWaitingConfirmation, true},
		{"direct award", RequestPending, RequestAccepted, true},
		{"confirmation", RequestWaitingConfirmation, RequestAccepted, true},
		{"timeout cancels request", RequestWaitingConfirmation, RequestCanceled, true},
		{"fallback to pending", RequestWaitingConfirmation, RequestPending, true},
		{"withdrawal", RequestPending, RequestCanceled, true},
		{"give back awarded spot", RequestAccepted, RequestCanceled, true},
		{"stale sweep", RequestPending, RequestNotFound, true},
		{"accepted back to pending", RequestAccepted, RequestPending, false},
		{"accepted back to waiting", RequestAccepted, RequestWaitingConfirmation, false},
		{"canceled is terminal", RequestCanceled, RequestPending, false},
		{"not found is terminal", RequestNotFound, RequestAccepted, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := RequestTransition("q1", tc.from, tc.to)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperr.IsConflict(err), "expected conflict, got %v", err)
			}
		})
	}
}

func TestUnknownStatusIsValidationError(t *testing.T) {
	err := ReleaseTransition("r1", ReleaseStatus("TAKEN"), ReleaseAccepted)
	assert.True(t, apperr.IsValidation(err))

	err = RequestTransition("q1", RequestPending, RequestStatus("ACCEPT"))
	assert.True(t, apperr.IsValidation(err))
}

func TestActive(t *testing.T) {
	assert.True(t, ReleaseWaiting.Active())
	assert.True(t, ReleaseAccepted.Active())
	assert.False(t, ReleaseCanceled.Active())
	assert.False(t, ReleaseNotFound.Active())
	assert.True(t, RequestWaitingConfirmation.Active())
	assert.False(t, RequestCanceled.Active())
	assert.False(t, RequestStatus("").Active())
}
