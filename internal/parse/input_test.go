package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"parking-spot-backend/internal/apperr"
	"parking-spot-backend/internal/model"
)

func TestDate(t *testing.T) {
	today := model.NewDate(2025, 12, 30)

	testCases := []struct {
		name      string
		raw       string
		expected  model.Date
		expectErr bool
	}{
		{name: "iso", raw: "2026-01-05", expected: model.NewDate(2026, 1, 5)},
		{name: "dotted", raw: "05.01.2026", expected: model.NewDate(2026, 1, 5)},
		{name: "surrounding spaces", raw: "  2025-12-31 ", expected: model.NewDate(2025, 12, 31)},
		{name: "today", raw: "Today", expected: today},
		{name: "tomorrow", raw: "tomorrow", expected: model.NewDate(2025, 12, 31)},
		{name: "day and month this year", raw: "31.12", expected: model.NewDate(2025, 12, 31)},
		{name: "day and month rolls into next year", raw: "2.1", expected: model.NewDate(2026, 1, 2)},
		{name: "empty", raw: "", expectErr: true},
		{name: "no such day", raw: "31.02", expectErr: true},
		{name: "garbage", raw: "next friday", expectErr: true},
		{name: "american order", raw: "12/31/2025", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Date(tc.raw, today)
			if tc.expectErr {
				assert.True(t, apperr.IsValidation(err), "got %v", err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected.String(), d.String())
		})
	}
}

func TestSpotNumber(t *testing.T) {
	testCases := []struct {
		raw       string
		expected  int64
		expectErr bool
	}{
		{raw: "12", expected: 12},
		{raw: "№12", expected: 12},
		{raw: "№ 7", expected: 7},
		{raw: "#3", expected: 3},
		{raw: "No. 45", expected: 45},
		{raw: " 8 ", expected: 8},
		{raw: "0", expectErr: true},
		{raw: "-4", expectErr: true},
		{raw: "A12", expectErr: true},
		{raw: "", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			n, err := SpotNumber(tc.raw)
			if tc.expectErr {
				assert.True(t, apperr.IsValidation(err), "got %v", err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, n)
		})
	}
}
