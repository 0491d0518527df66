// Package parse turns what users type into dates and spot numbers.
package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"parking-spot-backend/internal/apperr"
	"parking-spot-backend/internal/model"
)

var (
	spotRe     = regexp.MustCompile(`^(?:№|#|No\.?)?\s*(\d+)$`)
	dayMonthRe = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})$`)
)

// Date accepts ISO dates, dd.mm.yyyy, dd.mm (this year, or next year when
// the day has already passed) and the words "today" and "tomorrow".
func Date(raw string, today model.Date) (model.Date, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "":
		return model.Date{}, apperr.Validation("date", "is required")
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDays(1), nil
	}

	if d, err := model.ParseDate(s); err == nil {
		return d, nil
	}
	if t, err := time.Parse("02.01.2006", s); err == nil {
		return model.DateOf(t), nil
	}
	if m := dayMonthRe.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year := today.Time(time.UTC).Year()
		d, ok := validDate(year, month, day)
		if ok && d.Before(today) {
			d, ok = validDate(year+1, month, day)
		}
		if ok {
			return d, nil
		}
	}
	return model.Date{}, apperr.Validation("date", "cannot read %q, use YYYY-MM-DD or DD.MM.YYYY", raw)
}

func validDate(year, month, day int) (model.Date, bool) {
	if month < 1 || month > 12 || day < 1 {
		return model.Date{}, false
	}
	d := model.NewDate(year, time.Month(month), day)
	// time.Date normalizes 31.02 into March.
	if d.Time(time.UTC).Day() != day {
		return model.Date{}, false
	}
	return d, true
}

// SpotNumber accepts "12", "№12", "#12" and "No. 12".
func SpotNumber(raw string) (int64, error) {
	m := spotRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, apperr.Validation("spot", "cannot read spot number %q", raw)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, apperr.Validation("spot", "spot number must be positive, got %q", raw)
	}
	return n, nil
}
