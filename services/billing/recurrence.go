package billing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"shortstacks/models"
)

// DefaultOccurrences is the number of future occurrences generated when the caller passes 0.
const DefaultOccurrences = 12

// ErrInvalidFrequency is returned for frequency values outside the known set.
var ErrInvalidFrequency = errors.New("invalid bill frequency")

// ParseFrequency validates a frequency coming from the API.
func ParseFrequency(s string) (models.Frequency, error) {
	f := models.Frequency(strings.ToUpper(strings.TrimSpace(s)))
	switch f {
	case models.FrequencyOnce, models.FrequencyWeekly, models.FrequencyBiweekly,
		models.FrequencyMonthly, models.FrequencyQuarterly, models.FrequencyYearly:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
}

// GenerateRecurringDates returns dueDate followed by up to count later occurrences.
// ONCE always yields a single date. Every occurrence is computed from the anchor,
// and month based cadences clamp to the last day of a shorter month.
func GenerateRecurringDates(dueDate time.Time, freq models.Frequency, count int) ([]time.Time, error) {
	if count <= 0 {
		count = DefaultOccurrences
	}
	if freq == models.FrequencyOnce {
		return []time.Time{dueDate}, nil
	}
	if _, err := ParseFrequency(string(freq)); err != nil {
		return nil, err
	}

	dates := make([]time.Time, 0, count+1)
	dates = append(dates, dueDate)
	for i := 1; i <= count; i++ {
		next, err := Occurrence(dueDate, freq, i)
		if err != nil {
			return nil, err
		}
		dates = append(dates, next)
	}
	return dates, nil
}

// Occurrence returns the i-th occurrence after anchor (i=0 is the anchor itself).
func Occurrence(anchor time.Time, freq models.Frequency, i int) (time.Time, error) {
	switch freq {
	case models.FrequencyOnce:
		if i == 0 {
			return anchor, nil
		}
		return time.Time{}, fmt.Errorf("%w: ONCE has a single occurrence", ErrInvalidFrequency)
	case models.FrequencyWeekly:
		return anchor.AddDate(0, 0, 7*i), nil
	case models.FrequencyBiweekly:
		return anchor.AddDate(0, 0, 14*i), nil
	case models.FrequencyMonthly:
		return addMonthsClamped(anchor, i), nil
	case models.FrequencyQuarterly:
		return addMonthsClamped(anchor, 3*i), nil
	case models.FrequencyYearly:
		return addMonthsClamped(anchor, 12*i), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFrequency, freq)
}

// addMonthsClamped moves t by n calendar months keeping the day of month,
// or the last day of the target month when it is shorter.
func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
