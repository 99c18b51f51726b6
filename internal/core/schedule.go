package core

import "time"

// stepper advances a date by one period of a frequency.
type stepper func(Date) Date

// steppers maps each supported frequency to its date arithmetic.
var steppers = map[Frequency]stepper{
	Daily:   func(d Date) Date { return Date{Time: d.AddDate(0, 0, 1)} },
	Weekly:  func(d Date) Date { return Date{Time: d.AddDate(0, 0, 7)} },
	Monthly: func(d Date) Date { return addMonthsClamped(d, 1) },
	Yearly:  func(d Date) Date { return addMonthsClamped(d, 12) },
}

// Advance returns the date one period of f after d.
//
// Monthly and yearly steps clamp the day of month to the length of the
// resulting month: 2024-01-31 monthly is 2024-02-29 and 2024-02-29 yearly
// is 2025-02-28.
func Advance(d Date, f Frequency) (Date, error) {
	if d.IsZero() {
		return Date{}, ErrZeroDate
	}
	step, ok := steppers[f]
	if !ok {
		if f == "" {
			return Date{}, ErrEmptyFrequency
		}
		return Date{}, ErrInvalidFrequency
	}
	return step(d), nil
}

// time.AddDate normalizes overflow (Jan 31 + 1 month is Mar 2), so the
// day is clamped by hand.
func addMonthsClamped(d Date, months int) Date {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return NewDate(first.Year(), int(first.Month()), day)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
