package core

import (
	"errors"
	"testing"
)

func TestAdvance(t *testing.T) {
	cases := []struct {
		name string
		from Date
		freq Frequency
		want Date
	}{
		{"daily", NewDate(2024, 1, 15), Daily, NewDate(2024, 1, 16)},
		{"daily year end", NewDate(2024, 12, 31), Daily, NewDate(2025, 1, 1)},
		{"daily leap day", NewDate(2024, 2, 28), Daily, NewDate(2024, 2, 29)},
		{"weekly", NewDate(2024, 1, 15), Weekly, NewDate(2024, 1, 22)},
		{"weekly month rollover", NewDate(2024, 2, 26), Weekly, NewDate(2024, 3, 4)},
		{"monthly", NewDate(2024, 1, 15), Monthly, NewDate(2024, 2, 15)},
		{"monthly leap clamp", NewDate(2024, 1, 31), Monthly, NewDate(2024, 2, 29)},
		{"monthly non-leap clamp", NewDate(2023, 1, 31), Monthly, NewDate(2023, 2, 28)},
		{"monthly 31 to 30", NewDate(2024, 3, 31), Monthly, NewDate(2024, 4, 30)},
		{"monthly december", NewDate(2024, 12, 31), Monthly, NewDate(2025, 1, 31)},
		{"yearly", NewDate(2024, 1, 15), Yearly, NewDate(2025, 1, 15)},
		{"yearly leap day", NewDate(2024, 2, 29), Yearly, NewDate(2025, 2, 28)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Advance(tc.from, tc.freq)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("Advance(%s, %s) = %s, want %s", tc.from, tc.freq, got, tc.want)
			}
		})
	}
}

func TestAdvanceIsMonotonic(t *testing.T) {
	d := NewDate(2024, 1, 31)
	for _, f := range []Frequency{Daily, Weekly, Monthly, Yearly} {
		cur := d
		for i := 0; i < 30; i++ {
			next, err := Advance(cur, f)
			if err != nil {
				t.Fatalf("%s: %v", f, err)
			}
			if !next.After(cur) {
				t.Fatalf("%s: %s is not after %s", f, next, cur)
			}
			cur = next
		}
	}
}

func TestAdvanceErrors(t *testing.T) {
	if _, err := Advance(NewDate(2024, 1, 1), "fortnightly"); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
	if _, err := Advance(NewDate(2024, 1, 1), ""); !errors.Is(err, ErrEmptyFrequency) {
		t.Fatalf("expected ErrEmptyFrequency, got %v", err)
	}
	if _, err := Advance(Date{}, Daily); !errors.Is(err, ErrZeroDate) {
		t.Fatalf("expected ErrZeroDate, got %v", err)
	}
}
