// Package calendar builds month grids for the diary's calendar page.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidMonth = errors.New("month must be in 1..12")
	ErrInvalidYear  = errors.New("year must be in 1..9999")
)

// Week holds the day numbers Monday through Sunday; 0 marks a day outside the month.
type Week [7]int

// MonthGrid returns the weeks of the given month, Monday first.
func MonthGrid(year int, month time.Month) ([]Week, error) {
	if err := validate(year, month); err != nil {
		return nil, err
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	daysInMonth := first.AddDate(0, 1, -1).Day()
	// time.Weekday is Sunday=0; shift so Monday=0.
	offset := (int(first.Weekday()) + 6) % 7

	var weeks []Week
	var w Week
	col := offset
	for day := 1; day <= daysInMonth; day++ {
		w[col] = day
		col++
		if col == 7 {
			weeks = append(weeks, w)
			w = Week{}
			col = 0
		}
	}
	if col != 0 {
		weeks = append(weeks, w)
	}
	return weeks, nil
}

func MonthName(month time.Month) (string, error) {
	if month < time.January || month > time.December {
		return "", fmt.Errorf("%w: got %d", ErrInvalidMonth, month)
	}
	return month.String(), nil
}

func validate(year int, month time.Month) error {
	if year < 1 || year > 9999 {
		return fmt.Errorf("%w: got %d", ErrInvalidYear, year)
	}
	if month < time.January || month > time.December {
		return fmt.Errorf("%w: got %d", ErrInvalidMonth, month)
	}
	return nil
}
