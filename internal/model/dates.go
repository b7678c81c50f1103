package model

import (
	"fmt"
	"time"
)

// DateLayout задаёт формат календарной даты в API и конфигурации.
const DateLayout = "2006-01-02"

// Day отбрасывает время суток и возвращает полночь UTC той же календарной даты.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today возвращает текущую календарную дату.
func Today(now func() time.Time) time.Time {
	if now == nil {
		now = time.Now
	}
	return Day(now())
}

// ParseDate разбирает дату формата YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// DaysBetween возвращает количество полных суток между календарными датами from и to.
func DaysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}
