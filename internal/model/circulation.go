package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultLoanDays задаёт срок выдачи по умолчанию.
	DefaultLoanDays = 14
	// PopularityPerBorrowing задаёт вклад одной выдачи в популярность книги.
	PopularityPerBorrowing = 0.1
)

// FinePerDay задаёт штраф за каждый день просрочки.
var FinePerDay = decimal.NewFromInt(5)

// DefaultDueDate возвращает срок возврата для выдачи без явно указанной даты.
func DefaultDueDate(borrowDate time.Time) time.Time {
	return Day(borrowDate).AddDate(0, 0, DefaultLoanDays)
}

// Overdue возвращает признак просрочки и число дней просрочки на дату asOf.
// Возвращённая книга просроченной не считается.
func (b Borrowing) Overdue(asOf time.Time) (bool, int) {
	if b.Returned {
		return false, 0
	}
	days := DaysBetween(b.DueDate, asOf)
	if days <= 0 {
		return false, 0
	}
	return true, days
}

// LateDays возвращает число дней, на которое end позже due, либо 0.
func LateDays(due, end time.Time) int {
	days := DaysBetween(due, end)
	if days < 0 {
		return 0
	}
	return days
}

// FineFor считает штраф за возврат в дату end при сроке due.
func FineFor(due, end time.Time) decimal.Decimal {
	return FinePerDay.Mul(decimal.NewFromInt(int64(LateDays(due, end))))
}

// Fine считает штраф по выдаче: для возвращённой книги на дату возврата, для открытой на дату asOf.
func (b Borrowing) Fine(asOf time.Time) decimal.Decimal {
	end := asOf
	if b.Returned && b.ReturnDate != nil {
		end = *b.ReturnDate
	}
	return FineFor(b.DueDate, end)
}

// BookStats содержит производные показатели книги, вычисляемые по набору её выдач.
type BookStats struct {
	CurrentBorrowing   *Borrowing
	TotalBorrowings    int
	Popularity         float64
	LastBorrowed       *time.Time
	ActiveBorrowers    int
	TotalBorrowers     int
	CurrentBorrowerIDs []int64
}

// ComputeBookStats вычисляет показатели книги по всем её выдачам.
func ComputeBookStats(borrowings []Borrowing) BookStats {
	var st BookStats
	active := make(map[int64]struct{})
	all := make(map[int64]struct{})

	for i := range borrowings {
		b := borrowings[i]
		st.TotalBorrowings++
		all[b.MemberID] = struct{}{}

		if st.LastBorrowed == nil || b.BorrowDate.After(*st.LastBorrowed) {
			d := b.BorrowDate
			st.LastBorrowed = &d
		}

		if b.IsOpen() {
			if st.CurrentBorrowing == nil {
				st.CurrentBorrowing = &b
			}
			active[b.MemberID] = struct{}{}
		}
	}

	st.Popularity = float64(st.TotalBorrowings) * PopularityPerBorrowing
	st.ActiveBorrowers = len(active)
	st.TotalBorrowers = len(all)

	for id := range active {
		st.CurrentBorrowerIDs = append(st.CurrentBorrowerIDs, id)
	}
	sort.Slice(st.CurrentBorrowerIDs, func(i, j int) bool {
		return st.CurrentBorrowerIDs[i] < st.CurrentBorrowerIDs[j]
	})

	return st
}

// MemberStats содержит производные показатели читателя.
type MemberStats struct {
	ActiveBorrowings int
	TotalBorrowings  int
}

// ComputeMemberStats вычисляет показатели читателя по его выдачам.
func ComputeMemberStats(borrowings []Borrowing) MemberStats {
	st := MemberStats{TotalBorrowings: len(borrowings)}
	for _, b := range borrowings {
		if b.IsOpen() {
			st.ActiveBorrowings++
		}
	}
	return st
}
