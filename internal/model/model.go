// Package model содержит доменные сущности сервиса учёта выдачи книг.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User представляет учётную запись сотрудника библиотеки.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// BookStatus описывает состояние экземпляра книги.
type BookStatus string

const (
	BookStatusAvailable   BookStatus = "available"
	BookStatusCheckedOut  BookStatus = "checked_out"
	BookStatusMaintenance BookStatus = "maintenance"
)

// Valid сообщает, относится ли статус к допустимым значениям.
func (s BookStatus) Valid() bool {
	switch s {
	case BookStatusAvailable, BookStatusCheckedOut, BookStatusMaintenance:
		return true
	}
	return false
}

// Rating описывает оценку книги по шкале от 1 до 5. Нулевое значение означает отсутствие оценки.
type Rating int

const (
	RatingNone Rating = 0
	RatingMin  Rating = 1
	RatingMax  Rating = 5
)

// Valid сообщает, является ли оценка допустимой (либо отсутствует).
func (r Rating) Valid() bool {
	return r == RatingNone || (r >= RatingMin && r <= RatingMax)
}

// Language описывает язык издания.
type Language string

const (
	LanguageArabic  Language = "ar"
	LanguageEnglish Language = "en"
	LanguageFrench  Language = "fr"
	LanguageSpanish Language = "es"
)

// Valid сообщает, поддерживается ли язык.
func (l Language) Valid() bool {
	switch l {
	case LanguageArabic, LanguageEnglish, LanguageFrench, LanguageSpanish:
		return true
	}
	return false
}

// Book описывает книгу каталога и её текущий статус.
type Book struct {
	ID              int64
	Title           string
	ISBN            string
	Author          string
	Publisher       string
	PublicationYear int
	Edition         string
	Pages           int
	Language        Language
	BorrowPrice     decimal.Decimal
	Status          BookStatus
	Rating          Rating
	Notes           string
	AddedDate       time.Time
}

// IsAvailable сообщает, можно ли выдать книгу.
func (b Book) IsAvailable() bool {
	return b.Status == BookStatusAvailable
}

// DisplayName возвращает представление книги для списков.
func (b Book) DisplayName() string {
	return fmt.Sprintf("%s - %s", b.Title, b.Author)
}

// Member описывает читателя библиотеки. BudgetID равен нулю, если бюджет не привязан.
type Member struct {
	ID          int64
	Name        string
	Email       string
	Phone       string
	UserID      int64
	BudgetID    int64
	CreatedDate time.Time
}

// ExpenseCategory описывает категорию расходов, к которой относятся бюджеты читателей.
type ExpenseCategory struct {
	ID   int64
	Name string
	Code string
}

// BudgetState описывает состояние бюджета.
type BudgetState string

const (
	BudgetStateDraft  BudgetState = "draft"
	BudgetStateActive BudgetState = "active"
	BudgetStateClosed BudgetState = "closed"
)

// Budget описывает бюджет читателя, из которого оплачивается выдача книг.
type Budget struct {
	ID         int64
	Name       string
	CategoryID int64
	Allocated  decimal.Decimal
	Spent      decimal.Decimal
	PeriodType string
	DateFrom   time.Time
	DateTo     time.Time
	State      BudgetState
}

// Remaining возвращает остаток бюджета.
func (b Budget) Remaining() decimal.Decimal {
	return b.Allocated.Sub(b.Spent)
}

// Expense описывает запись о списании средств с бюджета.
type Expense struct {
	ID         uuid.UUID
	BudgetID   int64
	CategoryID int64
	Name       string
	Title      string
	Amount     decimal.Decimal
	Date       time.Time
	State      string
}

// Borrowing описывает запись о выдаче книги читателю.
type Borrowing struct {
	ID         int64
	MemberID   int64
	BookID     int64
	BorrowDate time.Time
	DueDate    time.Time
	Returned   bool
	ReturnDate *time.Time
	Amount     decimal.Decimal
	ExpenseID  *uuid.UUID
	Notes      string
}

// IsOpen сообщает, что книга ещё не возвращена.
func (b Borrowing) IsOpen() bool {
	return !b.Returned
}
