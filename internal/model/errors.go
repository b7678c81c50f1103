package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrNoBudget возвращается, если у читателя нет бюджета.
	ErrNoBudget = errors.New("member has no budget assigned")
	// ErrInsufficientFunds возвращается, если остатка бюджета не хватает на выдачу книги.
	ErrInsufficientFunds = errors.New("member doesn't have enough budget to borrow this book")
	// ErrBookUnavailable возвращается, если книга не может быть выдана.
	ErrBookUnavailable = errors.New("book is not available for borrowing")
	// ErrDuplicateOpenBorrowing возвращается при нарушении уникальности открытой выдачи книги.
	ErrDuplicateOpenBorrowing = errors.New("book is already borrowed and not yet returned")
	// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials возвращается при неверном логине или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError описывает некорректные входные данные.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NewValidationError создаёт ошибку валидации для указанного поля.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation сообщает, является ли err ошибкой валидации.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UnavailableBooksError перечисляет книги, из-за которых отклонена пакетная выдача.
type UnavailableBooksError struct {
	Titles []string
}

func (e *UnavailableBooksError) Error() string {
	return fmt.Sprintf("the following books are not available: %s", strings.Join(e.Titles, ", "))
}

// Unwrap позволяет сопоставлять ошибку с ErrBookUnavailable.
func (e *UnavailableBooksError) Unwrap() error {
	return ErrBookUnavailable
}
