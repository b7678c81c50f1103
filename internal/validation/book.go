package validation

import (
	"strings"
	"time"

	"github.com/mmeshcher/library-circulation/internal/model"
)

// ValidateBook проверяет поля книги перед добавлением в каталог.
func ValidateBook(b model.Book, today time.Time) error {
	if strings.TrimSpace(b.Title) == "" {
		return model.NewValidationError("title", "is required")
	}
	if strings.TrimSpace(b.Author) == "" {
		return model.NewValidationError("author", "is required")
	}
	if b.ISBN != "" && !IsValidISBN(b.ISBN) {
		return model.NewValidationError("isbn", "invalid checksum")
	}
	if b.BorrowPrice.IsNegative() {
		return model.NewValidationError("borrow_price", "must not be negative")
	}
	if !b.AddedDate.IsZero() && model.Day(b.AddedDate).After(model.Day(today)) {
		return model.NewValidationError("added_date", "the added date cannot be in the future")
	}
	if b.PublicationYear != 0 && b.PublicationYear > today.Year() {
		return model.NewValidationError("publication_year", "publication year cannot be in the future")
	}
	if !b.Rating.Valid() {
		return model.NewValidationError("rating", "invalid rating value for book '"+b.Title+"'")
	}
	if b.Language != "" && !b.Language.Valid() {
		return model.NewValidationError("language", "unsupported language")
	}
	if b.Status != "" && !b.Status.Valid() {
		return model.NewValidationError("status", "unknown status")
	}
	return nil
}
