package validation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/library-circulation/internal/model"
)

func TestValidateBook(t *testing.T) {
	today := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	valid := model.Book{
		Title:           "Dune",
		Author:          "Frank Herbert",
		ISBN:            "978-0-306-40615-7",
		PublicationYear: 1965,
		BorrowPrice:     decimal.NewFromInt(20),
		Rating:          4,
		Language:        model.LanguageEnglish,
		AddedDate:       today,
	}

	tests := []struct {
		name  string
		edit  func(b *model.Book)
		field string
	}{
		{name: "valid", edit: func(b *model.Book) {}},
		{name: "no isbn", edit: func(b *model.Book) { b.ISBN = "" }},
		{name: "missing title", edit: func(b *model.Book) { b.Title = " " }, field: "title"},
		{name: "missing author", edit: func(b *model.Book) { b.Author = "" }, field: "author"},
		{name: "bad isbn", edit: func(b *model.Book) { b.ISBN = "9780306406158" }, field: "isbn"},
		{name: "negative price", edit: func(b *model.Book) { b.BorrowPrice = decimal.NewFromInt(-1) }, field: "borrow_price"},
		{name: "added date in future", edit: func(b *model.Book) { b.AddedDate = today.AddDate(0, 0, 1) }, field: "added_date"},
		{name: "publication year in future", edit: func(b *model.Book) { b.PublicationYear = 2025 }, field: "publication_year"},
		{name: "rating out of scale", edit: func(b *model.Book) { b.Rating = 6 }, field: "rating"},
		{name: "unknown language", edit: func(b *model.Book) { b.Language = "de" }, field: "language"},
		{name: "unknown status", edit: func(b *model.Book) { b.Status = "lost" }, field: "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid
			tt.edit(&b)

			err := ValidateBook(b, today)
			if tt.field == "" {
				require.NoError(t, err)
				return
			}

			var ve *model.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestStruct(t *testing.T) {
	type request struct {
		MemberID int64   `json:"member_id" validate:"required,gt=0"`
		BookIDs  []int64 `json:"book_ids" validate:"required,min=1"`
		Notes    string  `validate:"max=3"`
	}

	require.NoError(t, Struct(request{MemberID: 1, BookIDs: []int64{1}}))

	err := Struct(request{MemberID: 1})
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "book_ids", ve.Field)
	assert.Equal(t, "failed on 'required'", ve.Reason)

	err = Struct(request{MemberID: 1, BookIDs: []int64{1}, Notes: "long"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "notes", ve.Field)
}
