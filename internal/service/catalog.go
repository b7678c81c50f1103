package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmeshcher/library-circulation/internal/model"
	"github.com/mmeshcher/library-circulation/internal/repository"
	"github.com/mmeshcher/library-circulation/internal/validation"
)

// BookDetails объединяет карточку книги и статистику её выдач.
type BookDetails struct {
	Book  model.Book
	Stats model.BookStats
}

// AddBook добавляет книгу в каталог. Незаданные статус, язык и дата поступления
// заполняются значениями по умолчанию.
func (s *Service) AddBook(ctx context.Context, b model.Book) (*model.Book, error) {
	today := s.today()
	if b.Status == "" {
		b.Status = model.BookStatusAvailable
	}
	if b.Language == "" {
		b.Language = model.LanguageArabic
	}
	if b.AddedDate.IsZero() {
		b.AddedDate = today
	}
	b.AddedDate = model.Day(b.AddedDate)
	b.ISBN = validation.NormalizeISBN(b.ISBN)

	if b.Status == model.BookStatusCheckedOut {
		return nil, model.NewValidationError("status", "a new book cannot be checked out")
	}
	if err := validation.ValidateBook(b, today); err != nil {
		return nil, err
	}

	var res model.Book
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		var err error
		res, err = tx.CreateBook(ctx, b)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("book added", zap.Int64("bookID", res.ID), zap.String("title", res.Title))
	return &res, nil
}

// GetBook возвращает книгу вместе со статистикой выдач.
func (s *Service) GetBook(ctx context.Context, id int64) (*BookDetails, error) {
	var res BookDetails
	err := s.repo.View(ctx, func(tx repository.Tx) error {
		book, err := tx.GetBook(ctx, id)
		if err != nil {
			return err
		}
		borrowings, err := tx.ListBorrowings(ctx, repository.BorrowingFilter{BookID: id})
		if err != nil {
			return err
		}
		res = BookDetails{Book: book, Stats: model.ComputeBookStats(borrowings)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ListBooks возвращает книги по фильтру.
func (s *Service) ListBooks(ctx context.Context, f repository.BookFilter) ([]model.Book, error) {
	var res []model.Book
	err := s.repo.View(ctx, func(tx repository.Tx) error {
		var err error
		res, err = tx.ListBooks(ctx, f)
		return err
	})
	return res, err
}

// MarkAvailable переводит книгу в статус available.
func (s *Service) MarkAvailable(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, model.BookStatusAvailable)
}

// MarkCheckedOut подтверждает статус checked_out у книги с открытой выдачей.
func (s *Service) MarkCheckedOut(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, model.BookStatusCheckedOut)
}

// MarkMaintenance отправляет книгу на обслуживание.
func (s *Service) MarkMaintenance(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, model.BookStatusMaintenance)
}

// SetRating задаёт оценку книги от 1 до 5.
func (s *Service) SetRating(ctx context.Context, id int64, rating model.Rating) error {
	if rating == model.RatingNone || !rating.Valid() {
		return model.NewValidationError("rating", "must be between 1 and 5")
	}
	return s.repo.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetBook(ctx, id); err != nil {
			return err
		}
		return tx.SetBookRating(ctx, id, rating)
	})
}

func (s *Service) setStatus(ctx context.Context, id int64, status model.BookStatus) error {
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		return setStatusTx(ctx, tx, id, status)
	})
	if err != nil {
		return err
	}
	s.logger.Info("book status changed", zap.Int64("bookID", id), zap.String("status", string(status)))
	return nil
}

// setStatusTx меняет статус вручную. Статус checked_out закреплён за книгами
// с открытой выдачей и не может быть снят или установлен в обход выдачи и возврата.
func setStatusTx(ctx context.Context, tx repository.Tx, id int64, status model.BookStatus) error {
	if !status.Valid() {
		return model.NewValidationError("status", "unknown status")
	}

	book, err := tx.LockBook(ctx, id)
	if err != nil {
		return err
	}
	open, err := tx.CountOpenBorrowings(ctx, id, 0)
	if err != nil {
		return err
	}

	switch {
	case open > 0 && status != model.BookStatusCheckedOut:
		return model.NewValidationError("status", "book has an open borrowing, return it first")
	case open == 0 && status == model.BookStatusCheckedOut:
		return model.NewValidationError("status", "book has no open borrowing, use checkout")
	case book.Status == status:
		return nil
	}

	return tx.SetBookStatus(ctx, id, status)
}
