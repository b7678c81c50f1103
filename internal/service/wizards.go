package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/library-circulation/internal/model"
	"github.com/mmeshcher/library-circulation/internal/repository"
)

// Предупреждения быстрой выдачи. Они не мешают попытке выдачи.
const (
	WarningBookNotAvailable = "This book is currently not available for borrowing."
	WarningAlreadyBorrowed  = "This member has already borrowed this book and not returned it yet."
)

// QuickBorrowRequest описывает выдачу одной книги через мастер.
type QuickBorrowRequest struct {
	MemberID int64
	BookID   int64
	DueDate  *time.Time
	Notes    string
}

// QuickBorrowResult содержит созданную выдачу и сообщение для сотрудника.
type QuickBorrowResult struct {
	Borrowing model.Borrowing
	Warnings  []string
	Message   string
}

// QuickBorrowWarnings возвращает предупреждения для пары читатель-книга без изменения данных.
func (s *Service) QuickBorrowWarnings(ctx context.Context, memberID, bookID int64) ([]string, error) {
	var warnings []string
	err := s.repo.View(ctx, func(tx repository.Tx) error {
		book, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		if !book.IsAvailable() {
			warnings = append(warnings, WarningBookNotAvailable)
		}

		if memberID == 0 {
			return nil
		}
		open, err := tx.ListBorrowings(ctx, repository.BorrowingFilter{
			MemberID: memberID,
			BookID:   bookID,
			OpenOnly: true,
		})
		if err != nil {
			return err
		}
		if len(open) > 0 {
			warnings = append(warnings, WarningAlreadyBorrowed)
		}
		return nil
	})
	return warnings, err
}

// QuickBorrow выдаёт книгу с сегодняшней датой выдачи. Правила те же, что у Checkout.
func (s *Service) QuickBorrow(ctx context.Context, req QuickBorrowRequest) (*QuickBorrowResult, error) {
	if req.MemberID == 0 {
		return nil, model.NewValidationError("member_id", "is required")
	}
	if req.BookID == 0 {
		return nil, model.NewValidationError("book_id", "is required")
	}

	warnings, err := s.QuickBorrowWarnings(ctx, req.MemberID, req.BookID)
	if err != nil {
		return nil, err
	}

	today := s.today()
	var res QuickBorrowResult
	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		b, err := s.checkoutTx(ctx, tx, CheckoutRequest{
			MemberID:   req.MemberID,
			BookID:     req.BookID,
			BorrowDate: &today,
			DueDate:    req.DueDate,
			Notes:      req.Notes,
		})
		if err != nil {
			return err
		}
		book, err := tx.GetBook(ctx, b.BookID)
		if err != nil {
			return err
		}
		member, err := tx.GetMember(ctx, b.MemberID)
		if err != nil {
			return err
		}
		res = QuickBorrowResult{
			Borrowing: b,
			Warnings:  warnings,
			Message:   fmt.Sprintf("Book %q has been borrowed by %q successfully!", book.Title, member.Name),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// BatchBorrowRequest описывает выдачу нескольких книг одному читателю.
type BatchBorrowRequest struct {
	MemberID   int64
	BookIDs    []int64
	BorrowDate *time.Time
	DueDate    *time.Time
	Notes      string
}

// BatchBorrow выдаёт все выбранные книги или ни одной. Если какие-то книги недоступны,
// возвращается *model.UnavailableBooksError с их названиями.
func (s *Service) BatchBorrow(ctx context.Context, req BatchBorrowRequest) ([]model.Borrowing, error) {
	if req.MemberID == 0 {
		return nil, model.NewValidationError("member_id", "is required")
	}
	ids := uniqueSorted(req.BookIDs)
	if len(ids) == 0 {
		return nil, model.NewValidationError("book_ids", "please select at least one book to borrow")
	}

	var res []model.Borrowing
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		res = res[:0]

		// Книги блокируются по возрастанию id до блокировки бюджета.
		var unavailable []string
		for _, id := range ids {
			book, err := tx.LockBook(ctx, id)
			if err != nil {
				return err
			}
			if !book.IsAvailable() {
				unavailable = append(unavailable, book.Title)
			}
		}
		if len(unavailable) > 0 {
			return &model.UnavailableBooksError{Titles: unavailable}
		}

		for _, id := range ids {
			b, err := s.checkoutTx(ctx, tx, CheckoutRequest{
				MemberID:   req.MemberID,
				BookID:     id,
				BorrowDate: req.BorrowDate,
				DueDate:    req.DueDate,
				Notes:      req.Notes,
			})
			if err != nil {
				return err
			}
			res = append(res, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch borrow completed", zap.Int64("memberID", req.MemberID), zap.Int("books", len(res)))
	return res, nil
}

// BatchReturnRequest описывает возврат нескольких книг.
// Пустой список выдач означает все открытые выдачи читателя.
type BatchReturnRequest struct {
	MemberID     int64
	BorrowingIDs []int64
	ReturnDate   *time.Time
	ApplyFine    bool
	Notes        string
}

// BatchReturnResult содержит итог пакетного возврата.
// Штраф только рассчитывается и в бюджете не отражается.
type BatchReturnResult struct {
	Returned    []model.Borrowing
	Skipped     []int64
	FineTotal   decimal.Decimal
	FineApplied bool
	Message     string
}

// BatchReturn возвращает выбранные книги в одной транзакции. Уже возвращённые выдачи пропускаются.
func (s *Service) BatchReturn(ctx context.Context, req BatchReturnRequest) (*BatchReturnResult, error) {
	if req.MemberID == 0 {
		return nil, model.NewValidationError("member_id", "is required")
	}
	date := s.today()
	if req.ReturnDate != nil {
		date = model.Day(*req.ReturnDate)
	}

	var res BatchReturnResult
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		res = BatchReturnResult{FineTotal: decimal.Zero, FineApplied: req.ApplyFine}

		ids := uniqueSorted(req.BorrowingIDs)
		if len(ids) == 0 {
			open, err := tx.ListBorrowings(ctx, repository.BorrowingFilter{MemberID: req.MemberID, OpenOnly: true})
			if err != nil {
				return err
			}
			for _, b := range open {
				ids = append(ids, b.ID)
			}
			ids = uniqueSorted(ids)
		}
		if len(ids) == 0 {
			return model.NewValidationError("borrowing_ids", "please select at least one book to return")
		}

		var titles []string
		for _, id := range ids {
			b, err := tx.GetBorrowing(ctx, id)
			if err != nil {
				return err
			}
			if b.MemberID != req.MemberID {
				return model.NewValidationError("borrowing_ids",
					fmt.Sprintf("borrowing %d does not belong to member %d", id, req.MemberID))
			}

			returned, changed, err := returnTx(ctx, tx, id, date)
			if err != nil {
				return err
			}
			if !changed {
				res.Skipped = append(res.Skipped, id)
				continue
			}

			res.Returned = append(res.Returned, returned)
			res.FineTotal = res.FineTotal.Add(model.FineFor(returned.DueDate, date))

			book, err := tx.GetBook(ctx, returned.BookID)
			if err != nil {
				return err
			}
			titles = append(titles, book.Title)
		}

		res.Message = batchReturnMessage(titles, res.FineTotal, req.ApplyFine)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch return completed",
		zap.Int64("memberID", req.MemberID),
		zap.Int("returned", len(res.Returned)),
		zap.Int("skipped", len(res.Skipped)),
		zap.String("fine", res.FineTotal.String()),
	)
	return &res, nil
}

func batchReturnMessage(titles []string, fine decimal.Decimal, applyFine bool) string {
	if len(titles) == 0 {
		return "No books were returned."
	}
	msg := "Successfully returned: " + strings.Join(titles, ", ")
	if applyFine && fine.IsPositive() {
		msg += "\nTotal fine applied: " + fine.StringFixed(2)
	}
	return msg
}

func uniqueSorted(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
