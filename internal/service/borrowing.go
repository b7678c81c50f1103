package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/library-circulation/internal/model"
	"github.com/mmeshcher/library-circulation/internal/repository"
)

const expenseStateApproved = "approved"

// CheckoutRequest описывает запрос на выдачу книги.
// Пустые даты заменяются на сегодняшнюю и на срок по умолчанию соответственно.
type CheckoutRequest struct {
	MemberID   int64
	BookID     int64
	BorrowDate *time.Time
	DueDate    *time.Time
	Notes      string
}

// Checkout выдаёт книгу читателю и списывает её стоимость с бюджета читателя.
// Все изменения применяются в одной транзакции.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*model.Borrowing, error) {
	var res model.Borrowing
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		b, err := s.checkoutTx(ctx, tx, req)
		res = b
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("book checked out",
		zap.Int64("borrowingID", res.ID),
		zap.Int64("bookID", res.BookID),
		zap.Int64("memberID", res.MemberID),
		zap.String("amount", res.Amount.String()),
	)
	return &res, nil
}

// checkoutTx проверяет условия выдачи в порядке: бюджет есть, бюджета хватает, книга свободна.
// Строка книги блокируется раньше строки бюджета; этого порядка придерживаются все операции.
func (s *Service) checkoutTx(ctx context.Context, tx repository.Tx, req CheckoutRequest) (model.Borrowing, error) {
	borrowDate := s.today()
	if req.BorrowDate != nil {
		borrowDate = model.Day(*req.BorrowDate)
	}
	dueDate := model.DefaultDueDate(borrowDate)
	if req.DueDate != nil {
		dueDate = model.Day(*req.DueDate)
	}
	if dueDate.Before(borrowDate) {
		return model.Borrowing{}, model.NewValidationError("due_date", "must not be before borrow date")
	}

	book, err := tx.LockBook(ctx, req.BookID)
	if err != nil {
		return model.Borrowing{}, err
	}

	member, err := tx.GetMember(ctx, req.MemberID)
	if err != nil {
		return model.Borrowing{}, err
	}

	if member.BudgetID == 0 {
		return model.Borrowing{}, fmt.Errorf("%w: member %d", model.ErrNoBudget, member.ID)
	}
	budget, err := tx.LockBudget(ctx, member.BudgetID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Borrowing{}, fmt.Errorf("%w: member %d", model.ErrNoBudget, member.ID)
		}
		return model.Borrowing{}, err
	}

	price := book.BorrowPrice
	if budget.Remaining().LessThan(price) {
		return model.Borrowing{}, model.ErrInsufficientFunds
	}

	if !book.IsAvailable() {
		return model.Borrowing{}, fmt.Errorf("%w: %s", model.ErrBookUnavailable, book.Title)
	}
	open, err := tx.CountOpenBorrowings(ctx, book.ID, 0)
	if err != nil {
		return model.Borrowing{}, err
	}
	if open > 0 {
		return model.Borrowing{}, fmt.Errorf("%w: %s", model.ErrBookUnavailable, book.Title)
	}

	borrowing, err := tx.InsertBorrowing(ctx, model.Borrowing{
		MemberID:   member.ID,
		BookID:     book.ID,
		BorrowDate: borrowDate,
		DueDate:    dueDate,
		Amount:     price,
		Notes:      req.Notes,
	})
	if err != nil {
		return model.Borrowing{}, err
	}
	if err := ensureSingleOpen(ctx, tx, borrowing); err != nil {
		return model.Borrowing{}, err
	}

	if err := tx.SetBookStatus(ctx, book.ID, model.BookStatusCheckedOut); err != nil {
		return model.Borrowing{}, err
	}

	expenseID, err := tx.Debit(ctx, model.Expense{
		BudgetID:   budget.ID,
		CategoryID: budget.CategoryID,
		Name:       "Borrowed Book: " + book.Title,
		Title:      "Book Borrowing: " + book.Title,
		Amount:     price,
		Date:       s.today(),
		State:      expenseStateApproved,
	})
	if err != nil {
		return model.Borrowing{}, err
	}

	if err := tx.LinkBorrowingExpense(ctx, borrowing.ID, expenseID); err != nil {
		return model.Borrowing{}, err
	}
	borrowing.ExpenseID = &expenseID

	return borrowing, nil
}

// ensureSingleOpen повторно проверяет, что у книги нет других открытых выдач.
func ensureSingleOpen(ctx context.Context, tx repository.Tx, b model.Borrowing) error {
	if b.Returned {
		return nil
	}
	n, err := tx.CountOpenBorrowings(ctx, b.BookID, b.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return model.ErrDuplicateOpenBorrowing
	}
	return nil
}

// ReturnBook закрывает выдачу и освобождает книгу. Повторный возврат ничего не меняет.
// Списанная при выдаче сумма не возвращается в бюджет.
func (s *Service) ReturnBook(ctx context.Context, borrowingID int64, returnDate *time.Time) (*model.Borrowing, error) {
	date := s.today()
	if returnDate != nil {
		date = model.Day(*returnDate)
	}

	var (
		res     model.Borrowing
		changed bool
	)
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		var err error
		res, changed, err = returnTx(ctx, tx, borrowingID, date)
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("book returned",
			zap.Int64("borrowingID", res.ID),
			zap.Int64("bookID", res.BookID),
			zap.String("returnDate", date.Format(model.DateLayout)),
		)
	}
	return &res, nil
}

// returnTx возвращает запись выдачи и признак того, что она была закрыта этим вызовом.
func returnTx(ctx context.Context, tx repository.Tx, id int64, date time.Time) (model.Borrowing, bool, error) {
	b, err := tx.LockBorrowing(ctx, id)
	if err != nil {
		return model.Borrowing{}, false, err
	}
	if b.Returned {
		return b, false, nil
	}
	if date.Before(b.BorrowDate) {
		return model.Borrowing{}, false, model.NewValidationError("return_date", "must not be before borrow date")
	}

	if _, err := tx.LockBook(ctx, b.BookID); err != nil {
		return model.Borrowing{}, false, err
	}
	if err := tx.MarkReturned(ctx, b.ID, date); err != nil {
		return model.Borrowing{}, false, err
	}
	if err := tx.SetBookStatus(ctx, b.BookID, model.BookStatusAvailable); err != nil {
		return model.Borrowing{}, false, err
	}

	b.Returned = true
	b.ReturnDate = &date
	return b, true, nil
}

// GetBorrowing возвращает выдачу по идентификатору.
func (s *Service) GetBorrowing(ctx context.Context, id int64) (*model.Borrowing, error) {
	var res model.Borrowing
	err := s.repo.View(ctx, func(tx repository.Tx) error {
		var err error
		res, err = tx.GetBorrowing(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ListBorrowings возвращает выдачи по фильтру.
func (s *Service) ListBorrowings(ctx context.Context, f repository.BorrowingFilter) ([]model.Borrowing, error) {
	var res []model.Borrowing
	err := s.repo.View(ctx, func(tx repository.Tx) error {
		var err error
		res, err = tx.ListBorrowings(ctx, f)
		return err
	})
	return res, err
}

// OverdueBorrowings возвращает открытые выдачи со сроком возврата раньше asOf.
func (s *Service) OverdueBorrowings(ctx context.Context, asOf time.Time) ([]model.Borrowing, error) {
	day := model.Day(asOf)
	return s.ListBorrowings(ctx, repository.BorrowingFilter{OpenOnly: true, DueBefore: &day})
}

// ComputeFine считает штраф по выдаче на дату asOf без изменения данных.
func (s *Service) ComputeFine(ctx context.Context, borrowingID int64, asOf time.Time) (decimal.Decimal, error) {
	b, err := s.GetBorrowing(ctx, borrowingID)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Fine(model.Day(asOf)), nil
}

// IsOverdue сообщает, просрочена ли выдача на дату asOf, и на сколько дней.
func (s *Service) IsOverdue(ctx context.Context, borrowingID int64, asOf time.Time) (bool, int, error) {
	b, err := s.GetBorrowing(ctx, borrowingID)
	if err != nil {
		return false, 0, err
	}
	overdue, days := b.Overdue(model.Day(asOf))
	return overdue, days, nil
}
