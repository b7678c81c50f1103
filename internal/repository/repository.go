// Package repository содержит реализации хранилища данных сервиса выдачи книг.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/library-circulation/internal/model"
)

// Tx описывает операции над данными в рамках одной транзакции.
// Методы Lock* блокируют запись до конца транзакции и служат точками сериализации
// конкурирующих выдач одной книги и списаний с одного бюджета.
type Tx interface {
	CreateBook(ctx context.Context, b model.Book) (model.Book, error)
	GetBook(ctx context.Context, id int64) (model.Book, error)
	LockBook(ctx context.Context, id int64) (model.Book, error)
	ListBooks(ctx context.Context, f BookFilter) ([]model.Book, error)
	SetBookStatus(ctx context.Context, id int64, status model.BookStatus) error
	SetBookRating(ctx context.Context, id int64, rating model.Rating) error

	EnsureExpenseCategory(ctx context.Context, name, code string) (model.ExpenseCategory, error)
	CreateBudget(ctx context.Context, b model.Budget) (model.Budget, error)
	GetBudget(ctx context.Context, id int64) (model.Budget, error)
	LockBudget(ctx context.Context, id int64) (model.Budget, error)
	Debit(ctx context.Context, e model.Expense) (uuid.UUID, error)

	CreateMember(ctx context.Context, m model.Member) (model.Member, error)
	GetMember(ctx context.Context, id int64) (model.Member, error)

	InsertBorrowing(ctx context.Context, b model.Borrowing) (model.Borrowing, error)
	GetBorrowing(ctx context.Context, id int64) (model.Borrowing, error)
	LockBorrowing(ctx context.Context, id int64) (model.Borrowing, error)
	CountOpenBorrowings(ctx context.Context, bookID, excludeID int64) (int, error)
	LinkBorrowingExpense(ctx context.Context, id int64, expenseID uuid.UUID) error
	MarkReturned(ctx context.Context, id int64, returnDate time.Time) error
	ListBorrowings(ctx context.Context, f BorrowingFilter) ([]model.Borrowing, error)
}

// BookFilter задаёт условия выборки книг. Пустые поля не ограничивают выборку.
type BookFilter struct {
	Status model.BookStatus
	IDs    []int64
}

// BorrowingFilter задаёт условия выборки выдач. Пустые поля не ограничивают выборку.
type BorrowingFilter struct {
	IDs       []int64
	MemberID  int64
	BookID    int64
	OpenOnly  bool
	DueFrom   *time.Time
	DueTo     *time.Time
	DueBefore *time.Time
}
