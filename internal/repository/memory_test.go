package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/library-circulation/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMemoryRepository_InTxRollsBackOnError(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.InTx(ctx, func(tx Tx) error {
		if _, err := tx.CreateBook(ctx, model.Book{Title: "Dune", Author: "Herbert"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = repo.View(ctx, func(tx Tx) error {
		books, err := tx.ListBooks(ctx, BookFilter{})
		require.NoError(t, err)
		assert.Empty(t, books)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryRepository_ViewIsReadOnly(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	err := repo.View(ctx, func(tx Tx) error {
		_, err := tx.CreateBook(ctx, model.Book{Title: "Dune", Author: "Herbert"})
		return err
	})
	require.ErrorIs(t, err, errReadOnly)
}

func TestMemoryRepository_OneOpenBorrowingPerBook(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	err := repo.InTx(ctx, func(tx Tx) error {
		book, err := tx.CreateBook(ctx, model.Book{Title: "Dune", Author: "Herbert", Status: model.BookStatusAvailable})
		require.NoError(t, err)

		first, err := tx.InsertBorrowing(ctx, model.Borrowing{MemberID: 1, BookID: book.ID, BorrowDate: day(2024, 1, 1), DueDate: day(2024, 1, 15)})
		require.NoError(t, err)

		_, err = tx.InsertBorrowing(ctx, model.Borrowing{MemberID: 2, BookID: book.ID, BorrowDate: day(2024, 1, 2), DueDate: day(2024, 1, 16)})
		require.ErrorIs(t, err, model.ErrDuplicateOpenBorrowing)

		require.NoError(t, tx.MarkReturned(ctx, first.ID, day(2024, 1, 5)))

		_, err = tx.InsertBorrowing(ctx, model.Borrowing{MemberID: 2, BookID: book.ID, BorrowDate: day(2024, 1, 6), DueDate: day(2024, 1, 20)})
		require.NoError(t, err)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryRepository_DebitGuardsAllocation(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	err := repo.InTx(ctx, func(tx Tx) error {
		budget, err := tx.CreateBudget(ctx, model.Budget{Allocated: decimal.NewFromInt(30), State: model.BudgetStateActive})
		require.NoError(t, err)

		id, err := tx.Debit(ctx, model.Expense{BudgetID: budget.ID, Amount: decimal.NewFromInt(20)})
		require.NoError(t, err)
		assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", id.String())

		_, err = tx.Debit(ctx, model.Expense{BudgetID: budget.ID, Amount: decimal.NewFromInt(11)})
		require.ErrorIs(t, err, model.ErrInsufficientFunds)

		got, err := tx.GetBudget(ctx, budget.ID)
		require.NoError(t, err)
		assert.True(t, got.Remaining().Equal(decimal.NewFromInt(10)), "remaining = %s", got.Remaining())
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryRepository_ListBorrowingsFilter(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		for i, due := range []time.Time{day(2024, 3, 1), day(2024, 3, 10), day(2024, 3, 20)} {
			book, err := tx.CreateBook(ctx, model.Book{Title: "B", Author: "A"})
			require.NoError(t, err)
			_, err = tx.InsertBorrowing(ctx, model.Borrowing{
				MemberID:   int64(i%2 + 1),
				BookID:     book.ID,
				BorrowDate: due.AddDate(0, 0, -14),
				DueDate:    due,
			})
			require.NoError(t, err)
		}
		return nil
	}))

	from, to := day(2024, 3, 5), day(2024, 3, 20)
	before := day(2024, 3, 10)

	tests := []struct {
		name   string
		filter BorrowingFilter
		want   int
	}{
		{name: "all", filter: BorrowingFilter{}, want: 3},
		{name: "member", filter: BorrowingFilter{MemberID: 1}, want: 2},
		{name: "due window", filter: BorrowingFilter{DueFrom: &from, DueTo: &to}, want: 2},
		{name: "due before", filter: BorrowingFilter{DueBefore: &before, OpenOnly: true}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, repo.View(ctx, func(tx Tx) error {
				res, err := tx.ListBorrowings(ctx, tt.filter)
				require.NoError(t, err)
				assert.Len(t, res, tt.want)
				return nil
			}))
		})
	}
}

func TestMemoryRepository_Users(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	id, err := repo.CreateUser(ctx, "librarian", []byte("hash"))
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, "librarian", []byte("other"))
	require.ErrorIs(t, err, model.ErrUserExists)

	u, err := repo.GetUserByLogin(ctx, "librarian")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)

	_, err = repo.GetUserByLogin(ctx, "nobody")
	require.ErrorIs(t, err, model.ErrNotFound)
}
