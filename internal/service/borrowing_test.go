package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/library-circulation/internal/model"
	"github.com/mmeshcher/library-circulation/internal/repository"
)

func TestRegisterMember_CreatesBudget(t *testing.T) {
	f := newFixture(t)
	m := f.addMember(t, "Alice")

	require.NotZero(t, m.BudgetID)

	b := f.budget(t, m)
	assert.Equal(t, "Book Budget - Alice", b.Name)
	assert.True(t, b.Allocated.Equal(decimal.NewFromInt(500)))
	assert.True(t, b.Spent.IsZero())
	assert.Equal(t, model.BudgetStateActive, b.State)
	assert.Equal(t, "monthly", b.PeriodType)
	assert.Equal(t, day(2024, 1, 1), b.DateFrom)
	assert.Equal(t, day(2024, 1, 31), b.DateTo)
}

func TestRegisterMember_RequiresName(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RegisterMember(context.Background(), 1, NewMember{Name: "  "})
	require.True(t, model.IsValidation(err), "got %v", err)
}

func TestCheckout_DebitsBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.addMember(t, "Alice")
	f.spend(t, m, 450)
	book := f.addBook(t, "Dune", 20)

	b, err := f.svc.Checkout(ctx, CheckoutRequest{MemberID: m.ID, BookID: book.ID})
	require.NoError(t, err)

	assert.True(t, b.Amount.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, day(2024, 1, 1), b.BorrowDate)
	assert.Equal(t, day(2024, 1, 15), b.DueDate)
	assert.False(t, b.Returned)
	require.NotNil(t, b.ExpenseID)

	budget := f.budget(t, m)
	assert.True(t, budget.Remaining().Equal(decimal.NewFromInt(30)), "remaining %s", budget.Remaining())

	details, err := f.svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookStatusCheckedOut, details.Book.Status)
	require.NotNil(t, details.Stats.CurrentBorrowing)
	assert.Equal(t, b.ID, details.Stats.CurrentBorrowing.ID)
}

func TestCheckout_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.addMember(t, "Alice")
	f.spend(t, m, 485)
	book := f.addBook(t, "Dune", 20)

	_, err := f.svc.Checkout(ctx, CheckoutRequest{MemberID: m.ID, BookID: book.ID})
	require.ErrorIs(t, err, model.ErrInsufficientFunds)

	budget := f.budget(t, m)
	assert.True(t, budget.Remaining().Equal(decimal.NewFromInt(15)))

	details, err := f.svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookStatusAvailable, details.Book.Status)
	assert.Zero(t, details.Stats.TotalBorrowings)
}

func TestCheckout_NoBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var member model.Member
	err := f.repo.InTx(ctx, func(tx repository.Tx) error {
		var err error
		member, err = tx.CreateMember(ctx, model.Member{Name: "Ghost", UserID: 1})
		return err
	})
	require.NoError(t, err)
	book := f.addBook(t, "Dune", 20)

	_, err = f.svc.Checkout(ctx, CheckoutRequest{MemberID: member.ID, BookID: book.ID})
	require.ErrorIs(t, err, model.ErrNoBudget)
}

func TestCheckout_BudgetCheckedBeforeAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rich := f.addMember(t, "Rich")
	poor := f.addMember(t, "Poor")
	f.spend(t, poor, 500)
	book := f.addBook(t, "Dune", 20)

	_, err := f.svc.Checkout(ctx, CheckoutRequest{MemberID: rich.ID, BookID: book.ID})
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, CheckoutRequest{MemberID: poor.ID, BookID: book.ID})
	require.ErrorIs(t, err, model.ErrInsufficientFunds)
}

func TestCheckout_Unavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.addMember(t, "Alice")
	book := f.addBook(t, "Dune", 20)
	require.NoError(t, f.svc.MarkMaintenance(ctx, book.ID))

	_, err := f.svc.Checkout(ctx, CheckoutRequest{MemberID: m.ID, BookID: book.ID})
	require.ErrorIs(t, err, model.ErrBookUnavailable)
	assert.True(t, f.budget(t, m).Spent.IsZero())
}

func TestCheckout_DueDateBeforeBorrowDate(t *testing.T) {
	f := newFixture(t)
	m := f.addMember(t, "Alice")
	book := f.addBook(t, "Dune", 20)

	due := day(2023, 12, 31)
	_, err := f.svc.Checkout(context.Background(), CheckoutRequest{MemberID: m.ID, BookID: book.ID, DueDate: &due})
	require.True(t, model.IsValidation(err), "got %v", err)
}

func TestCheckout_ExplicitDates(t *testing.T) {
	f := newFixture(t)
	m := f.addMember(t, "Alice")
	book := f.addBook(t, "Dune", 20)

	borrowed := day(2024, 2, 10)
	b, err := f.svc.Checkout(context.Background(), CheckoutRequest{MemberID: m.ID, BookID: book.ID, BorrowDate: &borrowed})
	require.NoError(t, err)
	assert.Equal(t, day(2024, 2, 24), b.DueDate)
}

func TestCheckout_ConcurrentSameBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, "Dune", 20)

	const n = 8
	members := make([]model.Member, n)
	for i := range members {
		members[i] = f.addMember(t, "Reader")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(m model.Member) {
			defer wg.Done()
			_, err := f.svc.Checkout(ctx, CheckoutRequest{MemberID: m.ID, BookID: book.ID})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}(members[i])
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	for _, err := range failures {
		assert.ErrorIs(t, err, model.ErrBookUnavailable)
	}

	open, err := f.svc.ListBorrowings(ctx, repository.BorrowingFilter{BookID: book.ID, OpenOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

var errDebitFailed = errors.New("debit failed")

type failingDebitRepo struct {
	*repository.MemoryRepository
}

func (r failingDebitRepo) InTx(ctx context.Context, fn func(repository.Tx) error) error {
	return r.MemoryRepository.InTx(ctx, func(tx repository.Tx) error {
		return fn(failingDebitTx{Tx: tx})
	})
}

type failingDebitTx struct {
	repository.Tx
}

func (failingDebitTx) Debit(context.Context, model.Expense) (uuid.UUID, error) {
	return uuid.Nil, errDebitFailed
}

func TestCheckout_AtomicOnDebitFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.addMember(t, "Alice")
	book := f.addBook(t, "Dune", 20)

	broken := NewService(failingDebitRepo{f.repo}, nil, WithClock(func() time.Time { return f.now }))
	_, err := broken.Checkout(ctx, CheckoutRequest{MemberID: m.ID, BookID: book.ID})
	require.ErrorIs(t, err, errDebitFailed)

	details, err := f.svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookStatusAvailable, details.Book.Status)
	assert.Zero(t, details.Stats.TotalBorrowings)
	assert.True(t, f.budget(t, m).Spent.IsZero())
}

func TestReturnBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.addMember(t, "Alice")
	book := f.addBook(t, "Dune", 20)
	b, err := f.svc.Checkout(ctx, CheckoutRequest{MemberID: m.ID, BookID: book.ID})
	require.NoError(t, err)

	returnDate := day(2024, 1, 18)
	returned, err := f.svc.ReturnBook(ctx, b.ID, &returnDate)
	require.NoError(t, err)
	assert.True(t, returned.Returned)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, returnDate, *returned.ReturnDate)

	details, err := f.svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookStatusAvailable, details.Book.Status)
	assert.Nil(t, details.Stats.CurrentBorrowing)

	// Повторный возврат ничего не меняет.
	later := day(2024, 2, 1)
	again, err := f.svc.ReturnBook(ctx, b.ID, &later)
	require.NoError(t, err)
	assert.Equal(t, returnDate, *again.ReturnDate)

	// Деньги не возвращаются.
	assert.True(t, f.budget(t, m).Spent.Equal(decimal.NewFromInt(20)))

	fine, err := f.svc.ComputeFine(ctx, b.ID, day(2024, 3, 1))
	require.NoError(t, err)
	assert.True(t, fine.Equal(decimal.NewFromInt(15)), "fine %s", fine)
}

func TestReturnBook_BeforeBorrowDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.addMember(t, "Alice")
	book := f.addBook(t, "Dune", 20)
	b, err := f.svc.Checkout(ctx, CheckoutRequest{MemberID: m.ID, BookID: book.ID})
	require.NoError(t, err)

	early := day(2023, 12, 1)
	_, err = f.svc.ReturnBook(ctx, b.ID, &early)
	require.True(t, model.IsValidation(err), "got %v", err)
}

func TestReturnBook_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ReturnBook(context.Background(), 404, nil)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestComputeFineAndOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.addMember(t, "Alice")
	book := f.addBook(t, "Dune", 20)
	b, err := f.svc.Checkout(ctx, CheckoutRequest{MemberID: m.ID, BookID: book.ID})
	require.NoError(t, err)

	tests := []struct {
		name        string
		asOf        time.Time
		wantOverdue bool
		wantDays    int
		wantFine    int64
	}{
		{name: "before due", asOf: day(2024, 1, 10), wantOverdue: false, wantDays: 0, wantFine: 0},
		{name: "on due date", asOf: day(2024, 1, 15), wantOverdue: false, wantDays: 0, wantFine: 0},
		{name: "three days late", asOf: day(2024, 1, 18), wantOverdue: true, wantDays: 3, wantFine: 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			overdue, days, err := f.svc.IsOverdue(ctx, b.ID, tt.asOf)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOverdue, overdue)
			assert.Equal(t, tt.wantDays, days)

			fine, err := f.svc.ComputeFine(ctx, b.ID, tt.asOf)
			require.NoError(t, err)
			assert.True(t, fine.Equal(decimal.NewFromInt(tt.wantFine)), "fine %s", fine)
		})
	}

	overdue, err := f.svc.OverdueBorrowings(ctx, day(2024, 1, 16))
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, b.ID, overdue[0].ID)
}

func TestMarkStatus_GuardsOpenBorrowing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.addMember(t, "Alice")
	book := f.addBook(t, "Dune", 20)

	err := f.svc.MarkCheckedOut(ctx, book.ID)
	require.True(t, model.IsValidation(err), "got %v", err)

	_, err = f.svc.Checkout(ctx, CheckoutRequest{MemberID: m.ID, BookID: book.ID})
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkCheckedOut(ctx, book.ID))

	err = f.svc.MarkAvailable(ctx, book.ID)
	require.True(t, model.IsValidation(err), "got %v", err)

	err = f.svc.MarkMaintenance(ctx, book.ID)
	require.True(t, model.IsValidation(err), "got %v", err)
}

func TestSetRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, "Dune", 20)

	require.NoError(t, f.svc.SetRating(ctx, book.ID, 4))

	details, err := f.svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Rating(4), details.Book.Rating)

	err = f.svc.SetRating(ctx, book.ID, 6)
	require.True(t, model.IsValidation(err), "got %v", err)

	err = f.svc.SetRating(ctx, 404, 3)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestAddBook_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddBook(ctx, model.Book{Title: "No Author"})
	require.True(t, model.IsValidation(err), "got %v", err)

	_, err = f.svc.AddBook(ctx, model.Book{Title: "Bad", Author: "A", ISBN: "9780306406158"})
	require.True(t, model.IsValidation(err), "got %v", err)

	b, err := f.svc.AddBook(ctx, model.Book{Title: "Good", Author: "A", ISBN: "978-0-306-40615-7"})
	require.NoError(t, err)
	assert.Equal(t, "9780306406157", b.ISBN)
	assert.Equal(t, model.BookStatusAvailable, b.Status)
	assert.Equal(t, model.LanguageArabic, b.Language)
	assert.Equal(t, day(2024, 1, 1), b.AddedDate)

	_, err = f.svc.AddBook(ctx, model.Book{Title: "Copy", Author: "A", ISBN: "9780306406157"})
	require.True(t, model.IsValidation(err), "got %v", err)
}

func TestGetMember_Stats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.addMember(t, "Alice")
	first := f.addBook(t, "Dune", 20)
	second := f.addBook(t, "Emma", 10)

	b, err := f.svc.Checkout(ctx, CheckoutRequest{MemberID: m.ID, BookID: first.ID})
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, CheckoutRequest{MemberID: m.ID, BookID: second.ID})
	require.NoError(t, err)
	_, err = f.svc.ReturnBook(ctx, b.ID, nil)
	require.NoError(t, err)

	d, err := f.svc.GetMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Stats.TotalBorrowings)
	assert.Equal(t, 1, d.Stats.ActiveBorrowings)
	assert.True(t, d.Budget.Remaining().Equal(decimal.NewFromInt(470)))
}
