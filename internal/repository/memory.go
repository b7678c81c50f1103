package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/library-circulation/internal/model"
)

var errReadOnly = errors.New("write in read-only transaction")

// MemoryRepository хранит данные в памяти процесса и безопасен для конкурентного использования.
// Транзакции на запись выполняются строго последовательно над копией состояния;
// копия публикуется только при успешном завершении, что даёт атомарность и откат.
// Данные теряются при перезапуске - для постоянного хранения используйте PostgresRepository.
type MemoryRepository struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	seq          int64
	users        map[int64]model.User
	usersByLogin map[string]int64
	categories   []model.ExpenseCategory
	budgets      map[int64]model.Budget
	expenses     map[uuid.UUID]model.Expense
	members      map[int64]model.Member
	books        map[int64]model.Book
	borrowings   map[int64]model.Borrowing
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state: &memState{
			users:        make(map[int64]model.User),
			usersByLogin: make(map[string]int64),
			budgets:      make(map[int64]model.Budget),
			expenses:     make(map[uuid.UUID]model.Expense),
			members:      make(map[int64]model.Member),
			books:        make(map[int64]model.Book),
			borrowings:   make(map[int64]model.Borrowing),
		},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		seq:          s.seq,
		users:        make(map[int64]model.User, len(s.users)),
		usersByLogin: make(map[string]int64, len(s.usersByLogin)),
		categories:   append([]model.ExpenseCategory(nil), s.categories...),
		budgets:      make(map[int64]model.Budget, len(s.budgets)),
		expenses:     make(map[uuid.UUID]model.Expense, len(s.expenses)),
		members:      make(map[int64]model.Member, len(s.members)),
		books:        make(map[int64]model.Book, len(s.books)),
		borrowings:   make(map[int64]model.Borrowing, len(s.borrowings)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.usersByLogin {
		c.usersByLogin[k] = v
	}
	for k, v := range s.budgets {
		c.budgets[k] = v
	}
	for k, v := range s.expenses {
		c.expenses[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.books {
		c.books[k] = v
	}
	for k, v := range s.borrowings {
		c.borrowings[k] = v
	}
	return c
}

func (s *memState) nextID() int64 {
	s.seq++
	return s.seq
}

// Close ничего не делает и существует для совместимости с PostgresRepository.
func (r *MemoryRepository) Close() error {
	return nil
}

// InTx выполняет fn над копией состояния и публикует её, если fn завершилась без ошибки.
func (r *MemoryRepository) InTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.state.clone()
	if err := fn(&memTx{st: st}); err != nil {
		return err
	}
	r.state = st
	return nil
}

// View выполняет fn над текущим состоянием без права записи.
func (r *MemoryRepository) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return fn(&memTx{st: r.state, readOnly: true})
}

// CreateUser создаёт нового пользователя.
func (r *MemoryRepository) CreateUser(_ context.Context, login string, passwordHash []byte) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.state.usersByLogin[login]; ok {
		return 0, fmt.Errorf("%w: %s", model.ErrUserExists, login)
	}

	id := r.state.nextID()
	r.state.users[id] = model.User{
		ID:           id,
		Login:        login,
		PasswordHash: append([]byte(nil), passwordHash...),
		CreatedAt:    time.Now(),
	}
	r.state.usersByLogin[login] = id
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *MemoryRepository) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.state.usersByLogin[login]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", model.ErrNotFound, login)
	}
	u := r.state.users[id]
	return &u, nil
}

type memTx struct {
	st       *memState
	readOnly bool
}

func (t *memTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *memTx) CreateBook(_ context.Context, b model.Book) (model.Book, error) {
	if err := t.writable(); err != nil {
		return model.Book{}, err
	}
	if b.ISBN != "" {
		for _, other := range t.st.books {
			if other.ISBN == b.ISBN {
				return model.Book{}, model.NewValidationError("isbn", "the ISBN must be unique")
			}
		}
	}
	b.ID = t.st.nextID()
	t.st.books[b.ID] = b
	return b, nil
}

func (t *memTx) GetBook(_ context.Context, id int64) (model.Book, error) {
	b, ok := t.st.books[id]
	if !ok {
		return model.Book{}, fmt.Errorf("%w: book %d", model.ErrNotFound, id)
	}
	return b, nil
}

// LockBook не требует отдельной блокировки: транзакции на запись уже выполняются последовательно.
func (t *memTx) LockBook(ctx context.Context, id int64) (model.Book, error) {
	return t.GetBook(ctx, id)
}

func (t *memTx) ListBooks(_ context.Context, f BookFilter) ([]model.Book, error) {
	ids := toSet(f.IDs)
	var res []model.Book
	for _, b := range t.st.books {
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if ids != nil {
			if _, ok := ids[b.ID]; !ok {
				continue
			}
		}
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (t *memTx) SetBookStatus(_ context.Context, id int64, status model.BookStatus) error {
	if err := t.writable(); err != nil {
		return err
	}
	b, ok := t.st.books[id]
	if !ok {
		return fmt.Errorf("%w: book %d", model.ErrNotFound, id)
	}
	b.Status = status
	t.st.books[id] = b
	return nil
}

func (t *memTx) SetBookRating(_ context.Context, id int64, rating model.Rating) error {
	if err := t.writable(); err != nil {
		return err
	}
	b, ok := t.st.books[id]
	if !ok {
		return fmt.Errorf("%w: book %d", model.ErrNotFound, id)
	}
	b.Rating = rating
	t.st.books[id] = b
	return nil
}

func (t *memTx) EnsureExpenseCategory(_ context.Context, name, code string) (model.ExpenseCategory, error) {
	if len(t.st.categories) > 0 {
		return t.st.categories[0], nil
	}
	if err := t.writable(); err != nil {
		return model.ExpenseCategory{}, err
	}
	c := model.ExpenseCategory{ID: t.st.nextID(), Name: name, Code: code}
	t.st.categories = append(t.st.categories, c)
	return c, nil
}

func (t *memTx) CreateBudget(_ context.Context, b model.Budget) (model.Budget, error) {
	if err := t.writable(); err != nil {
		return model.Budget{}, err
	}
	b.ID = t.st.nextID()
	t.st.budgets[b.ID] = b
	return b, nil
}

func (t *memTx) GetBudget(_ context.Context, id int64) (model.Budget, error) {
	b, ok := t.st.budgets[id]
	if !ok {
		return model.Budget{}, fmt.Errorf("%w: budget %d", model.ErrNotFound, id)
	}
	return b, nil
}

func (t *memTx) LockBudget(ctx context.Context, id int64) (model.Budget, error) {
	return t.GetBudget(ctx, id)
}

func (t *memTx) Debit(_ context.Context, e model.Expense) (uuid.UUID, error) {
	if err := t.writable(); err != nil {
		return uuid.Nil, err
	}
	b, ok := t.st.budgets[e.BudgetID]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: budget %d", model.ErrNotFound, e.BudgetID)
	}

	spent := b.Spent.Add(e.Amount)
	if spent.IsNegative() || spent.GreaterThan(b.Allocated) {
		return uuid.Nil, model.ErrInsufficientFunds
	}
	b.Spent = spent
	t.st.budgets[b.ID] = b

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	t.st.expenses[e.ID] = e
	return e.ID, nil
}

func (t *memTx) CreateMember(_ context.Context, m model.Member) (model.Member, error) {
	if err := t.writable(); err != nil {
		return model.Member{}, err
	}
	m.ID = t.st.nextID()
	t.st.members[m.ID] = m
	return m, nil
}

func (t *memTx) GetMember(_ context.Context, id int64) (model.Member, error) {
	m, ok := t.st.members[id]
	if !ok {
		return model.Member{}, fmt.Errorf("%w: member %d", model.ErrNotFound, id)
	}
	return m, nil
}

func (t *memTx) InsertBorrowing(ctx context.Context, b model.Borrowing) (model.Borrowing, error) {
	if err := t.writable(); err != nil {
		return model.Borrowing{}, err
	}
	n, err := t.CountOpenBorrowings(ctx, b.BookID, 0)
	if err != nil {
		return model.Borrowing{}, err
	}
	if n > 0 {
		return model.Borrowing{}, model.ErrDuplicateOpenBorrowing
	}

	b.ID = t.st.nextID()
	b.Returned = false
	b.ReturnDate = nil
	t.st.borrowings[b.ID] = b
	return b, nil
}

func (t *memTx) GetBorrowing(_ context.Context, id int64) (model.Borrowing, error) {
	b, ok := t.st.borrowings[id]
	if !ok {
		return model.Borrowing{}, fmt.Errorf("%w: borrowing %d", model.ErrNotFound, id)
	}
	return b, nil
}

func (t *memTx) LockBorrowing(ctx context.Context, id int64) (model.Borrowing, error) {
	return t.GetBorrowing(ctx, id)
}

func (t *memTx) CountOpenBorrowings(_ context.Context, bookID, excludeID int64) (int, error) {
	n := 0
	for _, b := range t.st.borrowings {
		if b.BookID == bookID && !b.Returned && b.ID != excludeID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) LinkBorrowingExpense(_ context.Context, id int64, expenseID uuid.UUID) error {
	if err := t.writable(); err != nil {
		return err
	}
	b, ok := t.st.borrowings[id]
	if !ok {
		return fmt.Errorf("%w: borrowing %d", model.ErrNotFound, id)
	}
	b.ExpenseID = &expenseID
	t.st.borrowings[id] = b
	return nil
}

func (t *memTx) MarkReturned(_ context.Context, id int64, returnDate time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	b, ok := t.st.borrowings[id]
	if !ok {
		return fmt.Errorf("%w: borrowing %d", model.ErrNotFound, id)
	}
	if b.Returned {
		return nil
	}
	b.Returned = true
	b.ReturnDate = &returnDate
	t.st.borrowings[id] = b
	return nil
}

func (t *memTx) ListBorrowings(_ context.Context, f BorrowingFilter) ([]model.Borrowing, error) {
	ids := toSet(f.IDs)
	var res []model.Borrowing
	for _, b := range t.st.borrowings {
		if !matchBorrowing(b, f, ids) {
			continue
		}
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].BorrowDate.Equal(res[j].BorrowDate) {
			return res[i].BorrowDate.After(res[j].BorrowDate)
		}
		return res[i].ID > res[j].ID
	})
	return res, nil
}

func matchBorrowing(b model.Borrowing, f BorrowingFilter, ids map[int64]struct{}) bool {
	if ids != nil {
		if _, ok := ids[b.ID]; !ok {
			return false
		}
	}
	if f.MemberID != 0 && b.MemberID != f.MemberID {
		return false
	}
	if f.BookID != 0 && b.BookID != f.BookID {
		return false
	}
	if f.OpenOnly && b.Returned {
		return false
	}
	if f.DueFrom != nil && b.DueDate.Before(*f.DueFrom) {
		return false
	}
	if f.DueTo != nil && b.DueDate.After(*f.DueTo) {
		return false
	}
	if f.DueBefore != nil && !b.DueDate.Before(*f.DueBefore) {
		return false
	}
	return true
}

func toSet(ids []int64) map[int64]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
