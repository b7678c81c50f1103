package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/library-circulation/internal/model"
)

const (
	dialectPostgres = "postgres"

	constraintOpenBorrowing = "borrowings_one_open_per_book"
	constraintBookISBN      = "books_isbn_key"
	constraintBudgetSpent   = "budgets_spent_within_allocation"
)

var (
	bookColumns = []any{
		"id", "title", goqu.L("COALESCE(isbn, '')"), "author", "publisher", "publication_year",
		"edition", "pages", "language", "borrow_price", "status", goqu.L("COALESCE(rating, 0)"),
		"notes", "added_date",
	}
	borrowingColumns = []any{
		"id", "member_id", "book_id", "borrow_date", "due_date", "returned",
		"return_date", "amount", "expense_id", "notes",
	}
)

// pgTx реализует Tx поверх транзакции pgx.
type pgTx struct {
	db pgx.Tx
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == constraint
}

func isCheckViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation && pgErr.ConstraintName == constraint
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", model.ErrNotFound, what, id)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func scanBook(row pgx.Row) (model.Book, error) {
	var (
		b        model.Book
		language string
		status   string
		rating   int
	)
	err := row.Scan(&b.ID, &b.Title, &b.ISBN, &b.Author, &b.Publisher, &b.PublicationYear,
		&b.Edition, &b.Pages, &language, &b.BorrowPrice, &status, &rating, &b.Notes, &b.AddedDate)
	if err != nil {
		return model.Book{}, err
	}
	b.Language = model.Language(language)
	b.Status = model.BookStatus(status)
	b.Rating = model.Rating(rating)
	return b, nil
}

func scanBorrowing(row pgx.Row) (model.Borrowing, error) {
	var b model.Borrowing
	err := row.Scan(&b.ID, &b.MemberID, &b.BookID, &b.BorrowDate, &b.DueDate, &b.Returned,
		&b.ReturnDate, &b.Amount, &b.ExpenseID, &b.Notes)
	return b, err
}

func (t *pgTx) selectOne(ctx context.Context, ds *goqu.SelectDataset) (pgx.Row, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return t.db.QueryRow(ctx, query, args...), nil
}

// CreateBook сохраняет книгу в каталоге.
func (t *pgTx) CreateBook(ctx context.Context, b model.Book) (model.Book, error) {
	err := t.db.QueryRow(ctx,
		`INSERT INTO books (title, isbn, author, publisher, publication_year, edition, pages,
		                    language, borrow_price, status, rating, notes, added_date)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, 0), $12, $13)
		 RETURNING id`,
		b.Title, b.ISBN, b.Author, b.Publisher, b.PublicationYear, b.Edition, b.Pages,
		string(b.Language), b.BorrowPrice, string(b.Status), int(b.Rating), b.Notes, b.AddedDate,
	).Scan(&b.ID)
	if err != nil {
		if isUniqueViolation(err, constraintBookISBN) {
			return model.Book{}, model.NewValidationError("isbn", "the ISBN must be unique")
		}
		return model.Book{}, fmt.Errorf("insert book: %w", err)
	}
	return b, nil
}

// GetBook возвращает книгу по идентификатору.
func (t *pgTx) GetBook(ctx context.Context, id int64) (model.Book, error) {
	row, err := t.selectOne(ctx, goqu.Dialect(dialectPostgres).From("books").
		Select(bookColumns...).Where(goqu.C("id").Eq(id)))
	if err != nil {
		return model.Book{}, err
	}
	b, err := scanBook(row)
	if err != nil {
		return model.Book{}, notFound(err, "book", id)
	}
	return b, nil
}

// LockBook возвращает книгу, блокируя её строку до конца транзакции.
func (t *pgTx) LockBook(ctx context.Context, id int64) (model.Book, error) {
	row, err := t.selectOne(ctx, goqu.Dialect(dialectPostgres).From("books").
		Select(bookColumns...).Where(goqu.C("id").Eq(id)).ForUpdate(goqu.Wait))
	if err != nil {
		return model.Book{}, err
	}
	b, err := scanBook(row)
	if err != nil {
		return model.Book{}, notFound(err, "book", id)
	}
	return b, nil
}

// ListBooks возвращает книги, удовлетворяющие фильтру.
func (t *pgTx) ListBooks(ctx context.Context, f BookFilter) ([]model.Book, error) {
	ds := goqu.Dialect(dialectPostgres).From("books").Select(bookColumns...).Order(goqu.C("id").Asc())
	if f.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(string(f.Status)))
	}
	if len(f.IDs) > 0 {
		ds = ds.Where(goqu.C("id").In(f.IDs))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := t.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select books: %w", err)
	}
	defer rows.Close()

	var res []model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SetBookStatus обновляет статус книги.
func (t *pgTx) SetBookStatus(ctx context.Context, id int64, status model.BookStatus) error {
	tag, err := t.db.Exec(ctx, `UPDATE books SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update book status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: book %d", model.ErrNotFound, id)
	}
	return nil
}

// SetBookRating обновляет оценку книги.
func (t *pgTx) SetBookRating(ctx context.Context, id int64, rating model.Rating) error {
	tag, err := t.db.Exec(ctx, `UPDATE books SET rating = NULLIF($2, 0) WHERE id = $1`, id, int(rating))
	if err != nil {
		return fmt.Errorf("update book rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: book %d", model.ErrNotFound, id)
	}
	return nil
}

// EnsureExpenseCategory возвращает первую существующую категорию расходов или создаёт новую.
func (t *pgTx) EnsureExpenseCategory(ctx context.Context, name, code string) (model.ExpenseCategory, error) {
	var c model.ExpenseCategory
	err := t.db.QueryRow(ctx, `SELECT id, name, code FROM expense_categories ORDER BY id LIMIT 1`).
		Scan(&c.ID, &c.Name, &c.Code)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.ExpenseCategory{}, fmt.Errorf("select category: %w", err)
	}

	// Параллельная регистрация могла создать категорию раньше нас.
	err = t.db.QueryRow(ctx,
		`INSERT INTO expense_categories (name, code) VALUES ($1, $2)
		 ON CONFLICT (code) DO UPDATE SET code = EXCLUDED.code
		 RETURNING id, name, code`,
		name, code,
	).Scan(&c.ID, &c.Name, &c.Code)
	if err != nil {
		return model.ExpenseCategory{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

// CreateBudget создаёт бюджет.
func (t *pgTx) CreateBudget(ctx context.Context, b model.Budget) (model.Budget, error) {
	err := t.db.QueryRow(ctx,
		`INSERT INTO budgets (name, category_id, allocated, spent, period_type, date_from, date_to, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		b.Name, b.CategoryID, b.Allocated, b.Spent, b.PeriodType, b.DateFrom, b.DateTo, string(b.State),
	).Scan(&b.ID)
	if err != nil {
		return model.Budget{}, fmt.Errorf("insert budget: %w", err)
	}
	return b, nil
}

func (t *pgTx) getBudget(ctx context.Context, id int64, lock bool) (model.Budget, error) {
	query := `SELECT id, name, category_id, allocated, spent, period_type, date_from, date_to, state
	          FROM budgets WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var (
		b     model.Budget
		state string
	)
	err := t.db.QueryRow(ctx, query, id).Scan(&b.ID, &b.Name, &b.CategoryID, &b.Allocated, &b.Spent,
		&b.PeriodType, &b.DateFrom, &b.DateTo, &state)
	if err != nil {
		return model.Budget{}, notFound(err, "budget", id)
	}
	b.State = model.BudgetState(state)
	return b, nil
}

// GetBudget возвращает бюджет.
func (t *pgTx) GetBudget(ctx context.Context, id int64) (model.Budget, error) {
	return t.getBudget(ctx, id, false)
}

// LockBudget возвращает бюджет, блокируя его строку для сериализации списаний.
func (t *pgTx) LockBudget(ctx context.Context, id int64) (model.Budget, error) {
	return t.getBudget(ctx, id, true)
}

// Debit списывает сумму с бюджета и сохраняет запись о расходе.
func (t *pgTx) Debit(ctx context.Context, e model.Expense) (uuid.UUID, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	tag, err := t.db.Exec(ctx, `UPDATE budgets SET spent = spent + $2 WHERE id = $1`, e.BudgetID, e.Amount)
	if err != nil {
		if isCheckViolation(err, constraintBudgetSpent) {
			return uuid.Nil, model.ErrInsufficientFunds
		}
		return uuid.Nil, fmt.Errorf("update budget spent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, fmt.Errorf("%w: budget %d", model.ErrNotFound, e.BudgetID)
	}

	_, err = t.db.Exec(ctx,
		`INSERT INTO expenses (id, budget_id, category_id, name, title, amount, date, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.BudgetID, e.CategoryID, e.Name, e.Title, e.Amount, e.Date, e.State,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert expense: %w", err)
	}

	return e.ID, nil
}

// CreateMember сохраняет читателя.
func (t *pgTx) CreateMember(ctx context.Context, m model.Member) (model.Member, error) {
	err := t.db.QueryRow(ctx,
		`INSERT INTO members (name, email, phone, user_id, budget_id, created_date)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		m.Name, m.Email, m.Phone, m.UserID, m.BudgetID, m.CreatedDate,
	).Scan(&m.ID)
	if err != nil {
		return model.Member{}, fmt.Errorf("insert member: %w", err)
	}
	return m, nil
}

// GetMember возвращает читателя.
func (t *pgTx) GetMember(ctx context.Context, id int64) (model.Member, error) {
	var m model.Member
	err := t.db.QueryRow(ctx,
		`SELECT id, name, email, phone, user_id, budget_id, created_date FROM members WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Name, &m.Email, &m.Phone, &m.UserID, &m.BudgetID, &m.CreatedDate)
	if err != nil {
		return model.Member{}, notFound(err, "member", id)
	}
	return m, nil
}

// InsertBorrowing сохраняет новую выдачу. Частичный уникальный индекс по открытым выдачам
// не позволяет сохранить вторую открытую выдачу одной книги.
func (t *pgTx) InsertBorrowing(ctx context.Context, b model.Borrowing) (model.Borrowing, error) {
	err := t.db.QueryRow(ctx,
		`INSERT INTO borrowings (member_id, book_id, borrow_date, due_date, returned, amount, notes)
		 VALUES ($1, $2, $3, $4, FALSE, $5, $6)
		 RETURNING id`,
		b.MemberID, b.BookID, b.BorrowDate, b.DueDate, b.Amount, b.Notes,
	).Scan(&b.ID)
	if err != nil {
		if isUniqueViolation(err, constraintOpenBorrowing) {
			return model.Borrowing{}, model.ErrDuplicateOpenBorrowing
		}
		return model.Borrowing{}, fmt.Errorf("insert borrowing: %w", err)
	}
	b.Returned = false
	return b, nil
}

// GetBorrowing возвращает выдачу.
func (t *pgTx) GetBorrowing(ctx context.Context, id int64) (model.Borrowing, error) {
	row, err := t.selectOne(ctx, goqu.Dialect(dialectPostgres).From("borrowings").
		Select(borrowingColumns...).Where(goqu.C("id").Eq(id)))
	if err != nil {
		return model.Borrowing{}, err
	}
	b, err := scanBorrowing(row)
	if err != nil {
		return model.Borrowing{}, notFound(err, "borrowing", id)
	}
	return b, nil
}

// LockBorrowing возвращает выдачу, блокируя её строку до конца транзакции.
func (t *pgTx) LockBorrowing(ctx context.Context, id int64) (model.Borrowing, error) {
	row, err := t.selectOne(ctx, goqu.Dialect(dialectPostgres).From("borrowings").
		Select(borrowingColumns...).Where(goqu.C("id").Eq(id)).ForUpdate(goqu.Wait))
	if err != nil {
		return model.Borrowing{}, err
	}
	b, err := scanBorrowing(row)
	if err != nil {
		return model.Borrowing{}, notFound(err, "borrowing", id)
	}
	return b, nil
}

// CountOpenBorrowings считает открытые выдачи книги, не считая выдачу excludeID.
func (t *pgTx) CountOpenBorrowings(ctx context.Context, bookID, excludeID int64) (int, error) {
	var n int
	err := t.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM borrowings WHERE book_id = $1 AND NOT returned AND id <> $2`,
		bookID, excludeID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open borrowings: %w", err)
	}
	return n, nil
}

// LinkBorrowingExpense связывает выдачу с записью о расходе.
func (t *pgTx) LinkBorrowingExpense(ctx context.Context, id int64, expenseID uuid.UUID) error {
	_, err := t.db.Exec(ctx, `UPDATE borrowings SET expense_id = $2 WHERE id = $1`, id, expenseID)
	if err != nil {
		return fmt.Errorf("link expense: %w", err)
	}
	return nil
}

// MarkReturned закрывает выдачу.
func (t *pgTx) MarkReturned(ctx context.Context, id int64, returnDate time.Time) error {
	_, err := t.db.Exec(ctx,
		`UPDATE borrowings SET returned = TRUE, return_date = $2 WHERE id = $1 AND NOT returned`,
		id, returnDate,
	)
	if err != nil {
		return fmt.Errorf("mark returned: %w", err)
	}
	return nil
}

// ListBorrowings возвращает выдачи, удовлетворяющие фильтру, начиная с последних.
func (t *pgTx) ListBorrowings(ctx context.Context, f BorrowingFilter) ([]model.Borrowing, error) {
	var where []goqu.Expression
	if len(f.IDs) > 0 {
		where = append(where, goqu.C("id").In(f.IDs))
	}
	if f.MemberID != 0 {
		where = append(where, goqu.C("member_id").Eq(f.MemberID))
	}
	if f.BookID != 0 {
		where = append(where, goqu.C("book_id").Eq(f.BookID))
	}
	if f.OpenOnly {
		where = append(where, goqu.C("returned").IsFalse())
	}
	if f.DueFrom != nil {
		where = append(where, goqu.C("due_date").Gte(*f.DueFrom))
	}
	if f.DueTo != nil {
		where = append(where, goqu.C("due_date").Lte(*f.DueTo))
	}
	if f.DueBefore != nil {
		where = append(where, goqu.C("due_date").Lt(*f.DueBefore))
	}

	ds := goqu.Dialect(dialectPostgres).From("borrowings").
		Select(borrowingColumns...).
		Where(where...).
		Order(goqu.C("borrow_date").Desc(), goqu.C("id").Desc())

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := t.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select borrowings: %w", err)
	}
	defer rows.Close()

	var res []model.Borrowing
	for rows.Next() {
		b, err := scanBorrowing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan borrowing: %w", err)
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
