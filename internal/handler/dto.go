package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/library-circulation/internal/model"
	"github.com/mmeshcher/library-circulation/internal/service"
)

type bookResponse struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title"`
	DisplayName     string          `json:"display_name"`
	ISBN            string          `json:"isbn,omitempty"`
	Author          string          `json:"author"`
	Publisher       string          `json:"publisher,omitempty"`
	PublicationYear int             `json:"publication_year,omitempty"`
	Edition         string          `json:"edition,omitempty"`
	Pages           int             `json:"pages,omitempty"`
	Language        string          `json:"language"`
	BorrowPrice     decimal.Decimal `json:"borrow_price"`
	Status          string          `json:"status"`
	Rating          int             `json:"rating,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	AddedDate       string          `json:"added_date"`
}

func newBookResponse(b model.Book) bookResponse {
	return bookResponse{
		ID:              b.ID,
		Title:           b.Title,
		DisplayName:     b.DisplayName(),
		ISBN:            b.ISBN,
		Author:          b.Author,
		Publisher:       b.Publisher,
		PublicationYear: b.PublicationYear,
		Edition:         b.Edition,
		Pages:           b.Pages,
		Language:        string(b.Language),
		BorrowPrice:     b.BorrowPrice,
		Status:          string(b.Status),
		Rating:          int(b.Rating),
		Notes:           b.Notes,
		AddedDate:       formatDate(b.AddedDate),
	}
}

type bookStatsResponse struct {
	CurrentBorrowing   *borrowingResponse `json:"current_borrowing,omitempty"`
	TotalBorrowings    int                `json:"total_borrowings"`
	Popularity         float64            `json:"popularity"`
	LastBorrowed       *string            `json:"last_borrowed,omitempty"`
	ActiveBorrowers    int                `json:"active_borrowers"`
	TotalBorrowers     int                `json:"total_borrowers"`
	CurrentBorrowerIDs []int64            `json:"current_borrower_ids"`
}

type bookDetailsResponse struct {
	bookResponse
	Stats bookStatsResponse `json:"stats"`
}

func newBookDetailsResponse(d service.BookDetails) bookDetailsResponse {
	st := bookStatsResponse{
		TotalBorrowings:    d.Stats.TotalBorrowings,
		Popularity:         d.Stats.Popularity,
		LastBorrowed:       formatDatePtr(d.Stats.LastBorrowed),
		ActiveBorrowers:    d.Stats.ActiveBorrowers,
		TotalBorrowers:     d.Stats.TotalBorrowers,
		CurrentBorrowerIDs: d.Stats.CurrentBorrowerIDs,
	}
	if st.CurrentBorrowerIDs == nil {
		st.CurrentBorrowerIDs = []int64{}
	}
	if d.Stats.CurrentBorrowing != nil {
		b := newBorrowingResponse(*d.Stats.CurrentBorrowing)
		st.CurrentBorrowing = &b
	}
	return bookDetailsResponse{bookResponse: newBookResponse(d.Book), Stats: st}
}

type borrowingResponse struct {
	ID         int64           `json:"id"`
	MemberID   int64           `json:"member_id"`
	BookID     int64           `json:"book_id"`
	BorrowDate string          `json:"borrow_date"`
	DueDate    string          `json:"due_date"`
	Returned   bool            `json:"returned"`
	ReturnDate *string         `json:"return_date,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	ExpenseID  *string         `json:"expense_id,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

func newBorrowingResponse(b model.Borrowing) borrowingResponse {
	resp := borrowingResponse{
		ID:         b.ID,
		MemberID:   b.MemberID,
		BookID:     b.BookID,
		BorrowDate: formatDate(b.BorrowDate),
		DueDate:    formatDate(b.DueDate),
		Returned:   b.Returned,
		ReturnDate: formatDatePtr(b.ReturnDate),
		Amount:     b.Amount,
		Notes:      b.Notes,
	}
	if b.ExpenseID != nil {
		id := b.ExpenseID.String()
		resp.ExpenseID = &id
	}
	return resp
}

func newBorrowingsResponse(bs []model.Borrowing) []borrowingResponse {
	resp := make([]borrowingResponse, 0, len(bs))
	for _, b := range bs {
		resp = append(resp, newBorrowingResponse(b))
	}
	return resp
}

type budgetResponse struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Allocated  decimal.Decimal `json:"allocated"`
	Spent      decimal.Decimal `json:"spent"`
	Remaining  decimal.Decimal `json:"remaining"`
	PeriodType string          `json:"period_type"`
	DateFrom   string          `json:"date_from"`
	DateTo     string          `json:"date_to"`
	State      string          `json:"state"`
}

type memberResponse struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Email            string          `json:"email,omitempty"`
	Phone            string          `json:"phone,omitempty"`
	BudgetID         int64           `json:"budget_id,omitempty"`
	CreatedDate      string          `json:"created_date"`
	Budget           *budgetResponse `json:"budget,omitempty"`
	ActiveBorrowings *int            `json:"active_borrowings,omitempty"`
	TotalBorrowings  *int            `json:"total_borrowings,omitempty"`
}

func newMemberResponse(m model.Member) memberResponse {
	return memberResponse{
		ID:          m.ID,
		Name:        m.Name,
		Email:       m.Email,
		Phone:       m.Phone,
		BudgetID:    m.BudgetID,
		CreatedDate: formatDate(m.CreatedDate),
	}
}

func newMemberDetailsResponse(d service.MemberDetails) memberResponse {
	resp := newMemberResponse(d.Member)
	resp.ActiveBorrowings = &d.Stats.ActiveBorrowings
	resp.TotalBorrowings = &d.Stats.TotalBorrowings
	if d.Budget != nil {
		resp.Budget = &budgetResponse{
			ID:         d.Budget.ID,
			Name:       d.Budget.Name,
			Allocated:  d.Budget.Allocated,
			Spent:      d.Budget.Spent,
			Remaining:  d.Budget.Remaining(),
			PeriodType: d.Budget.PeriodType,
			DateFrom:   formatDate(d.Budget.DateFrom),
			DateTo:     formatDate(d.Budget.DateTo),
			State:      string(d.Budget.State),
		}
	}
	return resp
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(model.DateLayout)
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatDate(*t)
	return &s
}
