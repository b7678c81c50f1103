package handler

import (
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/library-circulation/internal/service"
)

type checkoutRequest struct {
	MemberID   int64  `json:"member_id" validate:"required,gt=0"`
	BookID     int64  `json:"book_id" validate:"required,gt=0"`
	BorrowDate string `json:"borrow_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate    string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Notes      string `json:"notes"`
}

// Checkout выдаёт книгу читателю.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	borrowDate, err := parseOptionalDate("borrow_date", req.BorrowDate)
	if err != nil {
		h.writeError(w, err, "checkout error")
		return
	}
	dueDate, err := parseOptionalDate("due_date", req.DueDate)
	if err != nil {
		h.writeError(w, err, "checkout error")
		return
	}

	b, err := h.service.Checkout(r.Context(), service.CheckoutRequest{
		MemberID:   req.MemberID,
		BookID:     req.BookID,
		BorrowDate: borrowDate,
		DueDate:    dueDate,
		Notes:      req.Notes,
	})
	if err != nil {
		h.writeError(w, err, "checkout error",
			zap.Int64("memberID", req.MemberID),
			zap.Int64("bookID", req.BookID),
		)
		return
	}

	h.writeJSON(w, http.StatusCreated, newBorrowingResponse(*b))
}

// GetBorrowing возвращает выдачу по идентификатору.
func (h *Handler) GetBorrowing(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	b, err := h.service.GetBorrowing(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get borrowing error", zap.Int64("borrowingID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, newBorrowingResponse(*b))
}

type returnRequest struct {
	ReturnDate string `json:"return_date" validate:"omitempty,datetime=2006-01-02"`
}

// ReturnBook закрывает выдачу. Тело запроса необязательно.
func (h *Handler) ReturnBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req returnRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	returnDate, err := parseOptionalDate("return_date", req.ReturnDate)
	if err != nil {
		h.writeError(w, err, "return book error")
		return
	}

	b, err := h.service.ReturnBook(r.Context(), id, returnDate)
	if err != nil {
		h.writeError(w, err, "return book error", zap.Int64("borrowingID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, newBorrowingResponse(*b))
}

type fineResponse struct {
	BorrowingID int64           `json:"borrowing_id"`
	AsOf        string          `json:"as_of"`
	Overdue     bool            `json:"overdue"`
	DaysOverdue int             `json:"days_overdue"`
	Fine        decimal.Decimal `json:"fine"`
}

// GetFine возвращает штраф и признак просрочки на дату as_of (по умолчанию сегодня).
func (h *Handler) GetFine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	asOf, err := h.dateOrToday("as_of", r.URL.Query().Get("as_of"))
	if err != nil {
		h.writeError(w, err, "get fine error")
		return
	}

	overdue, days, err := h.service.IsOverdue(r.Context(), id, asOf)
	if err != nil {
		h.writeError(w, err, "get fine error", zap.Int64("borrowingID", id))
		return
	}
	fine, err := h.service.ComputeFine(r.Context(), id, asOf)
	if err != nil {
		h.writeError(w, err, "get fine error", zap.Int64("borrowingID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, fineResponse{
		BorrowingID: id,
		AsOf:        formatDate(asOf),
		Overdue:     overdue,
		DaysOverdue: days,
		Fine:        fine,
	})
}

// GetOverdue возвращает открытые выдачи, просроченные на дату as_of.
func (h *Handler) GetOverdue(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.dateOrToday("as_of", r.URL.Query().Get("as_of"))
	if err != nil {
		h.writeError(w, err, "get overdue error")
		return
	}

	borrowings, err := h.service.OverdueBorrowings(r.Context(), asOf)
	if err != nil {
		h.writeError(w, err, "get overdue error")
		return
	}

	if len(borrowings) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, newBorrowingsResponse(borrowings))
}

// GetReminders возвращает выдачи, по которым нужно отправить напоминание указанного вида.
func (h *Handler) GetReminders(w http.ResponseWriter, r *http.Request) {
	kind := service.ReminderKind(r.URL.Query().Get("kind"))
	today, err := h.dateOrToday("date", r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, err, "get reminders error")
		return
	}

	borrowings, err := h.service.ReminderCandidates(r.Context(), kind, today)
	if err != nil {
		h.writeError(w, err, "get reminders error", zap.String("kind", string(kind)))
		return
	}

	h.writeJSON(w, http.StatusOK, newBorrowingsResponse(borrowings))
}
