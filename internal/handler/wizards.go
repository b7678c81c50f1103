package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/library-circulation/internal/model"
	"github.com/mmeshcher/library-circulation/internal/service"
)

type quickBorrowRequest struct {
	MemberID int64  `json:"member_id" validate:"required,gt=0"`
	BookID   int64  `json:"book_id" validate:"required,gt=0"`
	DueDate  string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Notes    string `json:"notes"`
}

type quickBorrowResponse struct {
	Borrowing borrowingResponse `json:"borrowing"`
	Warnings  []string          `json:"warnings,omitempty"`
	Message   string            `json:"message"`
}

type warningsResponse struct {
	Warnings []string `json:"warnings"`
}

// QuickBorrowWarnings возвращает предупреждения для пары читатель-книга.
func (h *Handler) QuickBorrowWarnings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bookID, err := strconv.ParseInt(q.Get("book_id"), 10, 64)
	if err != nil || bookID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	var memberID int64
	if s := q.Get("member_id"); s != "" {
		memberID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
	}

	warnings, err := h.service.QuickBorrowWarnings(r.Context(), memberID, bookID)
	if err != nil {
		h.writeError(w, err, "quick borrow warnings error", zap.Int64("bookID", bookID))
		return
	}
	if warnings == nil {
		warnings = []string{}
	}

	h.writeJSON(w, http.StatusOK, warningsResponse{Warnings: warnings})
}

// QuickBorrow выдаёт книгу через мастер быстрой выдачи.
func (h *Handler) QuickBorrow(w http.ResponseWriter, r *http.Request) {
	var req quickBorrowRequest
	if !h.decode(w, r, &req) {
		return
	}

	dueDate, err := parseOptionalDate("due_date", req.DueDate)
	if err != nil {
		h.writeError(w, err, "quick borrow error")
		return
	}

	res, err := h.service.QuickBorrow(r.Context(), service.QuickBorrowRequest{
		MemberID: req.MemberID,
		BookID:   req.BookID,
		DueDate:  dueDate,
		Notes:    req.Notes,
	})
	if err != nil {
		h.writeError(w, err, "quick borrow error",
			zap.Int64("memberID", req.MemberID),
			zap.Int64("bookID", req.BookID),
		)
		return
	}

	h.writeJSON(w, http.StatusCreated, quickBorrowResponse{
		Borrowing: newBorrowingResponse(res.Borrowing),
		Warnings:  res.Warnings,
		Message:   res.Message,
	})
}

type batchBorrowRequest struct {
	MemberID   int64   `json:"member_id" validate:"required,gt=0"`
	BookIDs    []int64 `json:"book_ids" validate:"required,min=1,dive,gt=0"`
	BorrowDate string  `json:"borrow_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate    string  `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Notes      string  `json:"notes"`
}

type unavailableResponse struct {
	Error  string   `json:"error"`
	Titles []string `json:"titles"`
}

// BatchBorrow выдаёт читателю несколько книг сразу: все или ни одной.
func (h *Handler) BatchBorrow(w http.ResponseWriter, r *http.Request) {
	var req batchBorrowRequest
	if !h.decode(w, r, &req) {
		return
	}

	borrowDate, err := parseOptionalDate("borrow_date", req.BorrowDate)
	if err != nil {
		h.writeError(w, err, "batch borrow error")
		return
	}
	dueDate, err := parseOptionalDate("due_date", req.DueDate)
	if err != nil {
		h.writeError(w, err, "batch borrow error")
		return
	}

	borrowings, err := h.service.BatchBorrow(r.Context(), service.BatchBorrowRequest{
		MemberID:   req.MemberID,
		BookIDs:    req.BookIDs,
		BorrowDate: borrowDate,
		DueDate:    dueDate,
		Notes:      req.Notes,
	})
	if err != nil {
		var unavailable *model.UnavailableBooksError
		if errors.As(err, &unavailable) {
			h.writeJSON(w, http.StatusConflict, unavailableResponse{
				Error:  unavailable.Error(),
				Titles: unavailable.Titles,
			})
			return
		}
		h.writeError(w, err, "batch borrow error", zap.Int64("memberID", req.MemberID))
		return
	}

	h.writeJSON(w, http.StatusCreated, newBorrowingsResponse(borrowings))
}

type batchReturnRequest struct {
	MemberID     int64   `json:"member_id" validate:"required,gt=0"`
	BorrowingIDs []int64 `json:"borrowing_ids" validate:"dive,gt=0"`
	ReturnDate   string  `json:"return_date" validate:"omitempty,datetime=2006-01-02"`
	ApplyFine    bool    `json:"apply_fine"`
	Notes        string  `json:"notes"`
}

type batchReturnResponse struct {
	Returned    []borrowingResponse `json:"returned"`
	Skipped     []int64             `json:"skipped,omitempty"`
	FineTotal   decimal.Decimal     `json:"fine_total"`
	FineApplied bool                `json:"fine_applied"`
	Message     string              `json:"message"`
}

// BatchReturn возвращает несколько книг читателя и считает суммарный штраф.
func (h *Handler) BatchReturn(w http.ResponseWriter, r *http.Request) {
	var req batchReturnRequest
	if !h.decode(w, r, &req) {
		return
	}

	returnDate, err := parseOptionalDate("return_date", req.ReturnDate)
	if err != nil {
		h.writeError(w, err, "batch return error")
		return
	}

	res, err := h.service.BatchReturn(r.Context(), service.BatchReturnRequest{
		MemberID:     req.MemberID,
		BorrowingIDs: req.BorrowingIDs,
		ReturnDate:   returnDate,
		ApplyFine:    req.ApplyFine,
		Notes:        req.Notes,
	})
	if err != nil {
		h.writeError(w, err, "batch return error", zap.Int64("memberID", req.MemberID))
		return
	}

	h.writeJSON(w, http.StatusOK, batchReturnResponse{
		Returned:    newBorrowingsResponse(res.Returned),
		Skipped:     res.Skipped,
		FineTotal:   res.FineTotal,
		FineApplied: res.FineApplied,
		Message:     res.Message,
	})
}

type massOperationRequest struct {
	OperationType string  `json:"operation_type" validate:"required,oneof=change_status update_rating send_reminder"`
	BookIDs       []int64 `json:"book_ids" validate:"dive,gt=0"`
	NewStatus     string  `json:"new_status"`
	NewRating     int     `json:"new_rating"`
	ReminderType  string  `json:"reminder_type"`
}

type massOperationResponse struct {
	Affected   int                 `json:"affected"`
	Borrowings []borrowingResponse `json:"borrowings,omitempty"`
	Message    string              `json:"message"`
}

// MassOperation выполняет массовую операцию над книгами или выдачами.
func (h *Handler) MassOperation(w http.ResponseWriter, r *http.Request) {
	var req massOperationRequest
	if !h.decode(w, r, &req) {
		return
	}

	var op service.MassOperation
	switch req.OperationType {
	case "change_status":
		op = service.ChangeStatus{BookIDs: req.BookIDs, Status: model.BookStatus(req.NewStatus)}
	case "update_rating":
		op = service.UpdateRating{BookIDs: req.BookIDs, Rating: model.Rating(req.NewRating)}
	case "send_reminder":
		op = service.SendReminder{Kind: service.ReminderKind(req.ReminderType)}
	}

	res, err := h.service.ExecuteMassOperation(r.Context(), op)
	if err != nil {
		h.writeError(w, err, "mass operation error", zap.String("operation", req.OperationType))
		return
	}

	resp := massOperationResponse{Affected: res.Affected, Message: res.Message}
	if len(res.Borrowings) > 0 {
		resp.Borrowings = newBorrowingsResponse(res.Borrowings)
	}
	h.writeJSON(w, http.StatusOK, resp)
}
