package handler

import (
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/library-circulation/internal/model"
	"github.com/mmeshcher/library-circulation/internal/repository"
	"github.com/mmeshcher/library-circulation/internal/service"
)

type addBookRequest struct {
	Title           string          `json:"title" validate:"required"`
	ISBN            string          `json:"isbn"`
	Author          string          `json:"author" validate:"required"`
	Publisher       string          `json:"publisher"`
	PublicationYear int             `json:"publication_year" validate:"gte=0"`
	Edition         string          `json:"edition"`
	Pages           int             `json:"pages" validate:"gte=0"`
	Language        string          `json:"language" validate:"omitempty,oneof=ar en fr es"`
	BorrowPrice     decimal.Decimal `json:"borrow_price"`
	Status          string          `json:"status" validate:"omitempty,oneof=available maintenance"`
	Rating          int             `json:"rating" validate:"gte=0,lte=5"`
	Notes           string          `json:"notes"`
	AddedDate       string          `json:"added_date" validate:"omitempty,datetime=2006-01-02"`
}

// AddBook добавляет книгу в каталог.
func (h *Handler) AddBook(w http.ResponseWriter, r *http.Request) {
	var req addBookRequest
	if !h.decode(w, r, &req) {
		return
	}

	added, err := parseOptionalDate("added_date", req.AddedDate)
	if err != nil {
		h.writeError(w, err, "add book error")
		return
	}

	b := model.Book{
		Title:           req.Title,
		ISBN:            req.ISBN,
		Author:          req.Author,
		Publisher:       req.Publisher,
		PublicationYear: req.PublicationYear,
		Edition:         req.Edition,
		Pages:           req.Pages,
		Language:        model.Language(req.Language),
		BorrowPrice:     req.BorrowPrice,
		Status:          model.BookStatus(req.Status),
		Rating:          model.Rating(req.Rating),
		Notes:           req.Notes,
	}
	if added != nil {
		b.AddedDate = *added
	}

	book, err := h.service.AddBook(r.Context(), b)
	if err != nil {
		h.writeError(w, err, "add book error", zap.String("title", req.Title))
		return
	}

	h.writeJSON(w, http.StatusCreated, newBookResponse(*book))
}

// ListBooks возвращает книги каталога, опционально отфильтрованные по статусу.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	status := model.BookStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	books, err := h.service.ListBooks(r.Context(), repository.BookFilter{Status: status})
	if err != nil {
		h.writeError(w, err, "list books error")
		return
	}

	if len(books) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]bookResponse, 0, len(books))
	for _, b := range books {
		resp = append(resp, newBookResponse(b))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetBook возвращает книгу со статистикой выдач.
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	details, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get book error", zap.Int64("bookID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, newBookDetailsResponse(*details))
}

type bookStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=available checked_out maintenance"`
}

// SetBookStatus переводит книгу в указанный статус.
func (h *Handler) SetBookStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req bookStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	var err error
	switch model.BookStatus(req.Status) {
	case model.BookStatusAvailable:
		err = h.service.MarkAvailable(r.Context(), id)
	case model.BookStatusCheckedOut:
		err = h.service.MarkCheckedOut(r.Context(), id)
	case model.BookStatusMaintenance:
		err = h.service.MarkMaintenance(r.Context(), id)
	}
	if err != nil {
		h.writeError(w, err, "set book status error", zap.Int64("bookID", id))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type bookRatingRequest struct {
	Rating int `json:"rating" validate:"required,min=1,max=5"`
}

// SetBookRating задаёт оценку книги.
func (h *Handler) SetBookRating(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req bookRatingRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.SetRating(r.Context(), id, model.Rating(req.Rating)); err != nil {
		h.writeError(w, err, "set book rating error", zap.Int64("bookID", id))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type memberRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

// RegisterMember регистрирует читателя от имени текущего сотрудника.
func (h *Handler) RegisterMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := middlewareUserID(w, r)
	if !ok {
		return
	}

	var req memberRequest
	if !h.decode(w, r, &req) {
		return
	}

	m, err := h.service.RegisterMember(r.Context(), userID, service.NewMember{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		h.writeError(w, err, "register member error", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusCreated, newMemberResponse(*m))
}

// GetMember возвращает читателя с бюджетом и статистикой выдач.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	details, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get member error", zap.Int64("memberID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, newMemberDetailsResponse(*details))
}
