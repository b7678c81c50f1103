// Package handler содержит HTTP-обработчики API сервиса выдачи книг.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/library-circulation/internal/middleware"
	"github.com/mmeshcher/library-circulation/internal/model"
	"github.com/mmeshcher/library-circulation/internal/repository"
	"github.com/mmeshcher/library-circulation/internal/service"
	"github.com/mmeshcher/library-circulation/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)

	RegisterMember(ctx context.Context, userID int64, in service.NewMember) (*model.Member, error)
	GetMember(ctx context.Context, id int64) (*service.MemberDetails, error)

	AddBook(ctx context.Context, b model.Book) (*model.Book, error)
	GetBook(ctx context.Context, id int64) (*service.BookDetails, error)
	ListBooks(ctx context.Context, f repository.BookFilter) ([]model.Book, error)
	MarkAvailable(ctx context.Context, id int64) error
	MarkCheckedOut(ctx context.Context, id int64) error
	MarkMaintenance(ctx context.Context, id int64) error
	SetRating(ctx context.Context, id int64, rating model.Rating) error

	Checkout(ctx context.Context, req service.CheckoutRequest) (*model.Borrowing, error)
	ReturnBook(ctx context.Context, borrowingID int64, returnDate *time.Time) (*model.Borrowing, error)
	GetBorrowing(ctx context.Context, id int64) (*model.Borrowing, error)
	ComputeFine(ctx context.Context, borrowingID int64, asOf time.Time) (decimal.Decimal, error)
	IsOverdue(ctx context.Context, borrowingID int64, asOf time.Time) (bool, int, error)
	OverdueBorrowings(ctx context.Context, asOf time.Time) ([]model.Borrowing, error)

	QuickBorrowWarnings(ctx context.Context, memberID, bookID int64) ([]string, error)
	QuickBorrow(ctx context.Context, req service.QuickBorrowRequest) (*service.QuickBorrowResult, error)
	BatchBorrow(ctx context.Context, req service.BatchBorrowRequest) ([]model.Borrowing, error)
	BatchReturn(ctx context.Context, req service.BatchReturnRequest) (*service.BatchReturnResult, error)
	ExecuteMassOperation(ctx context.Context, op service.MassOperation) (*service.MassOperationResult, error)
	ReminderCandidates(ctx context.Context, kind service.ReminderKind, today time.Time) ([]model.Borrowing, error)
}

// Handler реализует HTTP-обработчики API сервиса выдачи книг.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	now            func() time.Time
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		now:            time.Now,
	}
}

type credentialsRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Register обрабатывает регистрацию нового сотрудника.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, model.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию сотрудника и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// decode разбирает JSON-тело запроса и проверяет теги validate.
// При ошибке ответ уже записан и возвращается false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, false)
}

// decodeOptional работает как decode, но пустое тело оставляет dst без изменений.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, true)
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	defer r.Body.Close()

	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !(optional && errors.Is(err, io.EOF)) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	if err := validation.Struct(dst); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// writeError отображает ошибку сервиса в HTTP-статус. Неизвестные ошибки логируются.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, model.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, model.ErrBookUnavailable),
		errors.Is(err, model.ErrDuplicateOpenBorrowing),
		errors.Is(err, model.ErrNoBudget):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, context.Canceled):
		// клиент ушёл, отвечать некому
	default:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response", zap.Error(err))
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// parseOptionalDate разбирает дату YYYY-MM-DD. Пустая строка даёт nil.
func parseOptionalDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := model.ParseDate(s)
	if err != nil {
		return nil, model.NewValidationError(field, "expected date in format "+model.DateLayout)
	}
	return &t, nil
}

// dateOrToday разбирает дату из query-параметра, по умолчанию возвращает сегодняшнюю.
func (h *Handler) dateOrToday(field, s string) (time.Time, error) {
	t, err := parseOptionalDate(field, s)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return model.Today(h.now), nil
	}
	return *t, nil
}

func middlewareUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}
