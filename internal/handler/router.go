package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/library-circulation/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса выдачи книг.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/members", h.RegisterMember)
			r.Get("/members/{id}", h.GetMember)

			r.Post("/books", h.AddBook)
			r.Get("/books", h.ListBooks)
			r.Get("/books/{id}", h.GetBook)
			r.Post("/books/{id}/status", h.SetBookStatus)
			r.Post("/books/{id}/rating", h.SetBookRating)

			r.Post("/borrowings", h.Checkout)
			r.Get("/borrowings/overdue", h.GetOverdue)
			r.Get("/borrowings/{id}", h.GetBorrowing)
			r.Post("/borrowings/{id}/return", h.ReturnBook)
			r.Get("/borrowings/{id}/fine", h.GetFine)

			r.Route("/wizards", func(r chi.Router) {
				r.Get("/quick-borrow", h.QuickBorrowWarnings)
				r.Post("/quick-borrow", h.QuickBorrow)
				r.Post("/batch-borrow", h.BatchBorrow)
				r.Post("/batch-return", h.BatchReturn)
				r.Post("/mass-operation", h.MassOperation)
			})

			r.Get("/reminders", h.GetReminders)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
