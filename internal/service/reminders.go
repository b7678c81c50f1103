package service

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/library-circulation/internal/model"
	"github.com/mmeshcher/library-circulation/internal/notifier"
	"github.com/mmeshcher/library-circulation/internal/repository"
)

// ReminderKind определяет, по каким выдачам отправляется напоминание.
type ReminderKind string

const (
	ReminderDueToday ReminderKind = "due_today"
	ReminderDueSoon  ReminderKind = "due_soon"
	ReminderOverdue  ReminderKind = "overdue"
)

const (
	// dueSoonDays - горизонт напоминания о скором сроке возврата.
	dueSoonDays = 3
	// maxReminderAttempts ограничивает число попыток отправки одного напоминания при 429.
	maxReminderAttempts = 3
)

// Valid сообщает, известен ли вид напоминания.
func (k ReminderKind) Valid() bool {
	switch k {
	case ReminderDueToday, ReminderDueSoon, ReminderOverdue:
		return true
	}
	return false
}

// ReminderCandidates отбирает открытые выдачи для напоминания относительно даты today.
func (s *Service) ReminderCandidates(ctx context.Context, kind ReminderKind, today time.Time) ([]model.Borrowing, error) {
	f, err := reminderFilter(kind, model.Day(today))
	if err != nil {
		return nil, err
	}
	return s.ListBorrowings(ctx, f)
}

func reminderFilter(kind ReminderKind, today time.Time) (repository.BorrowingFilter, error) {
	f := repository.BorrowingFilter{OpenOnly: true}
	switch kind {
	case ReminderDueToday:
		f.DueFrom, f.DueTo = &today, &today
	case ReminderDueSoon:
		until := today.AddDate(0, 0, dueSoonDays)
		f.DueFrom, f.DueTo = &today, &until
	case ReminderOverdue:
		f.DueBefore = &today
	default:
		return f, model.NewValidationError("reminder_type", "please select a reminder type")
	}
	return f, nil
}

// StartReminderDispatch запускает фоновую отправку напоминаний с заданным интервалом.
// Без клиента уведомлений ничего не делает.
func (s *Service) StartReminderDispatch(ctx context.Context, interval time.Duration) {
	if s.notifier == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.DispatchReminders(ctx); err != nil {
					s.logger.Warn("reminder dispatch failed", zap.Error(err))
				}
			}
		}
	}()
}

// DispatchReminders отправляет напоминания о скором и просроченном возврате
// и возвращает число доставленных напоминаний.
func (s *Service) DispatchReminders(ctx context.Context) (int, error) {
	if s.notifier == nil {
		return 0, nil
	}

	today := s.today()
	sent := 0
	for _, kind := range []ReminderKind{ReminderDueSoon, ReminderOverdue} {
		borrowings, err := s.ReminderCandidates(ctx, kind, today)
		if err != nil {
			return sent, err
		}

		for _, b := range borrowings {
			_, days := b.Overdue(today)
			delivered, err := s.sendReminder(ctx, notifier.Reminder{
				Kind:        string(kind),
				BorrowingID: b.ID,
				MemberID:    b.MemberID,
				BookID:      b.BookID,
				DueDate:     b.DueDate.Format(model.DateLayout),
				DaysOverdue: days,
			})
			if err != nil {
				return sent, err
			}
			if delivered {
				sent++
			}
		}
	}
	return sent, nil
}

// sendReminder отправляет одно напоминание, повторяя его после Retry-After, пока сервис
// уведомлений отвечает 429. Ошибка возвращается только при отмене контекста.
func (s *Service) sendReminder(ctx context.Context, r notifier.Reminder) (bool, error) {
	for attempt := 1; attempt <= maxReminderAttempts; attempt++ {
		status, retryAfter, err := s.notifier.SendReminder(ctx, r)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			s.logger.Warn("send reminder", zap.Int64("borrowingID", r.BorrowingID), zap.Error(err))
			return false, nil
		}
		if status != http.StatusTooManyRequests {
			return true, nil
		}

		s.logger.Info("notifier rate limited",
			zap.Int64("borrowingID", r.BorrowingID),
			zap.Int("attempt", attempt),
			zap.Duration("retryAfter", retryAfter),
		)
		if attempt == maxReminderAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(retryAfter):
		}
	}

	s.logger.Warn("reminder dropped after rate limiting", zap.Int64("borrowingID", r.BorrowingID))
	return false, nil
}
