package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/library-circulation/internal/model"
	"github.com/mmeshcher/library-circulation/internal/repository"
)

// MassOperation - операция над набором книг или выдач.
// Реализации: ChangeStatus, UpdateRating, SendReminder.
type MassOperation interface {
	massOperation()
}

// ChangeStatus меняет статус выбранных книг.
type ChangeStatus struct {
	BookIDs []int64
	Status  model.BookStatus
}

// UpdateRating задаёт оценку выбранным книгам.
type UpdateRating struct {
	BookIDs []int64
	Rating  model.Rating
}

// SendReminder отбирает выдачи, по которым нужно напомнить читателю.
type SendReminder struct {
	Kind ReminderKind
}

func (ChangeStatus) massOperation() {}
func (UpdateRating) massOperation() {}
func (SendReminder) massOperation() {}

// MassOperationResult содержит итог массовой операции.
type MassOperationResult struct {
	Affected   int
	Borrowings []model.Borrowing
	Message    string
}

// ExecuteMassOperation выполняет массовую операцию. Изменения книг применяются в одной транзакции.
func (s *Service) ExecuteMassOperation(ctx context.Context, op MassOperation) (*MassOperationResult, error) {
	switch op := op.(type) {
	case ChangeStatus:
		return s.massChangeStatus(ctx, op)
	case UpdateRating:
		return s.massUpdateRating(ctx, op)
	case SendReminder:
		return s.massSendReminder(ctx, op)
	case nil:
		return nil, model.NewValidationError("operation_type", "please select an operation")
	default:
		return nil, model.NewValidationError("operation_type", fmt.Sprintf("unsupported operation %T", op))
	}
}

func (s *Service) massChangeStatus(ctx context.Context, op ChangeStatus) (*MassOperationResult, error) {
	if !op.Status.Valid() {
		return nil, model.NewValidationError("new_status", "please select a new status")
	}
	ids := uniqueSorted(op.BookIDs)
	if len(ids) == 0 {
		return &MassOperationResult{Message: "No books selected"}, nil
	}

	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		for _, id := range ids {
			if err := setStatusTx(ctx, tx, id, op.Status); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("mass status change", zap.Int("books", len(ids)), zap.String("status", string(op.Status)))
	return &MassOperationResult{
		Affected: len(ids),
		Message:  fmt.Sprintf("Status updated for %d books", len(ids)),
	}, nil
}

func (s *Service) massUpdateRating(ctx context.Context, op UpdateRating) (*MassOperationResult, error) {
	if op.Rating == model.RatingNone || !op.Rating.Valid() {
		return nil, model.NewValidationError("new_rating", "please select a new rating")
	}
	ids := uniqueSorted(op.BookIDs)
	if len(ids) == 0 {
		return &MassOperationResult{Message: "No books selected"}, nil
	}

	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		for _, id := range ids {
			if _, err := tx.GetBook(ctx, id); err != nil {
				return err
			}
			if err := tx.SetBookRating(ctx, id, op.Rating); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &MassOperationResult{
		Affected: len(ids),
		Message:  fmt.Sprintf("Rating updated for %d books", len(ids)),
	}, nil
}

func (s *Service) massSendReminder(ctx context.Context, op SendReminder) (*MassOperationResult, error) {
	borrowings, err := s.ReminderCandidates(ctx, op.Kind, s.today())
	if err != nil {
		return nil, err
	}
	return &MassOperationResult{
		Affected:   len(borrowings),
		Borrowings: borrowings,
		Message:    fmt.Sprintf("Reminders prepared for %d borrowings", len(borrowings)),
	}, nil
}
