package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/library-circulation/internal/model"
	"github.com/mmeshcher/library-circulation/internal/repository"
)

const (
	booksCategoryName = "Books"
	booksCategoryCode = "BOOKS"
	budgetPeriodType  = "monthly"
	budgetPeriodDays  = 30
)

// DefaultBudgetAllocation - сумма бюджета, выделяемая новому читателю.
var DefaultBudgetAllocation = decimal.NewFromInt(500)

// NewMember описывает данные для регистрации читателя.
type NewMember struct {
	Name  string
	Email string
	Phone string
}

// MemberDetails объединяет читателя, его бюджет и статистику выдач.
type MemberDetails struct {
	Member model.Member
	Budget *model.Budget
	Stats  model.MemberStats
}

// RegisterMember регистрирует читателя и в той же транзакции заводит ему бюджет
// на книги, чтобы читатель сразу мог брать книги.
func (s *Service) RegisterMember(ctx context.Context, userID int64, in NewMember) (*model.Member, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, model.NewValidationError("name", "is required")
	}
	if userID <= 0 {
		return nil, model.NewValidationError("user_id", "is required")
	}

	today := s.today()
	var res model.Member
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		category, err := tx.EnsureExpenseCategory(ctx, booksCategoryName, booksCategoryCode)
		if err != nil {
			return err
		}

		budget, err := tx.CreateBudget(ctx, model.Budget{
			Name:       "Book Budget - " + in.Name,
			CategoryID: category.ID,
			Allocated:  DefaultBudgetAllocation,
			Spent:      decimal.Zero,
			PeriodType: budgetPeriodType,
			DateFrom:   today,
			DateTo:     today.AddDate(0, 0, budgetPeriodDays),
			State:      model.BudgetStateActive,
		})
		if err != nil {
			return err
		}

		res, err = tx.CreateMember(ctx, model.Member{
			Name:        in.Name,
			Email:       in.Email,
			Phone:       in.Phone,
			UserID:      userID,
			BudgetID:    budget.ID,
			CreatedDate: today,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("member registered", zap.Int64("memberID", res.ID), zap.Int64("budgetID", res.BudgetID))
	return &res, nil
}

// GetMember возвращает читателя с бюджетом и статистикой выдач.
// Budget равен nil, если бюджет у читателя отсутствует.
func (s *Service) GetMember(ctx context.Context, id int64) (*MemberDetails, error) {
	var res MemberDetails
	err := s.repo.View(ctx, func(tx repository.Tx) error {
		member, err := tx.GetMember(ctx, id)
		if err != nil {
			return err
		}
		res.Member = member

		if member.BudgetID != 0 {
			budget, err := tx.GetBudget(ctx, member.BudgetID)
			switch {
			case err == nil:
				res.Budget = &budget
			case !errors.Is(err, model.ErrNotFound):
				return err
			}
		}

		borrowings, err := tx.ListBorrowings(ctx, repository.BorrowingFilter{MemberID: id})
		if err != nil {
			return err
		}
		res.Stats = model.ComputeMemberStats(borrowings)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
