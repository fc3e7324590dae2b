package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"optikpos/backend/internal/domain"
	"optikpos/backend/internal/store"
	"optikpos/backend/internal/xid"
)

func (s *Service) CreateExpense(ctx context.Context, actorID string, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validateStruct(req); err != nil {
		return domain.Expense{}, err
	}
	category, err := domain.ParseExpenseCategory(req.Category)
	if err != nil {
		return domain.Expense{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	now := s.now()
	expenseDate := now
	if req.ExpenseDate != nil {
		expenseDate = req.ExpenseDate.UTC()
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		ID:          xid.New(""),
		Title:       req.Title,
		Amount:      req.Amount,
		Category:    category,
		ExpenseDate: expenseDate,
		CreatedBy:   actorID,
		CreatedAt:   now,
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.logger.Info("expense recorded",
		slog.String("category", string(created.Category)),
		slog.Int64("amount", created.Amount),
	)
	s.invalidateDashboard(ctx)
	return *created, nil
}

// ListExpenses returns expenses dated within rng, newest first.
func (s *Service) ListExpenses(ctx context.Context, rng domain.DateRange) ([]domain.Expense, error) {
	if err := validateRange(rng); err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, rng)
}
