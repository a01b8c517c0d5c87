package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/hivestin/internal/audit"
	"github.com/mmeshcher/hivestin/internal/mailer"
	"github.com/mmeshcher/hivestin/internal/model"
	"github.com/mmeshcher/hivestin/internal/roi"
	"github.com/mmeshcher/hivestin/internal/validation"
)

// WithdrawalCurrency задаёт единственную валюту вывода.
const WithdrawalCurrency = "USDT"

// WithdrawalAction описывает решение администратора по выводу.
type WithdrawalAction string

const (
	WithdrawalApprove WithdrawalAction = "approve"
	WithdrawalReject  WithdrawalAction = "reject"
)

// WithdrawalEligibility описывает, что пользователь может вывести прямо сейчас.
type WithdrawalEligibility struct {
	Eligible            bool            `json:"eligible"`
	HasActiveInvestment bool            `json:"has_active_investment"`
	AvailableProfit     decimal.Decimal `json:"available_profit"`
	InvestmentAmount    decimal.Decimal `json:"investment_amount"`
	InvestmentDate      *time.Time      `json:"investment_date,omitempty"`
	DaysSinceInvestment int64           `json:"days_since_investment"`
	PrincipalUnlocked   bool            `json:"principal_unlocked"`
	DaysUntilUnlock     int64           `json:"days_until_unlock"`
	Message             string          `json:"message"`
}

// latestCompleted возвращает самый свежий подтверждённый депозит.
func latestCompleted(deposits []model.Deposit) *model.Deposit {
	var latest *model.Deposit
	for i := range deposits {
		d := &deposits[i]
		if d.Status != model.StatusCompleted {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			latest = d
		}
	}
	return latest
}

// CheckWithdrawalEligibility рассчитывает доступность прибыли и тела вклада к выводу.
func (s *Service) CheckWithdrawalEligibility(ctx context.Context, userID int64) (*WithdrawalEligibility, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	deposits, err := s.repo.ListDepositsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	active := latestCompleted(deposits)
	if active == nil {
		return &WithdrawalEligibility{
			AvailableProfit: decimal.Zero,
			Message:         "No active investment found",
		}, nil
	}

	e := roi.CheckEligibility(active.CreatedAt, s.now(), u.Profit)

	msg := "Investment amount is now available for withdrawal"
	if !e.PrincipalUnlocked {
		msg = fmt.Sprintf("Investment amount will be available for withdrawal in %d days", e.DaysUntilUnlock)
	}

	created := active.CreatedAt
	return &WithdrawalEligibility{
		Eligible:            true,
		HasActiveInvestment: true,
		AvailableProfit:     e.WithdrawableProfit,
		InvestmentAmount:    active.Amount,
		InvestmentDate:      &created,
		DaysSinceInvestment: e.DaysElapsed,
		PrincipalUnlocked:   e.PrincipalUnlocked,
		DaysUntilUnlock:     e.DaysUntilUnlock,
		Message:             msg,
	}, nil
}

// RequestWithdrawal создаёт запрос на вывод прибыли. Сумма сразу списывается с прибыли.
func (s *Service) RequestWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, wallet string) (*model.Withdrawal, error) {
	if !amount.IsPositive() {
		return nil, roi.ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return nil, fmt.Errorf("%w: amount has more than 2 decimal places", ErrValidation)
	}
	if !validation.IsValidTRC20Address(wallet) {
		return nil, fmt.Errorf("%w: invalid TRC20 wallet address", ErrValidation)
	}

	w := &model.Withdrawal{
		UserID:        userID,
		Amount:        amount,
		Currency:      WithdrawalCurrency,
		WalletAddress: wallet,
		Reference:     uuid.NewString(),
	}
	if _, err := s.repo.CreateWithdrawal(ctx, w); err != nil {
		return nil, err
	}

	s.record(ctx, userID, audit.ActionWithdrawalRequest, withdrawalTarget(w.ID), amount.String())
	s.notifyUser(ctx, userID, mailer.WithdrawalRequest, withdrawalMail(w))

	return w, nil
}

// GetWithdrawalsByUser возвращает историю выводов пользователя.
func (s *Service) GetWithdrawalsByUser(ctx context.Context, userID int64) ([]model.Withdrawal, error) {
	return s.repo.ListWithdrawalsByUser(ctx, userID)
}

// ListWithdrawals возвращает выводы всех пользователей с фильтром по статусу.
func (s *Service) ListWithdrawals(ctx context.Context, status model.TransactionStatus) ([]model.Withdrawal, error) {
	return s.repo.ListWithdrawals(ctx, status)
}

// DecideWithdrawal одобряет или отклоняет ожидающий вывод. При отклонении прибыль восстанавливается.
func (s *Service) DecideWithdrawal(ctx context.Context, adminID, withdrawalID int64, action WithdrawalAction) (*model.Withdrawal, error) {
	var (
		w     *model.Withdrawal
		err   error
		tmpl  mailer.Template
		event string
	)

	switch action {
	case WithdrawalApprove:
		w, err = s.repo.ApproveWithdrawal(ctx, withdrawalID, s.now())
		tmpl, event = mailer.WithdrawalApproved, audit.ActionWithdrawalApproved
	case WithdrawalReject:
		w, err = s.repo.RejectWithdrawal(ctx, withdrawalID, s.now())
		tmpl, event = mailer.WithdrawalRejected, audit.ActionWithdrawalRejected
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}
	if err != nil {
		return nil, err
	}

	s.record(ctx, adminID, event, withdrawalTarget(w.ID), w.Amount.String())
	s.notifyUser(ctx, w.UserID, tmpl, withdrawalMail(w))

	return w, nil
}

func withdrawalMail(w *model.Withdrawal) map[string]any {
	return map[string]any{
		"Amount":        w.Amount.StringFixed(2),
		"WalletAddress": w.WalletAddress,
		"Reference":     w.Reference,
	}
}

func withdrawalTarget(id int64) string {
	return "withdrawal:" + strconv.FormatInt(id, 10)
}
