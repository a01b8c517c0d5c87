package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/hivestin/internal/audit"
	"github.com/mmeshcher/hivestin/internal/mailer"
	"github.com/mmeshcher/hivestin/internal/model"
	"github.com/mmeshcher/hivestin/internal/repository"
	"github.com/mmeshcher/hivestin/internal/roi"
	"github.com/mmeshcher/hivestin/internal/validation"
)

const verifyBatchSize = 100

// SupportedCurrencies перечисляет валюты, для которых у платформы есть кошельки.
var SupportedCurrencies = []string{"USDT", "BTC", "ETH"}

// DepositAction описывает решение администратора по депозиту.
type DepositAction string

const (
	DepositApprove DepositAction = "approve"
	DepositReject  DepositAction = "reject"
	DepositVerify  DepositAction = "verify"
)

// CreateDeposit регистрирует депозит по хэшу транзакции и подбирает для него план.
func (s *Service) CreateDeposit(ctx context.Context, userID int64, amount decimal.Decimal, currency, txHash string) (*model.Deposit, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !amount.Equal(amount.Round(2)) {
		return nil, fmt.Errorf("%w: amount must have at most 2 decimal places", ErrValidation)
	}

	currency = upper(currency)
	if !slices.Contains(SupportedCurrencies, currency) {
		return nil, fmt.Errorf("%w: unsupported currency %q", ErrValidation, currency)
	}

	if !validation.IsValidTxHash(txHash) {
		return nil, fmt.Errorf("%w: invalid transaction hash", ErrValidation)
	}

	p, err := s.plans.Resolve(amount)
	if err != nil {
		return nil, err
	}

	d := &model.Deposit{
		UserID:          userID,
		Amount:          amount,
		Currency:        currency,
		TransactionHash: txHash,
		PlanID:          p.ID,
	}
	if _, err := s.repo.CreateDeposit(ctx, d); err != nil {
		return nil, err
	}

	return d, nil
}

// GetDepositsByUser возвращает депозиты пользователя.
func (s *Service) GetDepositsByUser(ctx context.Context, userID int64) ([]model.Deposit, error) {
	return s.repo.ListDepositsByUser(ctx, userID)
}

// DepositStatus возвращает депозит пользователя. Ожидающий депозит перед этим проверяется на бирже.
func (s *Service) DepositStatus(ctx context.Context, userID, depositID int64) (*model.Deposit, error) {
	d, err := s.repo.GetDeposit(ctx, depositID)
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, repository.ErrDepositNotFound
	}

	if d.Status != model.StatusPending || s.exchange == nil {
		return d, nil
	}

	verified, _, err := s.verifyDeposit(ctx, d)
	if err != nil {
		s.logger.Warn("verify deposit error", zap.Error(err), zap.Int64("depositID", d.ID))
		return d, nil
	}
	if verified != nil {
		return verified, nil
	}
	return d, nil
}

// verifyDeposit сверяет депозит с биржей и подтверждает его при успехе.
// Возвращает подтверждённый депозит или nil, а также паузу, которую запросила биржа.
func (s *Service) verifyDeposit(ctx context.Context, d *model.Deposit) (*model.Deposit, time.Duration, error) {
	rec, statusCode, retryAfter, err := s.exchange.GetDepositRecord(ctx, d.Currency, d.TransactionHash)
	if statusCode == http.StatusTooManyRequests {
		return nil, retryAfter, nil
	}
	if err != nil {
		return nil, 0, err
	}

	if rec == nil || !rec.Confirmed() {
		return nil, 0, nil
	}

	if rec.Amount.LessThan(d.Amount) {
		s.logger.Warn("exchange amount below deposit amount",
			zap.Int64("depositID", d.ID),
			zap.String("expected", d.Amount.String()),
			zap.String("received", rec.Amount.String()),
		)
		return nil, 0, nil
	}

	completed, err := s.completeDeposit(ctx, d.ID)
	if err != nil {
		return nil, 0, err
	}

	s.record(ctx, 0, audit.ActionDepositVerified, depositTarget(d.ID), d.TransactionHash)
	return completed, 0, nil
}

func (s *Service) completeDeposit(ctx context.Context, id int64) (*model.Deposit, error) {
	d, err := s.repo.CompleteDeposit(ctx, id, s.now())
	if err != nil {
		return nil, err
	}

	data := map[string]any{
		"Amount":     d.Amount.StringFixed(2),
		"Currency":   d.Currency,
		"PlanName":   d.PlanID,
		"WeeklyRate": "",
		"UnlockDate": formatDate(d.CreatedAt.AddDate(0, 0, roi.LockDays)),
	}
	if p, ok := s.plans.ByID(d.PlanID); ok {
		data["PlanName"] = p.Name
		data["WeeklyRate"] = p.WeeklyRate.String()
	}
	s.notifyUser(ctx, d.UserID, mailer.InvestmentConfirmation, data)

	return d, nil
}

// StartDepositVerification запускает фоновую проверку ожидающих депозитов через биржу.
func (s *Service) StartDepositVerification(ctx context.Context, interval time.Duration) {
	if s.exchange == nil {
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
				s.processVerificationBatch(ctx)
			}
		}
	}()
}

func (s *Service) processVerificationBatch(ctx context.Context) {
	deposits, err := s.repo.ListPendingDeposits(ctx, verifyBatchSize)
	if err != nil {
		s.logger.Error("list pending deposits error", zap.Error(err))
		return
	}

	for i := range deposits {
		d := &deposits[i]

		_, retryAfter, err := s.verifyDeposit(ctx, d)
		if err != nil {
			if !errors.Is(err, repository.ErrAlreadyDecided) {
				s.logger.Warn("verify deposit error", zap.Error(err), zap.Int64("depositID", d.ID))
			}
			continue
		}

		if retryAfter > 0 {
			timer := time.NewTimer(retryAfter)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

// ListDeposits возвращает депозиты всех пользователей с фильтром по статусу.
func (s *Service) ListDeposits(ctx context.Context, status model.TransactionStatus) ([]model.Deposit, error) {
	return s.repo.ListDeposits(ctx, status)
}

// DecideDeposit применяет решение администратора к ожидающему депозиту.
func (s *Service) DecideDeposit(ctx context.Context, adminID, depositID int64, action DepositAction) (*model.Deposit, error) {
	switch action {
	case DepositApprove:
		d, err := s.completeDeposit(ctx, depositID)
		if err != nil {
			return nil, err
		}
		s.record(ctx, adminID, audit.ActionDepositApproved, depositTarget(depositID), "")
		return d, nil

	case DepositReject:
		d, err := s.repo.FailDeposit(ctx, depositID, s.now())
		if err != nil {
			return nil, err
		}
		s.notifyUser(ctx, d.UserID, mailer.DepositRejected, map[string]any{
			"Amount":          d.Amount.StringFixed(2),
			"Currency":        d.Currency,
			"TransactionHash": d.TransactionHash,
		})
		s.record(ctx, adminID, audit.ActionDepositRejected, depositTarget(depositID), "")
		return d, nil

	case DepositVerify:
		if s.exchange == nil {
			return nil, ErrVerificationUnavailable
		}
		d, err := s.repo.GetDeposit(ctx, depositID)
		if err != nil {
			return nil, err
		}
		if d.Status != model.StatusPending {
			return nil, fmt.Errorf("%w: deposit %d is %s", repository.ErrAlreadyDecided, depositID, d.Status)
		}
		verified, _, err := s.verifyDeposit(ctx, d)
		if err != nil {
			return nil, err
		}
		if verified != nil {
			return verified, nil
		}
		return d, nil
	}

	return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, action)
}

func depositTarget(id int64) string {
	return "deposit:" + strconv.FormatInt(id, 10)
}
