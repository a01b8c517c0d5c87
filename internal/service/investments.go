package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/hivestin/internal/model"
	"github.com/mmeshcher/hivestin/internal/roi"
)

// Investment описывает подтверждённый депозит с текущей доходностью.
type Investment struct {
	ID              int64           `json:"id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PlanID          string          `json:"plan_id"`
	PlanName        string          `json:"plan_name"`
	WeeklyRate      decimal.Decimal `json:"weekly_rate"`
	StartedAt       time.Time       `json:"started_at"`
	WeeksElapsed    int64           `json:"weeks_elapsed"`
	AccruedProfit   decimal.Decimal `json:"accrued_profit"`
	DaysUntilUnlock int64           `json:"days_until_unlock"`
	Unlocked        bool            `json:"unlocked"`
}

// PortfolioStats содержит итоги по портфелю пользователя.
type PortfolioStats struct {
	TotalInvested     decimal.Decimal `json:"total_invested"`
	TotalProfit       decimal.Decimal `json:"total_profit"`
	ActiveInvestments int             `json:"active_investments"`
	ROI               decimal.Decimal `json:"roi_percent"`
}

// Portfolio содержит вклады пользователя и итоги по ним.
type Portfolio struct {
	Investments []Investment   `json:"investments"`
	Stats       PortfolioStats `json:"stats"`
}

// GetPortfolio рассчитывает портфель пользователя на текущий момент.
func (s *Service) GetPortfolio(ctx context.Context, userID int64) (*Portfolio, error) {
	deposits, err := s.repo.ListDepositsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &Portfolio{
		Investments: []Investment{},
		Stats: PortfolioStats{
			TotalInvested: decimal.Zero,
			TotalProfit:   decimal.Zero,
			ROI:           decimal.Zero,
		},
	}

	for _, d := range deposits {
		if d.Status != model.StatusCompleted {
			continue
		}

		inv := Investment{
			ID:         d.ID,
			Amount:     d.Amount,
			Currency:   d.Currency,
			PlanID:     d.PlanID,
			PlanName:   d.PlanID,
			WeeklyRate: decimal.Zero,
			StartedAt:  d.CreatedAt,
		}

		elapsed := now.Sub(d.CreatedAt)
		inv.WeeksElapsed = roi.ElapsedWeeks(elapsed)
		inv.AccruedProfit = decimal.Zero
		if pl, ok := s.plans.ByID(d.PlanID); ok {
			inv.PlanName = pl.Name
			inv.WeeklyRate = pl.WeeklyRate
			inv.AccruedProfit = roi.AccruedProfit(d.Amount, pl.WeeklyRate, elapsed).Round(2)
		}

		e := roi.CheckEligibility(d.CreatedAt, now, decimal.Zero)
		inv.DaysUntilUnlock = e.DaysUntilUnlock
		inv.Unlocked = e.PrincipalUnlocked

		p.Investments = append(p.Investments, inv)
		p.Stats.TotalInvested = p.Stats.TotalInvested.Add(inv.Amount)
		p.Stats.TotalProfit = p.Stats.TotalProfit.Add(inv.AccruedProfit)
	}

	p.Stats.ActiveInvestments = len(p.Investments)
	if p.Stats.TotalInvested.IsPositive() {
		p.Stats.ROI = p.Stats.TotalProfit.Div(p.Stats.TotalInvested).Mul(decimal.NewFromInt(100)).Round(2)
	}

	return p, nil
}

// TransactionRecord описывает строку общей истории депозитов и выводов.
type TransactionRecord struct {
	Type      string                  `json:"type"`
	ID        int64                   `json:"id"`
	Amount    decimal.Decimal         `json:"amount"`
	Currency  string                  `json:"currency"`
	Status    model.TransactionStatus `json:"status"`
	Reference string                  `json:"reference"`
	CreatedAt time.Time               `json:"created_at"`
}

// GetTransactionHistory возвращает депозиты и выводы пользователя в интервале [from, to], от новых к старым.
// Нулевые границы не ограничивают интервал.
func (s *Service) GetTransactionHistory(ctx context.Context, userID int64, from, to time.Time) ([]TransactionRecord, error) {
	deposits, err := s.repo.ListDepositsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.repo.ListWithdrawalsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	inRange := func(t time.Time) bool {
		if !from.IsZero() && t.Before(from) {
			return false
		}
		if !to.IsZero() && t.After(to) {
			return false
		}
		return true
	}

	var res []TransactionRecord
	for _, d := range deposits {
		if !inRange(d.CreatedAt) {
			continue
		}
		res = append(res, TransactionRecord{
			Type:      "deposit",
			ID:        d.ID,
			Amount:    d.Amount,
			Currency:  d.Currency,
			Status:    d.Status,
			Reference: d.TransactionHash,
			CreatedAt: d.CreatedAt,
		})
	}
	for _, w := range withdrawals {
		if !inRange(w.CreatedAt) {
			continue
		}
		res = append(res, TransactionRecord{
			Type:      "withdrawal",
			ID:        w.ID,
			Amount:    w.Amount,
			Currency:  w.Currency,
			Status:    w.Status,
			Reference: w.Reference,
			CreatedAt: w.CreatedAt,
		})
	}

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})

	return res, nil
}

// ExportTransactions записывает историю транзакций пользователя в CSV.
func (s *Service) ExportTransactions(ctx context.Context, userID int64, from, to time.Time, w io.Writer) error {
	records, err := s.GetTransactionHistory(ctx, userID, from, to)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"type", "id", "amount", "currency", "status", "reference", "created_at"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.Type,
			strconv.FormatInt(r.ID, 10),
			r.Amount.StringFixed(2),
			r.Currency,
			string(r.Status),
			r.Reference,
			r.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// GetProfitDistributions возвращает историю начислений прибыли пользователя.
func (s *Service) GetProfitDistributions(ctx context.Context, userID int64) ([]model.ProfitDistribution, error) {
	return s.repo.ListProfitDistributions(ctx, userID)
}
