package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/hivestin/internal/audit"
	"github.com/mmeshcher/hivestin/internal/mailer"
	"github.com/mmeshcher/hivestin/internal/model"
	"github.com/mmeshcher/hivestin/internal/roi"
)

// AccrualResult описывает итог одного прогона начисления прибыли.
type AccrualResult struct {
	Deposits int             `json:"deposits"`
	Credited int             `json:"credited"`
	Total    decimal.Decimal `json:"total"`
}

// RunAccrual начисляет недельную прибыль по всем подтверждённым депозитам.
// Повторный прогон в пределах той же недели ничего не начисляет.
func (s *Service) RunAccrual(ctx context.Context) (AccrualResult, error) {
	res := AccrualResult{Total: decimal.Zero}

	deposits, err := s.repo.ListCompletedDeposits(ctx)
	if err != nil {
		return res, fmt.Errorf("list completed deposits: %w", err)
	}

	now := s.now()
	for i := range deposits {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		d := &deposits[i]
		res.Deposits++

		p, ok := s.plans.ByID(d.PlanID)
		if !ok {
			s.logger.Warn("deposit references unknown plan", zap.Int64("depositID", d.ID), zap.String("planID", d.PlanID))
			continue
		}

		elapsed := now.Sub(d.CreatedAt)
		weeks := roi.ElapsedWeeks(elapsed)
		accrued := model.ToCents(roi.AccruedProfit(d.Amount, p.WeeklyRate, elapsed))

		credited, err := s.repo.CreditAccrual(ctx, d.ID, accrued, weeks, now)
		if err != nil {
			s.logger.Error("credit accrual error", zap.Error(err), zap.Int64("depositID", d.ID))
			continue
		}
		if credited == 0 {
			continue
		}

		amount := model.FromCents(credited)
		res.Credited++
		res.Total = res.Total.Add(amount)

		s.notifyUser(ctx, d.UserID, mailer.ProfitDistribution, map[string]any{
			"Amount":     amount.StringFixed(2),
			"PlanName":   p.Name,
			"WeeklyRate": p.WeeklyRate.String(),
			"NextDate":   formatDate(d.CreatedAt.Add(roi.Week*time.Duration(weeks+1))),
		})
	}

	s.logger.Info("accrual run finished",
		zap.Int("deposits", res.Deposits),
		zap.Int("credited", res.Credited),
		zap.String("total", res.Total.String()),
	)

	return res, nil
}

// RunAccrualAs запускает начисление по запросу администратора и пишет событие в журнал.
func (s *Service) RunAccrualAs(ctx context.Context, adminID int64) (AccrualResult, error) {
	res, err := s.RunAccrual(ctx)
	if err != nil {
		return res, err
	}
	s.record(ctx, adminID, audit.ActionAccrualRun, "accrual", res.Total.String())
	return res, nil
}
