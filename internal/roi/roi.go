// Package roi содержит расчёт недельной доходности вкладов и правила вывода средств.
package roi

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Week задаёт период начисления прибыли.
	Week = 7 * 24 * time.Hour
	// LockDays задаёт срок блокировки тела вклада в днях.
	LockDays = 30
)

var (
	// ErrInsufficientFunds возвращается, если сумма вывода превышает доступную прибыль.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidAmount возвращается для неположительной суммы вывода.
	ErrInvalidAmount = errors.New("amount must be positive")
)

var hundred = decimal.NewFromInt(100)

// ElapsedWeeks возвращает число полных недель. Отрицательный интервал считается нулевым.
func ElapsedWeeks(elapsed time.Duration) int64 {
	if elapsed <= 0 {
		return 0
	}
	return int64(elapsed / Week)
}

// ElapsedDays возвращает число полных суток между моментом вклада и now.
func ElapsedDays(depositedAt, now time.Time) int64 {
	d := now.Sub(depositedAt)
	if d <= 0 {
		return 0
	}
	return int64(d / (24 * time.Hour))
}

// AccruedProfit вычисляет прибыль: amount * rate/100 * полных недель.
func AccruedProfit(amount, weeklyRate decimal.Decimal, elapsed time.Duration) decimal.Decimal {
	weeks := ElapsedWeeks(elapsed)
	if weeks == 0 {
		return decimal.Zero
	}
	return amount.Mul(weeklyRate).Div(hundred).Mul(decimal.NewFromInt(weeks))
}

// PrincipalUnlocked сообщает, истёк ли срок блокировки тела вклада.
func PrincipalUnlocked(depositedAt, now time.Time) bool {
	return ElapsedDays(depositedAt, now) >= LockDays
}

// Eligibility описывает, какие средства пользователь может вывести в данный момент.
type Eligibility struct {
	DaysElapsed        int64
	DaysUntilUnlock    int64
	PrincipalUnlocked  bool
	WithdrawableProfit decimal.Decimal
}

// CheckEligibility рассчитывает доступность тела вклада и прибыли к выводу.
func CheckEligibility(depositedAt, now time.Time, profit decimal.Decimal) Eligibility {
	days := ElapsedDays(depositedAt, now)

	until := LockDays - days
	if until < 0 {
		until = 0
	}

	if profit.IsNegative() {
		profit = decimal.Zero
	}

	return Eligibility{
		DaysElapsed:        days,
		DaysUntilUnlock:    until,
		PrincipalUnlocked:  days >= LockDays,
		WithdrawableProfit: profit,
	}
}

// CheckWithdrawal проверяет, что сумма вывода положительна и не превышает прибыль.
func CheckWithdrawal(amount, profit decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(profit) {
		return ErrInsufficientFunds
	}
	return nil
}
