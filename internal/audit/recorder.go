// Package audit сохраняет журнал действий пользователей и администраторов.
package audit

import (
	"context"
	"time"
)

// Действия, попадающие в журнал.
const (
	ActionLogin              = "login"
	ActionRegister           = "register"
	ActionDepositApproved    = "deposit.approve"
	ActionDepositRejected    = "deposit.reject"
	ActionDepositVerified    = "deposit.verify"
	ActionWithdrawalApproved = "withdrawal.approve"
	ActionWithdrawalRejected = "withdrawal.reject"
	ActionWithdrawalRequest  = "withdrawal.request"
	ActionUserDeleted        = "user.delete"
	ActionRoleChanged        = "user.role"
	ActionCallDecision       = "call.decision"
	ActionAccrualRun         = "accrual.run"
)

// Event описывает запись журнала аудита.
type Event struct {
	ActorID   int64
	Action    string
	Target    string
	Details   string
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// Recorder сохраняет события аудита.
type Recorder interface {
	Record(ctx context.Context, e Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
	Close() error
}

// NoopRecorder отбрасывает события. Используется, когда путь к базе аудита не задан.
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, Event) error          { return nil }
func (NoopRecorder) Recent(context.Context, int) ([]Event, error) { return nil, nil }
func (NoopRecorder) Close() error                                 { return nil }
