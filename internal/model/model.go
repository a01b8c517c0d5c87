// Package model содержит доменные сущности инвестиционной платформы.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role описывает роль пользователя.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid сообщает, является ли роль известной.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User представляет зарегистрированного инвестора или администратора.
type User struct {
	ID              int64
	Email           string
	PasswordHash    []byte
	Role            Role
	Balance         decimal.Decimal
	Profit          decimal.Decimal
	TotalPayout     decimal.Decimal
	HasDeposited    bool
	DepositDeadline time.Time
	ReferralCode    string
	ReferredBy      *int64
	CreatedAt       time.Time
}

// IsAdmin сообщает, обладает ли пользователь правами администратора.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Referral описывает пользователя, зарегистрированного по реферальному коду.
type Referral struct {
	UserID       int64
	Email        string
	HasDeposited bool
	JoinedAt     time.Time
}

// TransactionStatus описывает статус депозита или вывода средств.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// Deposit описывает вклад пользователя по одному из тарифных планов.
type Deposit struct {
	ID              int64
	UserID          int64
	Amount          decimal.Decimal
	Currency        string
	TransactionHash string
	PlanID          string
	Status          TransactionStatus
	AccruedProfit   decimal.Decimal
	CreatedAt       time.Time
	ConfirmedAt     *time.Time
}

// HoldState описывает состояние удержания суммы вывода.
type HoldState string

const (
	HoldHeld      HoldState = "held"
	HoldReleased  HoldState = "released"
	HoldCommitted HoldState = "committed"
)

// Withdrawal описывает запрос на вывод прибыли.
type Withdrawal struct {
	ID            int64
	UserID        int64
	Amount        decimal.Decimal
	Currency      string
	WalletAddress string
	Reference     string
	Status        TransactionStatus
	Hold          HoldState
	CreatedAt     time.Time
	DecidedAt     *time.Time
}

// ProfitDistribution описывает начисление прибыли по вкладу.
type ProfitDistribution struct {
	ID        int64
	UserID    int64
	DepositID int64
	Amount    decimal.Decimal
	Weeks     int64
	CreatedAt time.Time
}

// TicketStatus описывает статус обращения в поддержку.
type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

// TicketMessage описывает сообщение в переписке по обращению.
type TicketMessage struct {
	ID        int64
	TicketID  int64
	SenderID  int64
	Body      string
	CreatedAt time.Time
}

// SupportTicket описывает обращение пользователя в поддержку.
type SupportTicket struct {
	ID        int64
	UserID    int64
	Subject   string
	Category  string
	Status    TicketStatus
	Messages  []TicketMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CallTopic описывает тему звонка в поддержку.
type CallTopic string

const (
	TopicInvestment CallTopic = "investment"
	TopicWithdrawal CallTopic = "withdrawal"
	TopicDeposit    CallTopic = "deposit"
	TopicTechnical  CallTopic = "technical"
	TopicOther      CallTopic = "other"
)

// Valid сообщает, является ли тема звонка допустимой.
func (t CallTopic) Valid() bool {
	switch t {
	case TopicInvestment, TopicWithdrawal, TopicDeposit, TopicTechnical, TopicOther:
		return true
	}
	return false
}

// CallStatus описывает статус звонка в поддержку.
type CallStatus string

const (
	CallScheduled CallStatus = "scheduled"
	CallCompleted CallStatus = "completed"
	CallCancelled CallStatus = "cancelled"
)

// SupportCall описывает запланированный звонок в поддержку.
type SupportCall struct {
	ID           int64
	UserID       int64
	UserEmail    string
	Date         time.Time
	Time         string
	Topic        CallTopic
	Status       CallStatus
	MeetLink     string
	ReminderSent bool
	CreatedAt    time.Time
}

// StartsAt возвращает момент начала звонка в UTC.
func (c SupportCall) StartsAt() time.Time {
	t, err := time.Parse("15:04", c.Time)
	if err != nil {
		return c.Date
	}
	return time.Date(c.Date.Year(), c.Date.Month(), c.Date.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
}

// Stats содержит агрегированную статистику для админ-панели.
type Stats struct {
	TotalUsers         int64            `json:"total_users"`
	NewUsersToday      int64            `json:"new_users_today"`
	DepositedUsers     int64            `json:"deposited_users"`
	TotalDeposits      decimal.Decimal  `json:"total_deposits"`
	TotalWithdrawals   decimal.Decimal  `json:"total_withdrawals"`
	PendingDeposits    int64            `json:"pending_deposits"`
	PendingWithdrawals int64            `json:"pending_withdrawals"`
	CallsByTopic       map[string]int64 `json:"calls_by_topic"`
}

// FromCents переводит сумму в центах в десятичное значение.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ToCents переводит десятичную сумму в центы с округлением до ближайшего цента.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
