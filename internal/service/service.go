// Package service реализует бизнес-логику инвестиционной платформы.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/hivestin/internal/audit"
	"github.com/mmeshcher/hivestin/internal/exchange"
	"github.com/mmeshcher/hivestin/internal/mailer"
	"github.com/mmeshcher/hivestin/internal/meet"
	"github.com/mmeshcher/hivestin/internal/model"
	"github.com/mmeshcher/hivestin/internal/plan"
	"github.com/mmeshcher/hivestin/internal/repository"
	"github.com/mmeshcher/hivestin/internal/validation"
)

// DepositWindow задаёт срок, в течение которого новый пользователь должен внести первый депозит.
const DepositWindow = 48 * time.Hour

var (
	// ErrInvalidCredentials возвращается при неверной паре email/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidation возвращается для некорректных входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden возвращается, если пользователь не вправе выполнить действие.
	ErrForbidden = errors.New("forbidden")
	// ErrVerificationUnavailable возвращается, если проверка через биржу не настроена.
	ErrVerificationUnavailable = errors.New("exchange verification is not configured")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Ping(ctx context.Context) error
	Close() error

	CreateUser(ctx context.Context, nu repository.NewUser) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserRole(ctx context.Context, id int64) (model.Role, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	SetUserRole(ctx context.Context, id int64, role model.Role) error
	DeleteUser(ctx context.Context, id int64) error
	GetUserByReferralCode(ctx context.Context, code string) (*model.User, error)
	ListReferrals(ctx context.Context, userID int64) ([]model.Referral, error)

	CreateDeposit(ctx context.Context, d *model.Deposit) (int64, error)
	GetDeposit(ctx context.Context, id int64) (*model.Deposit, error)
	ListDepositsByUser(ctx context.Context, userID int64) ([]model.Deposit, error)
	ListDeposits(ctx context.Context, status model.TransactionStatus) ([]model.Deposit, error)
	ListPendingDeposits(ctx context.Context, limit int) ([]model.Deposit, error)
	ListCompletedDeposits(ctx context.Context) ([]model.Deposit, error)
	CompleteDeposit(ctx context.Context, id int64, at time.Time) (*model.Deposit, error)
	FailDeposit(ctx context.Context, id int64, at time.Time) (*model.Deposit, error)
	CreditAccrual(ctx context.Context, depositID, accrued, weeks int64, at time.Time) (int64, error)
	ListProfitDistributions(ctx context.Context, userID int64) ([]model.ProfitDistribution, error)

	CreateWithdrawal(ctx context.Context, w *model.Withdrawal) (int64, error)
	GetWithdrawal(ctx context.Context, id int64) (*model.Withdrawal, error)
	ListWithdrawalsByUser(ctx context.Context, userID int64) ([]model.Withdrawal, error)
	ListWithdrawals(ctx context.Context, status model.TransactionStatus) ([]model.Withdrawal, error)
	ApproveWithdrawal(ctx context.Context, id int64, at time.Time) (*model.Withdrawal, error)
	RejectWithdrawal(ctx context.Context, id int64, at time.Time) (*model.Withdrawal, error)

	CreateTicket(ctx context.Context, t *model.SupportTicket, message string) (int64, error)
	GetTicket(ctx context.Context, id int64) (*model.SupportTicket, error)
	ListTickets(ctx context.Context, userID int64) ([]model.SupportTicket, error)
	AddTicketMessage(ctx context.Context, ticketID, senderID int64, body string, at time.Time) (*model.TicketMessage, error)
	CloseTicket(ctx context.Context, id int64, at time.Time) error

	CreateCall(ctx context.Context, c *model.SupportCall) (int64, error)
	GetCall(ctx context.Context, id int64) (*model.SupportCall, error)
	ListCalls(ctx context.Context, userID int64) ([]model.SupportCall, error)
	BookedTimes(ctx context.Context, date time.Time) ([]string, error)
	HasScheduledCall(ctx context.Context, userID int64, date time.Time) (bool, error)
	SetCallMeetLink(ctx context.Context, id int64, link string) error
	UpdateCallStatus(ctx context.Context, id int64, status model.CallStatus) (*model.SupportCall, error)
	ListCallsForReminder(ctx context.Context, from, to time.Time) ([]model.SupportCall, error)
	MarkReminderSent(ctx context.Context, id int64) error

	GetStats(ctx context.Context, dayStart time.Time) (*model.Stats, error)
}

// Exchange описывает проверку депозита на стороне биржи.
type Exchange interface {
	GetDepositRecord(ctx context.Context, coin, txID string) (*exchange.DepositRecord, int, time.Duration, error)
}

// Service содержит бизнес-логику инвестиционной платформы.
type Service struct {
	repo        Repository
	plans       *plan.Table
	exchange    Exchange
	mail        mailer.Sender
	meetings    meet.Scheduler
	audit       audit.Recorder
	adminEmails map[string]struct{}
	logger      *zap.Logger
	now         func() time.Time
	newCode     func() string
}

// Option настраивает необязательные зависимости сервиса.
type Option func(*Service)

// WithExchange подключает проверку депозитов через биржу.
func WithExchange(e Exchange) Option {
	return func(s *Service) { s.exchange = e }
}

// WithMailer задаёт отправителя писем.
func WithMailer(m mailer.Sender) Option {
	return func(s *Service) { s.mail = m }
}

// WithMeetings задаёт планировщик видеовстреч.
func WithMeetings(m meet.Scheduler) Option {
	return func(s *Service) { s.meetings = m }
}

// WithAudit задаёт журнал аудита.
func WithAudit(r audit.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

// WithAdminEmails задаёт адреса, которые получают роль администратора при регистрации.
func WithAdminEmails(emails []string) Option {
	return func(s *Service) {
		for _, e := range emails {
			s.adminEmails[validation.NormalizeEmail(e)] = struct{}{}
		}
	}
}

// NewService создаёт новый сервис с указанным репозиторием и таблицей планов.
func NewService(repo Repository, plans *plan.Table, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		plans:       plans,
		mail:        mailer.NewLogSender(logger),
		meetings:    meet.NoopScheduler{},
		audit:       audit.NoopRecorder{},
		adminEmails: make(map[string]struct{}),
		logger:      logger,
		now:         time.Now,
		newCode:     newReferralCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	var errs []error
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
	}
	if s.repo != nil {
		errs = append(errs, s.repo.Close())
	}
	return errors.Join(errs...)
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// GetUserRole возвращает текущую роль пользователя.
func (s *Service) GetUserRole(ctx context.Context, userID int64) (model.Role, error) {
	return s.repo.GetUserRole(ctx, userID)
}

// RegisterUser регистрирует нового пользователя. Непустой referralCode привязывает его к пригласившему.
func (s *Service) RegisterUser(ctx context.Context, email, password, referralCode string) (*model.User, error) {
	email = validation.NormalizeEmail(email)
	if !validation.IsValidEmail(email) {
		return nil, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if !validation.IsValidPassword(password) {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, validation.MinPasswordLength)
	}

	var referredBy *int64
	if code := normalizeReferralCode(referralCode); code != "" {
		referrer, err := s.repo.GetUserByReferralCode(ctx, code)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, fmt.Errorf("%w: unknown referral code", ErrValidation)
			}
			return nil, err
		}
		referredBy = &referrer.ID
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role := model.RoleUser
	if _, ok := s.adminEmails[email]; ok {
		role = model.RoleAdmin
	}

	now := s.now()
	nu := repository.NewUser{
		Email:           email,
		PasswordHash:    hash,
		Role:            role,
		DepositDeadline: now.Add(DepositWindow),
		ReferredBy:      referredBy,
	}

	id, err := s.createWithReferralCode(ctx, &nu)
	if err != nil {
		return nil, err
	}

	s.record(ctx, id, audit.ActionRegister, email, "")

	return &model.User{
		ID:              id,
		Email:           email,
		Role:            role,
		DepositDeadline: nu.DepositDeadline,
		ReferralCode:    nu.ReferralCode,
		ReferredBy:      referredBy,
		CreatedAt:       now,
	}, nil
}

// AuthenticateUser проверяет email и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	s.record(ctx, u.ID, audit.ActionLogin, u.Email, "")
	return u, nil
}

// GetProfile возвращает профиль пользователя.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// Plans возвращает таблицу тарифных планов.
func (s *Service) Plans() []plan.Plan {
	return s.plans.All()
}

func (s *Service) notify(ctx context.Context, to string, name mailer.Template, data map[string]any) {
	if to == "" {
		return
	}
	if err := s.mail.Send(ctx, to, name, data); err != nil {
		s.logger.Warn("send email error", zap.Error(err), zap.String("template", string(name)))
	}
}

func (s *Service) notifyUser(ctx context.Context, userID int64, name mailer.Template, data map[string]any) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Warn("load email recipient error", zap.Error(err), zap.Int64("userID", userID))
		return
	}
	s.notify(ctx, u.Email, name, data)
}

func (s *Service) record(ctx context.Context, actorID int64, action, target, details string) {
	e := audit.Event{
		ActorID:   actorID,
		Action:    action,
		Target:    target,
		Details:   details,
		CreatedAt: s.now(),
	}
	if meta, ok := RequestMetaFromContext(ctx); ok {
		e.IP = meta.IP
		e.UserAgent = meta.UserAgent
	}
	if err := s.audit.Record(ctx, e); err != nil {
		s.logger.Warn("audit record error", zap.Error(err), zap.String("action", action))
	}
}

// RequestMeta содержит сведения о клиенте для журнала аудита.
type RequestMeta struct {
	IP        string
	UserAgent string
}

type requestMetaKey struct{}

// WithRequestMeta сохраняет сведения о клиенте в контексте.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext извлекает сведения о клиенте из контекста.
func RequestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	m, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return m, ok
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
