// Package handler содержит HTTP-обработчики API инвестиционной платформы.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/hivestin/internal/audit"
	"github.com/mmeshcher/hivestin/internal/middleware"
	"github.com/mmeshcher/hivestin/internal/model"
	"github.com/mmeshcher/hivestin/internal/plan"
	"github.com/mmeshcher/hivestin/internal/repository"
	"github.com/mmeshcher/hivestin/internal/roi"
	"github.com/mmeshcher/hivestin/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error
	GetUserRole(ctx context.Context, userID int64) (model.Role, error)

	RegisterUser(ctx context.Context, email, password, referralCode string) (*model.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	GetProfile(ctx context.Context, userID int64) (*model.User, error)
	Plans() []plan.Plan
	GetReferrals(ctx context.Context, userID int64) (*service.ReferralSummary, error)

	CreateDeposit(ctx context.Context, userID int64, amount decimal.Decimal, currency, txHash string) (*model.Deposit, error)
	GetDepositsByUser(ctx context.Context, userID int64) ([]model.Deposit, error)
	DepositStatus(ctx context.Context, userID, depositID int64) (*model.Deposit, error)
	GetPortfolio(ctx context.Context, userID int64) (*service.Portfolio, error)
	GetTransactionHistory(ctx context.Context, userID int64, from, to time.Time) ([]service.TransactionRecord, error)
	ExportTransactions(ctx context.Context, userID int64, from, to time.Time, w io.Writer) error
	GetProfitDistributions(ctx context.Context, userID int64) ([]model.ProfitDistribution, error)

	CheckWithdrawalEligibility(ctx context.Context, userID int64) (*service.WithdrawalEligibility, error)
	RequestWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, wallet string) (*model.Withdrawal, error)
	GetWithdrawalsByUser(ctx context.Context, userID int64) ([]model.Withdrawal, error)

	CreateTicket(ctx context.Context, userID int64, subject, category, message string) (*model.SupportTicket, error)
	GetTicketsByUser(ctx context.Context, userID int64) ([]model.SupportTicket, error)
	GetTicket(ctx context.Context, userID, ticketID int64) (*model.SupportTicket, error)
	ReplyTicket(ctx context.Context, userID, ticketID int64, body string) (*model.TicketMessage, error)
	GetAvailableSlots(ctx context.Context, userID int64, date time.Time) ([]string, error)
	BookCall(ctx context.Context, userID int64, date time.Time, at string, topic model.CallTopic) (*model.SupportCall, error)
	GetCallsByUser(ctx context.Context, userID int64) ([]model.SupportCall, error)

	GetStats(ctx context.Context) (*model.Stats, error)
	ListDeposits(ctx context.Context, status model.TransactionStatus) ([]model.Deposit, error)
	DecideDeposit(ctx context.Context, adminID, depositID int64, action service.DepositAction) (*model.Deposit, error)
	ListWithdrawals(ctx context.Context, status model.TransactionStatus) ([]model.Withdrawal, error)
	DecideWithdrawal(ctx context.Context, adminID, withdrawalID int64, action service.WithdrawalAction) (*model.Withdrawal, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	DeleteUser(ctx context.Context, adminID, userID int64) error
	SetUserRole(ctx context.Context, adminID, userID int64, role model.Role) error
	RunAccrualAs(ctx context.Context, adminID int64) (service.AccrualResult, error)
	ListCalls(ctx context.Context) ([]model.SupportCall, error)
	DecideCall(ctx context.Context, adminID, callID int64, action service.CallAction) (*model.SupportCall, error)
	ListTickets(ctx context.Context) ([]model.SupportTicket, error)
	CloseTicket(ctx context.Context, ticketID int64) error
	RecentAudit(ctx context.Context, limit int) ([]audit.Event, error)
}

// Handler реализует HTTP-обработчики API инвестиционной платформы.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return userID, ok
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// statusFor сопоставляет доменную ошибку с HTTP-статусом. Ноль означает непредвиденную ошибку.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, roi.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, plan.ErrNoPlan):
		return http.StatusUnprocessableEntity
	case errors.Is(err, roi.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrDepositNotFound),
		errors.Is(err, repository.ErrWithdrawalNotFound),
		errors.Is(err, repository.ErrTicketNotFound),
		errors.Is(err, repository.ErrCallNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrUserExists),
		errors.Is(err, repository.ErrDuplicateTxHash),
		errors.Is(err, repository.ErrAlreadyDecided),
		errors.Is(err, repository.ErrSlotTaken),
		errors.Is(err, repository.ErrAlreadyBooked),
		errors.Is(err, repository.ErrTicketClosed):
		return http.StatusConflict
	case errors.Is(err, service.ErrVerificationUnavailable):
		return http.StatusServiceUnavailable
	}
	return 0
}

// handleError отвечает статусом, соответствующим ошибке. Непредвиденные ошибки журналируются.
func (h *Handler) handleError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	code := statusFor(err)
	switch code {
	case 0:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	case http.StatusBadRequest:
		http.Error(w, err.Error(), code)
	default:
		http.Error(w, http.StatusText(code), code)
	}
}

func requestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := service.WithRequestMeta(r.Context(), service.RequestMeta{
			IP:        r.RemoteAddr,
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
