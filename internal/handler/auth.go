package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/hivestin/internal/middleware"
	"github.com/mmeshcher/hivestin/internal/model"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	ReferralCode string `json:"referral_code,omitempty"`
}

type sessionResponse struct {
	UserID int64      `json:"user_id"`
	Email  string     `json:"email,omitempty"`
	Role   model.Role `json:"role"`
}

type userResponse struct {
	ID              int64           `json:"id"`
	Email           string          `json:"email"`
	Role            model.Role      `json:"role"`
	Balance         decimal.Decimal `json:"balance"`
	Profit          decimal.Decimal `json:"profit"`
	TotalPayout     decimal.Decimal `json:"total_payout"`
	HasDeposited    bool            `json:"has_deposited"`
	DepositDeadline *time.Time      `json:"deposit_deadline,omitempty"`
	ReferralCode    string          `json:"referral_code,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func newUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:           u.ID,
		Email:        u.Email,
		Role:         u.Role,
		Balance:      u.Balance,
		Profit:       u.Profit,
		TotalPayout:  u.TotalPayout,
		HasDeposited: u.HasDeposited,
		ReferralCode: u.ReferralCode,
		CreatedAt:    u.CreatedAt,
	}
	if !u.DepositDeadline.IsZero() {
		d := u.DepositDeadline
		resp.DepositDeadline = &d
	}
	return resp
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.RegisterUser(r.Context(), req.Email, req.Password, req.ReferralCode)
	if err != nil {
		h.handleError(w, err, "register user error")
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, u.ID, u.Role); err != nil {
		h.logger.Error("set auth cookie error", zap.Error(err), zap.Int64("userID", u.ID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, sessionResponse{UserID: u.ID, Email: u.Email, Role: u.Role})
}

// Login выполняет аутентификацию пользователя и устанавливает cookie сессии.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleError(w, err, "login user error")
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, u.ID, u.Role); err != nil {
		h.logger.Error("set auth cookie error", zap.Error(err), zap.Int64("userID", u.ID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, sessionResponse{UserID: u.ID, Email: u.Email, Role: u.Role})
}

// Logout удаляет cookie сессии.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}

// CheckAuth возвращает данные текущей сессии.
func (h *Handler) CheckAuth(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	role, err := h.service.GetUserRole(r.Context(), s.UserID)
	if err != nil {
		h.handleError(w, err, "check auth error", zap.Int64("userID", s.UserID))
		return
	}

	h.writeJSON(w, http.StatusOK, sessionResponse{UserID: s.UserID, Role: role})
}

// Health сообщает о доступности хранилища.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetProfile возвращает профиль текущего пользователя.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	u, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		h.handleError(w, err, "get profile error", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, newUserResponse(u))
}

// GetPlans возвращает таблицу тарифных планов.
func (h *Handler) GetPlans(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Plans())
}

type referralResponse struct {
	Email        string    `json:"email"`
	HasDeposited bool      `json:"has_deposited"`
	JoinedAt     time.Time `json:"joined_at"`
}

type referralsResponse struct {
	ReferralCode string             `json:"referral_code"`
	Referrals    []referralResponse `json:"referrals"`
}

// GetReferrals возвращает реферальный код текущего пользователя и приглашённых им пользователей.
func (h *Handler) GetReferrals(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	summary, err := h.service.GetReferrals(r.Context(), userID)
	if err != nil {
		h.handleError(w, err, "get referrals error", zap.Int64("userID", userID))
		return
	}

	resp := referralsResponse{
		ReferralCode: summary.Code,
		Referrals:    make([]referralResponse, 0, len(summary.Referrals)),
	}
	for _, ref := range summary.Referrals {
		resp.Referrals = append(resp.Referrals, referralResponse{
			Email:        ref.Email,
			HasDeposited: ref.HasDeposited,
			JoinedAt:     ref.JoinedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}
