package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/hivestin/internal/model"
)

type withdrawRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	WalletAddress string          `json:"wallet_address"`
}

type withdrawalResponse struct {
	ID            int64                   `json:"id"`
	UserID        int64                   `json:"user_id,omitempty"`
	Amount        decimal.Decimal         `json:"amount"`
	Currency      string                  `json:"currency"`
	WalletAddress string                  `json:"wallet_address"`
	Reference     string                  `json:"reference"`
	Status        model.TransactionStatus `json:"status"`
	Hold          model.HoldState         `json:"hold_state"`
	CreatedAt     string                  `json:"created_at"`
	DecidedAt     string                  `json:"decided_at,omitempty"`
}

func newWithdrawalResponse(wd *model.Withdrawal) withdrawalResponse {
	resp := withdrawalResponse{
		ID:            wd.ID,
		UserID:        wd.UserID,
		Amount:        wd.Amount,
		Currency:      wd.Currency,
		WalletAddress: wd.WalletAddress,
		Reference:     wd.Reference,
		Status:        wd.Status,
		Hold:          wd.Hold,
		CreatedAt:     wd.CreatedAt.Format(time.RFC3339),
	}
	if wd.DecidedAt != nil {
		resp.DecidedAt = wd.DecidedAt.Format(time.RFC3339)
	}
	return resp
}

func newWithdrawalList(withdrawals []model.Withdrawal) []withdrawalResponse {
	resp := make([]withdrawalResponse, 0, len(withdrawals))
	for i := range withdrawals {
		resp = append(resp, newWithdrawalResponse(&withdrawals[i]))
	}
	return resp
}

// GetEligibility сообщает, какие средства текущий пользователь может вывести.
func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	e, err := h.service.CheckWithdrawalEligibility(r.Context(), userID)
	if err != nil {
		h.handleError(w, err, "check eligibility error", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, e)
}

// Withdraw создаёт запрос на вывод прибыли текущего пользователя.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	wd, err := h.service.RequestWithdrawal(r.Context(), userID, req.Amount, req.WalletAddress)
	if err != nil {
		h.handleError(w, err, "withdraw error", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusCreated, newWithdrawalResponse(wd))
}

// GetWithdrawals возвращает историю выводов текущего пользователя.
func (h *Handler) GetWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	withdrawals, err := h.service.GetWithdrawalsByUser(r.Context(), userID)
	if err != nil {
		h.handleError(w, err, "get withdrawals error", zap.Int64("userID", userID))
		return
	}

	if len(withdrawals) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, newWithdrawalList(withdrawals))
}
