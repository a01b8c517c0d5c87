package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/hivestin/internal/model"
)

type depositRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	TransactionHash string          `json:"transaction_hash"`
}

type depositResponse struct {
	ID              int64                   `json:"id"`
	UserID          int64                   `json:"user_id,omitempty"`
	Amount          decimal.Decimal         `json:"amount"`
	Currency        string                  `json:"currency"`
	TransactionHash string                  `json:"transaction_hash"`
	PlanID          string                  `json:"plan_id"`
	Status          model.TransactionStatus `json:"status"`
	AccruedProfit   decimal.Decimal         `json:"accrued_profit"`
	CreatedAt       string                  `json:"created_at"`
	ConfirmedAt     string                  `json:"confirmed_at,omitempty"`
}

func newDepositResponse(d *model.Deposit) depositResponse {
	resp := depositResponse{
		ID:              d.ID,
		UserID:          d.UserID,
		Amount:          d.Amount,
		Currency:        d.Currency,
		TransactionHash: d.TransactionHash,
		PlanID:          d.PlanID,
		Status:          d.Status,
		AccruedProfit:   d.AccruedProfit,
		CreatedAt:       d.CreatedAt.Format(time.RFC3339),
	}
	if d.ConfirmedAt != nil {
		resp.ConfirmedAt = d.ConfirmedAt.Format(time.RFC3339)
	}
	return resp
}

func newDepositList(deposits []model.Deposit) []depositResponse {
	resp := make([]depositResponse, 0, len(deposits))
	for i := range deposits {
		resp = append(resp, newDepositResponse(&deposits[i]))
	}
	return resp
}

// CreateDeposit регистрирует депозит текущего пользователя.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	d, err := h.service.CreateDeposit(r.Context(), userID, req.Amount, req.Currency, req.TransactionHash)
	if err != nil {
		h.handleError(w, err, "create deposit error", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusCreated, newDepositResponse(d))
}

// GetDeposits возвращает депозиты текущего пользователя.
func (h *Handler) GetDeposits(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	deposits, err := h.service.GetDepositsByUser(r.Context(), userID)
	if err != nil {
		h.handleError(w, err, "get deposits error", zap.Int64("userID", userID))
		return
	}

	if len(deposits) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, newDepositList(deposits))
}

// GetDepositStatus возвращает статус депозита, при необходимости сверяя его с биржей.
func (h *Handler) GetDepositStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	d, err := h.service.DepositStatus(r.Context(), userID, id)
	if err != nil {
		h.handleError(w, err, "deposit status error", zap.Int64("userID", userID), zap.Int64("depositID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, newDepositResponse(d))
}

// GetInvestments возвращает портфель текущего пользователя.
func (h *Handler) GetInvestments(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetPortfolio(r.Context(), userID)
	if err != nil {
		h.handleError(w, err, "get portfolio error", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, p)
}

type distributionResponse struct {
	DepositID int64           `json:"deposit_id"`
	Amount    decimal.Decimal `json:"amount"`
	Weeks     int64           `json:"weeks"`
	CreatedAt string          `json:"created_at"`
}

// GetProfitHistory возвращает историю начислений прибыли текущего пользователя.
func (h *Handler) GetProfitHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	dist, err := h.service.GetProfitDistributions(r.Context(), userID)
	if err != nil {
		h.handleError(w, err, "get profit history error", zap.Int64("userID", userID))
		return
	}

	if len(dist) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]distributionResponse, 0, len(dist))
	for _, p := range dist {
		resp = append(resp, distributionResponse{
			DepositID: p.DepositID,
			Amount:    p.Amount,
			Weeks:     p.Weeks,
			CreatedAt: p.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// parseRange разбирает границы интервала from/to. Дата без времени в to включает весь день.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	parse := func(name string, endOfDay bool) (time.Time, error) {
		v := r.URL.Query().Get(name)
		if v == "" {
			return time.Time{}, nil
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, nil
		}
		t, err := time.ParseInLocation("2006-01-02", v, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid %s: %q", name, v)
		}
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, nil
	}

	from, err := parse("from", false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parse("to", true)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

// GetTransactions возвращает общую историю депозитов и выводов текущего пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	from, to, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := h.service.GetTransactionHistory(r.Context(), userID, from, to)
	if err != nil {
		h.handleError(w, err, "get transactions error", zap.Int64("userID", userID))
		return
	}

	if len(records) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, records)
}

// ExportTransactions выгружает историю транзакций текущего пользователя в CSV.
func (h *Handler) ExportTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	from, to, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	if err := h.service.ExportTransactions(r.Context(), userID, from, to, &buf); err != nil {
		h.handleError(w, err, "export transactions error", zap.Int64("userID", userID))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=transactions-%s.csv", time.Now().UTC().Format("2006-01-02")))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
