package handler

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/hivestin/internal/model"
	"github.com/mmeshcher/hivestin/internal/service"
)

type actionRequest struct {
	Action string `json:"action"`
}

type roleRequest struct {
	Role model.Role `json:"role"`
}

type auditResponse struct {
	ActorID   int64  `json:"actor_id"`
	Action    string `json:"action"`
	Target    string `json:"target"`
	Details   string `json:"details,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	CreatedAt string `json:"created_at"`
}

func statusFilter(w http.ResponseWriter, r *http.Request) (model.TransactionStatus, bool) {
	status := model.TransactionStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.StatusPending, model.StatusCompleted, model.StatusFailed:
		return status, true
	}
	http.Error(w, "unknown status", http.StatusBadRequest)
	return "", false
}

func decodeAction(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req actionRequest
	if err := decodeJSON(r, &req); err != nil || req.Action == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return "", false
	}
	return req.Action, true
}

// AdminStats возвращает статистику платформы.
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		h.handleError(w, err, "get stats error")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// AdminDeposits возвращает депозиты всех пользователей.
func (h *Handler) AdminDeposits(w http.ResponseWriter, r *http.Request) {
	status, ok := statusFilter(w, r)
	if !ok {
		return
	}

	deposits, err := h.service.ListDeposits(r.Context(), status)
	if err != nil {
		h.handleError(w, err, "list deposits error")
		return
	}

	h.writeJSON(w, http.StatusOK, newDepositList(deposits))
}

// AdminDecideDeposit одобряет, отклоняет или перепроверяет депозит.
func (h *Handler) AdminDecideDeposit(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	action, ok := decodeAction(w, r)
	if !ok {
		return
	}

	d, err := h.service.DecideDeposit(r.Context(), adminID, id, service.DepositAction(action))
	if err != nil {
		h.handleError(w, err, "decide deposit error", zap.Int64("depositID", id), zap.String("action", action))
		return
	}

	h.writeJSON(w, http.StatusOK, newDepositResponse(d))
}

// AdminWithdrawals возвращает выводы всех пользователей.
func (h *Handler) AdminWithdrawals(w http.ResponseWriter, r *http.Request) {
	status, ok := statusFilter(w, r)
	if !ok {
		return
	}

	withdrawals, err := h.service.ListWithdrawals(r.Context(), status)
	if err != nil {
		h.handleError(w, err, "list withdrawals error")
		return
	}

	h.writeJSON(w, http.StatusOK, newWithdrawalList(withdrawals))
}

// AdminDecideWithdrawal одобряет или отклоняет вывод.
func (h *Handler) AdminDecideWithdrawal(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	action, ok := decodeAction(w, r)
	if !ok {
		return
	}

	wd, err := h.service.DecideWithdrawal(r.Context(), adminID, id, service.WithdrawalAction(action))
	if err != nil {
		h.handleError(w, err, "decide withdrawal error", zap.Int64("withdrawalID", id), zap.String("action", action))
		return
	}

	h.writeJSON(w, http.StatusOK, newWithdrawalResponse(wd))
}

// AdminUsers возвращает всех пользователей.
func (h *Handler) AdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.handleError(w, err, "list users error")
		return
	}

	resp := make([]userResponse, 0, len(users))
	for i := range users {
		resp = append(resp, newUserResponse(&users[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// AdminDeleteUser удаляет пользователя.
func (h *Handler) AdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteUser(r.Context(), adminID, id); err != nil {
		h.handleError(w, err, "delete user error", zap.Int64("userID", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AdminSetRole меняет роль пользователя.
func (h *Handler) AdminSetRole(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetUserRole(r.Context(), adminID, id, req.Role); err != nil {
		h.handleError(w, err, "set role error", zap.Int64("userID", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AdminRunAccrual запускает начисление прибыли вне расписания.
func (h *Handler) AdminRunAccrual(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}

	res, err := h.service.RunAccrualAs(r.Context(), adminID)
	if err != nil {
		h.handleError(w, err, "run accrual error")
		return
	}

	h.writeJSON(w, http.StatusOK, res)
}

// AdminCalls возвращает звонки всех пользователей.
func (h *Handler) AdminCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := h.service.ListCalls(r.Context())
	if err != nil {
		h.handleError(w, err, "list calls error")
		return
	}
	h.writeJSON(w, http.StatusOK, newCallList(calls))
}

// AdminDecideCall подтверждает, отклоняет или завершает звонок.
func (h *Handler) AdminDecideCall(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	action, ok := decodeAction(w, r)
	if !ok {
		return
	}

	c, err := h.service.DecideCall(r.Context(), adminID, id, service.CallAction(action))
	if err != nil {
		h.handleError(w, err, "decide call error", zap.Int64("callID", id), zap.String("action", action))
		return
	}

	h.writeJSON(w, http.StatusOK, newCallResponse(c))
}

// AdminTickets возвращает обращения всех пользователей.
func (h *Handler) AdminTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.service.ListTickets(r.Context())
	if err != nil {
		h.handleError(w, err, "list tickets error")
		return
	}
	h.writeJSON(w, http.StatusOK, newTicketList(tickets))
}

// AdminCloseTicket закрывает обращение.
func (h *Handler) AdminCloseTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.CloseTicket(r.Context(), id); err != nil {
		h.handleError(w, err, "close ticket error", zap.Int64("ticketID", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AdminAudit возвращает последние события журнала аудита.
func (h *Handler) AdminAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.service.RecentAudit(r.Context(), limit)
	if err != nil {
		h.handleError(w, err, "recent audit error")
		return
	}

	resp := make([]auditResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, auditResponse{
			ActorID:   e.ActorID,
			Action:    e.Action,
			Target:    e.Target,
			Details:   e.Details,
			IP:        e.IP,
			UserAgent: e.UserAgent,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}
