package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/hivestin/internal/model"
	"github.com/mmeshcher/hivestin/internal/service"
)

type ticketRequest struct {
	Subject  string `json:"subject"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

type replyRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	ID        int64  `json:"id"`
	SenderID  int64  `json:"sender_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

type ticketResponse struct {
	ID        int64              `json:"id"`
	UserID    int64              `json:"user_id"`
	Subject   string             `json:"subject"`
	Category  string             `json:"category"`
	Status    model.TicketStatus `json:"status"`
	Messages  []messageResponse  `json:"messages,omitempty"`
	CreatedAt string             `json:"created_at"`
	UpdatedAt string             `json:"updated_at"`
}

func newMessageResponse(m *model.TicketMessage) messageResponse {
	return messageResponse{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
	}
}

func newTicketResponse(t *model.SupportTicket) ticketResponse {
	resp := ticketResponse{
		ID:        t.ID,
		UserID:    t.UserID,
		Subject:   t.Subject,
		Category:  t.Category,
		Status:    t.Status,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
		UpdatedAt: t.UpdatedAt.Format(time.RFC3339),
	}
	for i := range t.Messages {
		resp.Messages = append(resp.Messages, newMessageResponse(&t.Messages[i]))
	}
	return resp
}

func newTicketList(tickets []model.SupportTicket) []ticketResponse {
	resp := make([]ticketResponse, 0, len(tickets))
	for i := range tickets {
		resp = append(resp, newTicketResponse(&tickets[i]))
	}
	return resp
}

type callRequest struct {
	Date  string          `json:"date"`
	Time  string          `json:"time"`
	Topic model.CallTopic `json:"topic"`
}

type callResponse struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"user_id"`
	UserEmail string           `json:"user_email,omitempty"`
	Date      string           `json:"date"`
	Time      string           `json:"time"`
	Topic     model.CallTopic  `json:"topic"`
	Status    model.CallStatus `json:"status"`
	MeetLink  string           `json:"meet_link,omitempty"`
}

func newCallResponse(c *model.SupportCall) callResponse {
	return callResponse{
		ID:        c.ID,
		UserID:    c.UserID,
		UserEmail: c.UserEmail,
		Date:      c.Date.Format(service.DateLayout),
		Time:      c.Time,
		Topic:     c.Topic,
		Status:    c.Status,
		MeetLink:  c.MeetLink,
	}
}

func newCallList(calls []model.SupportCall) []callResponse {
	resp := make([]callResponse, 0, len(calls))
	for i := range calls {
		resp = append(resp, newCallResponse(&calls[i]))
	}
	return resp
}

type slotsResponse struct {
	Date           string   `json:"date"`
	AvailableSlots []string `json:"available_slots"`
}

// CreateTicket создаёт обращение в поддержку.
func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req ticketRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	t, err := h.service.CreateTicket(r.Context(), userID, req.Subject, req.Category, req.Message)
	if err != nil {
		h.handleError(w, err, "create ticket error", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusCreated, newTicketResponse(t))
}

// GetTickets возвращает обращения текущего пользователя.
func (h *Handler) GetTickets(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	tickets, err := h.service.GetTicketsByUser(r.Context(), userID)
	if err != nil {
		h.handleError(w, err, "get tickets error", zap.Int64("userID", userID))
		return
	}

	if len(tickets) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, newTicketList(tickets))
}

// GetTicket возвращает обращение с перепиской.
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	t, err := h.service.GetTicket(r.Context(), userID, id)
	if err != nil {
		h.handleError(w, err, "get ticket error", zap.Int64("userID", userID), zap.Int64("ticketID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, newTicketResponse(t))
}

// ReplyTicket добавляет ответ в обращение.
func (h *Handler) ReplyTicket(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req replyRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	m, err := h.service.ReplyTicket(r.Context(), userID, id, req.Message)
	if err != nil {
		h.handleError(w, err, "reply ticket error", zap.Int64("userID", userID), zap.Int64("ticketID", id))
		return
	}

	h.writeJSON(w, http.StatusCreated, newMessageResponse(m))
}

// GetSlots возвращает свободное время звонков на дату.
func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	date, err := service.ParseCallDate(r.URL.Query().Get("date"))
	if err != nil {
		h.handleError(w, err, "parse date error")
		return
	}

	slots, err := h.service.GetAvailableSlots(r.Context(), userID, date)
	if err != nil {
		h.handleError(w, err, "get slots error", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, slotsResponse{Date: date.Format(service.DateLayout), AvailableSlots: slots})
}

// BookCall бронирует звонок в поддержку.
func (h *Handler) BookCall(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req callRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	date, err := service.ParseCallDate(req.Date)
	if err != nil {
		h.handleError(w, err, "parse date error")
		return
	}

	c, err := h.service.BookCall(r.Context(), userID, date, req.Time, req.Topic)
	if err != nil {
		h.handleError(w, err, "book call error", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusCreated, newCallResponse(c))
}

// GetCalls возвращает звонки текущего пользователя.
func (h *Handler) GetCalls(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	calls, err := h.service.GetCallsByUser(r.Context(), userID)
	if err != nil {
		h.handleError(w, err, "get calls error", zap.Int64("userID", userID))
		return
	}

	if len(calls) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, newCallList(calls))
}
