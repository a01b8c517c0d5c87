package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/hivestin/internal/audit"
	"github.com/mmeshcher/hivestin/internal/mailer"
	"github.com/mmeshcher/hivestin/internal/model"
	"github.com/mmeshcher/hivestin/internal/repository"
)

const (
	// DateLayout задаёт формат даты звонка.
	DateLayout = "2006-01-02"
	// TimeLayout задаёт формат времени звонка.
	TimeLayout = "15:04"

	callDuration   = 30 * time.Minute
	blockedAfter   = 3 * time.Hour
	reminderWindow = 15 * time.Minute
)

// CallSlots перечисляет время начала звонков в UTC.
var CallSlots = []string{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00"}

// CallAction описывает решение администратора по звонку.
type CallAction string

const (
	CallAccept   CallAction = "accept"
	CallDecline  CallAction = "decline"
	CallComplete CallAction = "complete"
)

func slotMinutes(hhmm string) (int, bool) {
	t, err := time.Parse(TimeLayout, hhmm)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// AvailableSlots возвращает свободное время звонков. Каждый занятый слот блокирует себя и следующие три часа.
func AvailableSlots(booked []string) []string {
	blocked := make(map[int]struct{})
	step := int(time.Hour / time.Minute)
	for _, b := range booked {
		base, ok := slotMinutes(b)
		if !ok {
			continue
		}
		hour := base / step * step
		for off := 0; off <= int(blockedAfter/time.Minute); off += step {
			blocked[hour+off] = struct{}{}
		}
	}

	res := make([]string, 0, len(CallSlots))
	for _, s := range CallSlots {
		m, _ := slotMinutes(s)
		if _, ok := blocked[m]; !ok {
			res = append(res, s)
		}
	}
	return res
}

// ParseCallDate разбирает дату звонка в формате YYYY-MM-DD.
func ParseCallDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrValidation, s)
	}
	return d, nil
}

// GetAvailableSlots возвращает свободное время звонков пользователя на дату.
// Пользователь с уже запланированным звонком на эту дату получает пустой список.
func (s *Service) GetAvailableSlots(ctx context.Context, userID int64, date time.Time) ([]string, error) {
	has, err := s.repo.HasScheduledCall(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if has {
		return []string{}, nil
	}

	booked, err := s.repo.BookedTimes(ctx, date)
	if err != nil {
		return nil, err
	}

	return AvailableSlots(booked), nil
}

// BookCall бронирует звонок в поддержку и создаёт для него видеовстречу.
func (s *Service) BookCall(ctx context.Context, userID int64, date time.Time, at string, topic model.CallTopic) (*model.SupportCall, error) {
	if !topic.Valid() {
		return nil, fmt.Errorf("%w: unknown topic %q", ErrValidation, topic)
	}
	if _, ok := slotMinutes(at); !ok || !slices.Contains(CallSlots, at) {
		return nil, fmt.Errorf("%w: unsupported time %q", ErrValidation, at)
	}

	c := &model.SupportCall{UserID: userID, Date: date, Time: at, Topic: topic}
	if !c.StartsAt().After(s.now()) {
		return nil, fmt.Errorf("%w: call must be scheduled in the future", ErrValidation)
	}

	free, err := s.GetAvailableSlots(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(free, at) {
		has, err := s.repo.HasScheduledCall(ctx, userID, date)
		if err == nil && has {
			return nil, repository.ErrAlreadyBooked
		}
		return nil, repository.ErrSlotTaken
	}

	if _, err := s.repo.CreateCall(ctx, c); err != nil {
		return nil, err
	}

	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Warn("load call owner error", zap.Error(err), zap.Int64("userID", userID))
	} else {
		c.UserEmail = u.Email
	}

	link, err := s.meetings.CreateMeeting(ctx, "Hivestin support: "+string(topic), c.StartsAt(), callDuration, c.UserEmail)
	if err != nil {
		s.logger.Warn("create meeting error", zap.Error(err), zap.Int64("callID", c.ID))
	} else if link != "" {
		if err := s.repo.SetCallMeetLink(ctx, c.ID, link); err != nil {
			s.logger.Warn("save meet link error", zap.Error(err), zap.Int64("callID", c.ID))
		} else {
			c.MeetLink = link
		}
	}

	s.notify(ctx, c.UserEmail, mailer.CallScheduled, callMail(c))
	return c, nil
}

// GetCallsByUser возвращает звонки пользователя.
func (s *Service) GetCallsByUser(ctx context.Context, userID int64) ([]model.SupportCall, error) {
	return s.repo.ListCalls(ctx, userID)
}

// ListCalls возвращает звонки всех пользователей.
func (s *Service) ListCalls(ctx context.Context) ([]model.SupportCall, error) {
	return s.repo.ListCalls(ctx, 0)
}

// DecideCall применяет решение администратора к запланированному звонку.
func (s *Service) DecideCall(ctx context.Context, adminID, callID int64, action CallAction) (*model.SupportCall, error) {
	c, err := s.repo.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CallScheduled {
		return nil, fmt.Errorf("%w: call %d is %s", repository.ErrAlreadyDecided, callID, c.Status)
	}

	var tmpl mailer.Template
	switch action {
	case CallAccept:
		tmpl = mailer.CallConfirmation
	case CallDecline:
		if c, err = s.repo.UpdateCallStatus(ctx, callID, model.CallCancelled); err != nil {
			return nil, err
		}
		tmpl = mailer.CallCancelled
	case CallComplete:
		if c, err = s.repo.UpdateCallStatus(ctx, callID, model.CallCompleted); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}

	s.record(ctx, adminID, audit.ActionCallDecision, "call:"+strconv.FormatInt(callID, 10), string(action))
	if tmpl != "" {
		s.notify(ctx, c.UserEmail, tmpl, callMail(c))
	}
	return c, nil
}

// SendCallReminders отправляет напоминания о звонках, которые начнутся в ближайшие 15 минут.
func (s *Service) SendCallReminders(ctx context.Context) (int, error) {
	now := s.now()
	calls, err := s.repo.ListCallsForReminder(ctx, now, now.Add(reminderWindow))
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range calls {
		c := &calls[i]
		if err := s.mail.Send(ctx, c.UserEmail, mailer.SupportCallReminder, callMail(c)); err != nil {
			s.logger.Warn("send call reminder error", zap.Error(err), zap.Int64("callID", c.ID))
			continue
		}
		if err := s.repo.MarkReminderSent(ctx, c.ID); err != nil {
			s.logger.Error("mark reminder sent error", zap.Error(err), zap.Int64("callID", c.ID))
			continue
		}
		sent++
	}

	return sent, nil
}

func callMail(c *model.SupportCall) map[string]any {
	return map[string]any{
		"Topic":    string(c.Topic),
		"Date":     formatDate(c.Date),
		"Time":     c.Time,
		"MeetLink": c.MeetLink,
	}
}

// CreateTicket создаёт обращение в поддержку.
func (s *Service) CreateTicket(ctx context.Context, userID int64, subject, category, message string) (*model.SupportTicket, error) {
	subject = strings.TrimSpace(subject)
	message = strings.TrimSpace(message)
	if subject == "" || message == "" {
		return nil, fmt.Errorf("%w: subject and message are required", ErrValidation)
	}
	category = strings.TrimSpace(category)
	if category == "" {
		category = "general"
	}

	t := &model.SupportTicket{UserID: userID, Subject: subject, Category: category}
	if _, err := s.repo.CreateTicket(ctx, t, message); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTicketsByUser возвращает обращения пользователя.
func (s *Service) GetTicketsByUser(ctx context.Context, userID int64) ([]model.SupportTicket, error) {
	return s.repo.ListTickets(ctx, userID)
}

// ListTickets возвращает обращения всех пользователей.
func (s *Service) ListTickets(ctx context.Context) ([]model.SupportTicket, error) {
	return s.repo.ListTickets(ctx, 0)
}

// GetTicket возвращает обращение владельцу или администратору.
func (s *Service) GetTicket(ctx context.Context, userID, ticketID int64) (*model.SupportTicket, error) {
	t, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeTicket(ctx, userID, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ReplyTicket добавляет ответ в обращение. Ответ администратора отправляется владельцу письмом.
func (s *Service) ReplyTicket(ctx context.Context, userID, ticketID int64, body string) (*model.TicketMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: message is required", ErrValidation)
	}

	t, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeTicket(ctx, userID, t); err != nil {
		return nil, err
	}

	m, err := s.repo.AddTicketMessage(ctx, ticketID, userID, body, s.now())
	if err != nil {
		return nil, err
	}

	if userID != t.UserID {
		s.notifyUser(ctx, t.UserID, mailer.SupportReply, map[string]any{
			"Subject": t.Subject,
			"Message": body,
		})
	}
	return m, nil
}

// CloseTicket закрывает обращение.
func (s *Service) CloseTicket(ctx context.Context, ticketID int64) error {
	return s.repo.CloseTicket(ctx, ticketID, s.now())
}

func (s *Service) authorizeTicket(ctx context.Context, userID int64, t *model.SupportTicket) error {
	if t.UserID == userID {
		return nil
	}
	role, err := s.repo.GetUserRole(ctx, userID)
	if err != nil {
		return err
	}
	if role != model.RoleAdmin {
		return ErrForbidden
	}
	return nil
}
