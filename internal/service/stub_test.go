package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/hivestin/internal/exchange"
	"github.com/mmeshcher/hivestin/internal/mailer"
	"github.com/mmeshcher/hivestin/internal/model"
	"github.com/mmeshcher/hivestin/internal/plan"
	"github.com/mmeshcher/hivestin/internal/repository"
	"github.com/mmeshcher/hivestin/internal/roi"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// stubRepo хранит данные в памяти и повторяет денежные правила PostgresRepository.
type stubRepo struct {
	nextID      int64
	users       map[int64]*model.User
	deposits    map[int64]*model.Deposit
	withdrawals map[int64]*model.Withdrawal
	tickets     map[int64]*model.SupportTicket
	calls       map[int64]*model.SupportCall
	accrued     map[int64]int64

	createUserErr error
	reminded      []int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users:       make(map[int64]*model.User),
		deposits:    make(map[int64]*model.Deposit),
		withdrawals: make(map[int64]*model.Withdrawal),
		tickets:     make(map[int64]*model.SupportTicket),
		calls:       make(map[int64]*model.SupportCall),
		accrued:     make(map[int64]int64),
	}
}

func (s *stubRepo) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *stubRepo) addUser(email string, role model.Role) *model.User {
	u := &model.User{ID: s.id(), Email: email, Role: role, CreatedAt: testNow}
	s.users[u.ID] = u
	return u
}

func (s *stubRepo) addDeposit(userID int64, amount int64, planID string, status model.TransactionStatus, created time.Time) *model.Deposit {
	d := &model.Deposit{
		ID:              s.id(),
		UserID:          userID,
		Amount:          model.FromCents(amount * 100),
		Currency:        "USDT",
		TransactionHash: "0xabc",
		PlanID:          planID,
		Status:          status,
		CreatedAt:       created,
	}
	s.deposits[d.ID] = d
	return d
}

func (s *stubRepo) Ping(ctx context.Context) error { return nil }
func (s *stubRepo) Close() error                   { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, nu repository.NewUser) (int64, error) {
	if s.createUserErr != nil {
		return 0, s.createUserErr
	}
	for _, u := range s.users {
		if u.ReferralCode == nu.ReferralCode {
			return 0, repository.ErrReferralCodeTaken
		}
		if u.Email == nu.Email {
			return 0, repository.ErrUserExists
		}
	}
	u := &model.User{
		ID:              s.id(),
		Email:           nu.Email,
		PasswordHash:    nu.PasswordHash,
		Role:            nu.Role,
		DepositDeadline: nu.DepositDeadline,
		ReferralCode:    nu.ReferralCode,
		ReferredBy:      nu.ReferredBy,
		CreatedAt:       testNow,
	}
	s.users[u.ID] = u
	return u.ID, nil
}

func (s *stubRepo) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	for _, u := range s.users {
		if u.ReferralCode == code {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *stubRepo) ListReferrals(ctx context.Context, userID int64) ([]model.Referral, error) {
	var res []model.Referral
	for _, u := range s.users {
		if u.ReferredBy != nil && *u.ReferredBy == userID {
			res = append(res, model.Referral{UserID: u.ID, Email: u.Email, HasDeposited: u.HasDeposited, JoinedAt: u.CreatedAt})
		}
	}
	return res, nil
}

func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *stubRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (s *stubRepo) GetUserRole(ctx context.Context, id int64) (model.Role, error) {
	u, ok := s.users[id]
	if !ok {
		return "", repository.ErrUserNotFound
	}
	return u.Role, nil
}

func (s *stubRepo) ListUsers(ctx context.Context) ([]model.User, error) {
	var res []model.User
	for _, u := range s.users {
		res = append(res, *u)
	}
	return res, nil
}

func (s *stubRepo) SetUserRole(ctx context.Context, id int64, role model.Role) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Role = role
	return nil
}

func (s *stubRepo) DeleteUser(ctx context.Context, id int64) error {
	if _, ok := s.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *stubRepo) CreateDeposit(ctx context.Context, d *model.Deposit) (int64, error) {
	for _, existing := range s.deposits {
		if existing.TransactionHash == d.TransactionHash {
			return 0, repository.ErrDuplicateTxHash
		}
	}
	d.ID = s.id()
	d.Status = model.StatusPending
	d.CreatedAt = testNow
	c := *d
	s.deposits[d.ID] = &c
	if u, ok := s.users[d.UserID]; ok {
		u.HasDeposited = true
	}
	return d.ID, nil
}

func (s *stubRepo) GetDeposit(ctx context.Context, id int64) (*model.Deposit, error) {
	d, ok := s.deposits[id]
	if !ok {
		return nil, repository.ErrDepositNotFound
	}
	c := *d
	return &c, nil
}

func (s *stubRepo) listDeposits(match func(*model.Deposit) bool) []model.Deposit {
	var res []model.Deposit
	for _, d := range s.deposits {
		if match(d) {
			res = append(res, *d)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (s *stubRepo) ListDepositsByUser(ctx context.Context, userID int64) ([]model.Deposit, error) {
	return s.listDeposits(func(d *model.Deposit) bool { return d.UserID == userID }), nil
}

func (s *stubRepo) ListDeposits(ctx context.Context, status model.TransactionStatus) ([]model.Deposit, error) {
	return s.listDeposits(func(d *model.Deposit) bool { return status == "" || d.Status == status }), nil
}

func (s *stubRepo) ListPendingDeposits(ctx context.Context, limit int) ([]model.Deposit, error) {
	return s.listDeposits(func(d *model.Deposit) bool { return d.Status == model.StatusPending }), nil
}

func (s *stubRepo) ListCompletedDeposits(ctx context.Context) ([]model.Deposit, error) {
	return s.listDeposits(func(d *model.Deposit) bool { return d.Status == model.StatusCompleted }), nil
}

func (s *stubRepo) decideDeposit(id int64, status model.TransactionStatus, at time.Time) (*model.Deposit, error) {
	d, ok := s.deposits[id]
	if !ok {
		return nil, repository.ErrDepositNotFound
	}
	if d.Status != model.StatusPending {
		return nil, repository.ErrAlreadyDecided
	}
	d.Status = status
	d.ConfirmedAt = &at
	c := *d
	return &c, nil
}

func (s *stubRepo) CompleteDeposit(ctx context.Context, id int64, at time.Time) (*model.Deposit, error) {
	d, err := s.decideDeposit(id, model.StatusCompleted, at)
	if err != nil {
		return nil, err
	}
	if u, ok := s.users[d.UserID]; ok {
		u.Balance = u.Balance.Add(d.Amount)
	}
	return d, nil
}

func (s *stubRepo) FailDeposit(ctx context.Context, id int64, at time.Time) (*model.Deposit, error) {
	return s.decideDeposit(id, model.StatusFailed, at)
}

func (s *stubRepo) CreditAccrual(ctx context.Context, depositID, accrued, weeks int64, at time.Time) (int64, error) {
	d, ok := s.deposits[depositID]
	if !ok {
		return 0, repository.ErrDepositNotFound
	}
	stored := s.accrued[depositID]
	if d.Status != model.StatusCompleted || accrued <= stored {
		return 0, nil
	}
	delta := accrued - stored
	s.accrued[depositID] = accrued
	u := s.users[d.UserID]
	u.Profit = u.Profit.Add(model.FromCents(delta))
	return delta, nil
}

func (s *stubRepo) ListProfitDistributions(ctx context.Context, userID int64) ([]model.ProfitDistribution, error) {
	return nil, nil
}

func (s *stubRepo) CreateWithdrawal(ctx context.Context, w *model.Withdrawal) (int64, error) {
	u, ok := s.users[w.UserID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	if err := roi.CheckWithdrawal(w.Amount, u.Profit); err != nil {
		return 0, err
	}
	u.Profit = u.Profit.Sub(w.Amount)

	w.ID = s.id()
	w.Status = model.StatusPending
	w.Hold = model.HoldHeld
	w.CreatedAt = testNow
	c := *w
	s.withdrawals[w.ID] = &c
	return w.ID, nil
}

func (s *stubRepo) GetWithdrawal(ctx context.Context, id int64) (*model.Withdrawal, error) {
	w, ok := s.withdrawals[id]
	if !ok {
		return nil, repository.ErrWithdrawalNotFound
	}
	c := *w
	return &c, nil
}

func (s *stubRepo) ListWithdrawalsByUser(ctx context.Context, userID int64) ([]model.Withdrawal, error) {
	var res []model.Withdrawal
	for _, w := range s.withdrawals {
		if w.UserID == userID {
			res = append(res, *w)
		}
	}
	return res, nil
}

func (s *stubRepo) ListWithdrawals(ctx context.Context, status model.TransactionStatus) ([]model.Withdrawal, error) {
	var res []model.Withdrawal
	for _, w := range s.withdrawals {
		if status == "" || w.Status == status {
			res = append(res, *w)
		}
	}
	return res, nil
}

func (s *stubRepo) decideWithdrawal(id int64, status model.TransactionStatus, hold model.HoldState, at time.Time) (*model.Withdrawal, error) {
	w, ok := s.withdrawals[id]
	if !ok {
		return nil, repository.ErrWithdrawalNotFound
	}
	if w.Status != model.StatusPending {
		return nil, repository.ErrAlreadyDecided
	}
	w.Status = status
	w.Hold = hold
	w.DecidedAt = &at
	c := *w
	return &c, nil
}

func (s *stubRepo) ApproveWithdrawal(ctx context.Context, id int64, at time.Time) (*model.Withdrawal, error) {
	w, err := s.decideWithdrawal(id, model.StatusCompleted, model.HoldCommitted, at)
	if err != nil {
		return nil, err
	}
	u := s.users[w.UserID]
	u.TotalPayout = u.TotalPayout.Add(w.Amount)
	return w, nil
}

func (s *stubRepo) RejectWithdrawal(ctx context.Context, id int64, at time.Time) (*model.Withdrawal, error) {
	w, err := s.decideWithdrawal(id, model.StatusFailed, model.HoldReleased, at)
	if err != nil {
		return nil, err
	}
	u := s.users[w.UserID]
	u.Profit = u.Profit.Add(w.Amount)
	return w, nil
}

func (s *stubRepo) CreateTicket(ctx context.Context, t *model.SupportTicket, message string) (int64, error) {
	t.ID = s.id()
	t.Status = model.TicketOpen
	t.Messages = []model.TicketMessage{{ID: s.id(), TicketID: t.ID, SenderID: t.UserID, Body: message}}
	c := *t
	s.tickets[t.ID] = &c
	return t.ID, nil
}

func (s *stubRepo) GetTicket(ctx context.Context, id int64) (*model.SupportTicket, error) {
	t, ok := s.tickets[id]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	c := *t
	return &c, nil
}

func (s *stubRepo) ListTickets(ctx context.Context, userID int64) ([]model.SupportTicket, error) {
	var res []model.SupportTicket
	for _, t := range s.tickets {
		if userID == 0 || t.UserID == userID {
			res = append(res, *t)
		}
	}
	return res, nil
}

func (s *stubRepo) AddTicketMessage(ctx context.Context, ticketID, senderID int64, body string, at time.Time) (*model.TicketMessage, error) {
	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	if t.Status == model.TicketClosed {
		return nil, repository.ErrTicketClosed
	}
	m := model.TicketMessage{ID: s.id(), TicketID: ticketID, SenderID: senderID, Body: body, CreatedAt: at}
	t.Messages = append(t.Messages, m)
	return &m, nil
}

func (s *stubRepo) CloseTicket(ctx context.Context, id int64, at time.Time) error {
	t, ok := s.tickets[id]
	if !ok {
		return repository.ErrTicketNotFound
	}
	t.Status = model.TicketClosed
	return nil
}

func (s *stubRepo) CreateCall(ctx context.Context, c *model.SupportCall) (int64, error) {
	for _, existing := range s.calls {
		if !existing.Date.Equal(c.Date) {
			continue
		}
		if existing.Time == c.Time && existing.Status != model.CallCancelled {
			return 0, repository.ErrSlotTaken
		}
		if existing.UserID == c.UserID && existing.Status == model.CallScheduled {
			return 0, repository.ErrAlreadyBooked
		}
	}
	c.ID = s.id()
	c.Status = model.CallScheduled
	cp := *c
	if u, ok := s.users[c.UserID]; ok {
		cp.UserEmail = u.Email
	}
	s.calls[c.ID] = &cp
	return c.ID, nil
}

func (s *stubRepo) GetCall(ctx context.Context, id int64) (*model.SupportCall, error) {
	c, ok := s.calls[id]
	if !ok {
		return nil, repository.ErrCallNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *stubRepo) ListCalls(ctx context.Context, userID int64) ([]model.SupportCall, error) {
	var res []model.SupportCall
	for _, c := range s.calls {
		if userID == 0 || c.UserID == userID {
			res = append(res, *c)
		}
	}
	return res, nil
}

func (s *stubRepo) BookedTimes(ctx context.Context, date time.Time) ([]string, error) {
	var res []string
	for _, c := range s.calls {
		if c.Date.Equal(date) && c.Status != model.CallCancelled {
			res = append(res, c.Time)
		}
	}
	return res, nil
}

func (s *stubRepo) HasScheduledCall(ctx context.Context, userID int64, date time.Time) (bool, error) {
	for _, c := range s.calls {
		if c.UserID == userID && c.Date.Equal(date) && c.Status == model.CallScheduled {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) SetCallMeetLink(ctx context.Context, id int64, link string) error {
	c, ok := s.calls[id]
	if !ok {
		return repository.ErrCallNotFound
	}
	c.MeetLink = link
	return nil
}

func (s *stubRepo) UpdateCallStatus(ctx context.Context, id int64, status model.CallStatus) (*model.SupportCall, error) {
	c, ok := s.calls[id]
	if !ok {
		return nil, repository.ErrCallNotFound
	}
	c.Status = status
	cp := *c
	return &cp, nil
}

func (s *stubRepo) ListCallsForReminder(ctx context.Context, from, to time.Time) ([]model.SupportCall, error) {
	var res []model.SupportCall
	for _, c := range s.calls {
		at := c.StartsAt()
		if c.Status == model.CallScheduled && !c.ReminderSent && !at.Before(from) && at.Before(to) {
			res = append(res, *c)
		}
	}
	return res, nil
}

func (s *stubRepo) MarkReminderSent(ctx context.Context, id int64) error {
	c, ok := s.calls[id]
	if !ok {
		return repository.ErrCallNotFound
	}
	c.ReminderSent = true
	s.reminded = append(s.reminded, id)
	return nil
}

func (s *stubRepo) GetStats(ctx context.Context, dayStart time.Time) (*model.Stats, error) {
	return &model.Stats{TotalUsers: int64(len(s.users))}, nil
}

type sentMail struct {
	to   string
	name mailer.Template
	data map[string]any
}

type stubMailer struct {
	sent []sentMail
	err  error
}

func (m *stubMailer) Send(ctx context.Context, to string, name mailer.Template, data any) error {
	if m.err != nil {
		return m.err
	}
	d, _ := data.(map[string]any)
	m.sent = append(m.sent, sentMail{to: to, name: name, data: d})
	return nil
}

func (m *stubMailer) templates() []mailer.Template {
	res := make([]mailer.Template, 0, len(m.sent))
	for _, s := range m.sent {
		res = append(res, s.name)
	}
	return res
}

type stubMeet struct {
	link string
	err  error
}

func (m stubMeet) CreateMeeting(ctx context.Context, summary string, start time.Time, d time.Duration, attendee string) (string, error) {
	return m.link, m.err
}

type stubExchange struct {
	record     *exchange.DepositRecord
	status     int
	retryAfter time.Duration
	err        error
	calls      int
}

func (e *stubExchange) GetDepositRecord(ctx context.Context, coin, txID string) (*exchange.DepositRecord, int, time.Duration, error) {
	e.calls++
	return e.record, e.status, e.retryAfter, e.err
}

var errStub = errors.New("stub failure")

func newTestService(t *testing.T, repo *stubRepo, opts ...Option) (*Service, *stubMailer) {
	t.Helper()

	plans, err := plan.Default()
	require.NoError(t, err)

	mail := &stubMailer{}
	opts = append([]Option{WithMailer(mail)}, opts...)

	svc := NewService(repo, plans, zap.NewNop(), opts...)
	svc.now = func() time.Time { return testNow }
	return svc, mail
}
