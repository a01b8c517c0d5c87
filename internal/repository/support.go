package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/hivestin/internal/model"
)

// CreateTicket создаёт обращение в поддержку с первым сообщением пользователя.
func (r *PostgresRepository) CreateTicket(ctx context.Context, t *model.SupportTicket, message string) (int64, error) {
	var id int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO support_tickets (user_id, subject, category, status)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, created_at, updated_at`,
			t.UserID, t.Subject, t.Category, string(model.TicketOpen),
		).Scan(&id, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}

		var m model.TicketMessage
		err = tx.QueryRow(ctx,
			`INSERT INTO ticket_messages (ticket_id, sender_id, body) VALUES ($1, $2, $3) RETURNING id, created_at`,
			id, t.UserID, message,
		).Scan(&m.ID, &m.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert ticket message: %w", err)
		}

		m.TicketID = id
		m.SenderID = t.UserID
		m.Body = message
		t.Messages = []model.TicketMessage{m}
		return nil
	})
	if err != nil {
		return 0, err
	}

	t.ID = id
	t.Status = model.TicketOpen
	return id, nil
}

// GetTicket возвращает обращение вместе с перепиской.
func (r *PostgresRepository) GetTicket(ctx context.Context, id int64) (*model.SupportTicket, error) {
	var (
		t      model.SupportTicket
		status string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, subject, category, status, created_at, updated_at FROM support_tickets WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.UserID, &t.Subject, &t.Category, &status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	t.Status = model.TicketStatus(status)

	rows, err := r.pool.Query(ctx,
		`SELECT id, ticket_id, COALESCE(sender_id, 0), body, created_at
		 FROM ticket_messages
		 WHERE ticket_id = $1
		 ORDER BY created_at, id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("select ticket messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m model.TicketMessage
		if err := rows.Scan(&m.ID, &m.TicketID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket message: %w", err)
		}
		t.Messages = append(t.Messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &t, nil
}

// ListTickets возвращает обращения без переписки. Нулевой userID означает обращения всех пользователей.
func (r *PostgresRepository) ListTickets(ctx context.Context, userID int64) ([]model.SupportTicket, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, subject, category, status, created_at, updated_at
		 FROM support_tickets
		 WHERE $1::bigint = 0 OR user_id = $1
		 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select tickets: %w", err)
	}
	defer rows.Close()

	var res []model.SupportTicket
	for rows.Next() {
		var (
			t      model.SupportTicket
			status string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Subject, &t.Category, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		t.Status = model.TicketStatus(status)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// AddTicketMessage добавляет сообщение в открытое обращение.
func (r *PostgresRepository) AddTicketMessage(ctx context.Context, ticketID, senderID int64, body string, at time.Time) (*model.TicketMessage, error) {
	m := &model.TicketMessage{TicketID: ticketID, SenderID: senderID, Body: body}
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM support_tickets WHERE id = $1 FOR UPDATE`, ticketID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTicketNotFound
			}
			return fmt.Errorf("lock ticket: %w", err)
		}
		if model.TicketStatus(status) == model.TicketClosed {
			return ErrTicketClosed
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO ticket_messages (ticket_id, sender_id, body, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
			ticketID, senderID, body, at,
		).Scan(&m.ID)
		if err != nil {
			return fmt.Errorf("insert ticket message: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE support_tickets SET updated_at = $2 WHERE id = $1`, ticketID, at); err != nil {
			return fmt.Errorf("touch ticket: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.CreatedAt = at
	return m, nil
}

// CloseTicket закрывает обращение.
func (r *PostgresRepository) CloseTicket(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE support_tickets SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(model.TicketClosed), at,
	)
	if err != nil {
		return fmt.Errorf("close ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTicketNotFound
	}
	return nil
}

const callColumns = `c.id, c.user_id, u.email, c.call_date, c.call_time, c.topic, c.status, c.meet_link, c.reminder_sent, c.created_at`

func scanCall(row pgx.Row) (*model.SupportCall, error) {
	var (
		c             model.SupportCall
		topic, status string
	)
	err := row.Scan(&c.ID, &c.UserID, &c.UserEmail, &c.Date, &c.Time, &topic, &status, &c.MeetLink, &c.ReminderSent, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Topic = model.CallTopic(topic)
	c.Status = model.CallStatus(status)
	return &c, nil
}

func collectCalls(rows pgx.Rows) ([]model.SupportCall, error) {
	defer rows.Close()

	var res []model.SupportCall
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan support call: %w", err)
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateCall бронирует звонок. Занятое время и второй звонок пользователя в тот же день отклоняются индексами.
func (r *PostgresRepository) CreateCall(ctx context.Context, c *model.SupportCall) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO support_calls (user_id, call_date, call_time, starts_at, topic, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		c.UserID, c.Date, c.Time, c.StartsAt(), string(c.Topic), string(model.CallScheduled),
	).Scan(&id, &c.CreatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err, constraintCallSlot):
			return 0, ErrSlotTaken
		case isUniqueViolation(err, constraintCallUserDay):
			return 0, ErrAlreadyBooked
		}
		return 0, fmt.Errorf("insert support call: %w", err)
	}

	c.ID = id
	c.Status = model.CallScheduled
	return id, nil
}

// GetCall возвращает звонок по идентификатору.
func (r *PostgresRepository) GetCall(ctx context.Context, id int64) (*model.SupportCall, error) {
	c, err := scanCall(r.pool.QueryRow(ctx,
		`SELECT `+callColumns+` FROM support_calls c JOIN users u ON u.id = c.user_id WHERE c.id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("get support call: %w", err)
	}
	return c, nil
}

// ListCalls возвращает звонки. Нулевой userID означает звонки всех пользователей.
func (r *PostgresRepository) ListCalls(ctx context.Context, userID int64) ([]model.SupportCall, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+callColumns+` FROM support_calls c JOIN users u ON u.id = c.user_id
		 WHERE $1::bigint = 0 OR c.user_id = $1
		 ORDER BY c.starts_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select support calls: %w", err)
	}
	return collectCalls(rows)
}

// BookedTimes возвращает время всех неотменённых звонков на дату.
func (r *PostgresRepository) BookedTimes(ctx context.Context, date time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT call_time FROM support_calls WHERE call_date = $1 AND status <> $2`,
		date, string(model.CallCancelled),
	)
	if err != nil {
		return nil, fmt.Errorf("select booked times: %w", err)
	}

	times, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect booked times: %w", err)
	}
	return times, nil
}

// HasScheduledCall сообщает, есть ли у пользователя запланированный звонок на дату.
func (r *PostgresRepository) HasScheduledCall(ctx context.Context, userID int64, date time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM support_calls WHERE user_id = $1 AND call_date = $2 AND status = $3)`,
		userID, date, string(model.CallScheduled),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check scheduled call: %w", err)
	}
	return exists, nil
}

// SetCallMeetLink сохраняет ссылку на видеовстречу.
func (r *PostgresRepository) SetCallMeetLink(ctx context.Context, id int64, link string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE support_calls SET meet_link = $2 WHERE id = $1`, id, link)
	if err != nil {
		return fmt.Errorf("update meet link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCallNotFound
	}
	return nil
}

// UpdateCallStatus меняет статус звонка и возвращает обновлённую запись.
func (r *PostgresRepository) UpdateCallStatus(ctx context.Context, id int64, status model.CallStatus) (*model.SupportCall, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE support_calls SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		if isUniqueViolation(err, constraintCallSlot) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("update support call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrCallNotFound
	}
	return r.GetCall(ctx, id)
}

// ListCallsForReminder возвращает запланированные звонки, начинающиеся в [from, to), по которым не отправлено напоминание.
func (r *PostgresRepository) ListCallsForReminder(ctx context.Context, from, to time.Time) ([]model.SupportCall, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+callColumns+` FROM support_calls c JOIN users u ON u.id = c.user_id
		 WHERE c.status = $1 AND NOT c.reminder_sent AND c.starts_at >= $2 AND c.starts_at < $3
		 ORDER BY c.starts_at`,
		string(model.CallScheduled), from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select calls for reminder: %w", err)
	}
	return collectCalls(rows)
}

// MarkReminderSent отмечает, что напоминание о звонке отправлено.
func (r *PostgresRepository) MarkReminderSent(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `UPDATE support_calls SET reminder_sent = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}
