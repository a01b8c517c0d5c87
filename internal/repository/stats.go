package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/hivestin/internal/model"
)

// GetStats собирает агрегированную статистику платформы. dayStart задаёт начало текущих суток.
func (r *PostgresRepository) GetStats(ctx context.Context, dayStart time.Time) (*model.Stats, error) {
	s := &model.Stats{CallsByTopic: make(map[string]int64)}

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE created_at >= $1),
		        COUNT(*) FILTER (WHERE has_deposited)
		 FROM users`,
		dayStart,
	).Scan(&s.TotalUsers, &s.NewUsersToday, &s.DepositedUsers)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}

	var deposits, withdrawals int64
	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0),
		        COUNT(*) FILTER (WHERE status = 'pending')
		 FROM deposits`,
	).Scan(&deposits, &s.PendingDeposits)
	if err != nil {
		return nil, fmt.Errorf("deposit stats: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0),
		        COUNT(*) FILTER (WHERE status = 'pending')
		 FROM withdrawals`,
	).Scan(&withdrawals, &s.PendingWithdrawals)
	if err != nil {
		return nil, fmt.Errorf("withdrawal stats: %w", err)
	}

	s.TotalDeposits = model.FromCents(deposits)
	s.TotalWithdrawals = model.FromCents(withdrawals)

	rows, err := r.pool.Query(ctx, `SELECT topic, COUNT(*) FROM support_calls GROUP BY topic`)
	if err != nil {
		return nil, fmt.Errorf("call stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			topic string
			n     int64
		)
		if err := rows.Scan(&topic, &n); err != nil {
			return nil, fmt.Errorf("scan call stats: %w", err)
		}
		s.CallsByTopic[topic] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return s, nil
}
