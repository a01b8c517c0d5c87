package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/hivestin/internal/model"
	"github.com/mmeshcher/hivestin/internal/roi"
)

const withdrawalColumns = `id, user_id, amount, currency, wallet_address, reference, status, hold_state, created_at, decided_at`

func scanWithdrawal(row pgx.Row) (*model.Withdrawal, error) {
	var (
		w            model.Withdrawal
		amount       int64
		status, hold string
	)

	err := row.Scan(&w.ID, &w.UserID, &amount, &w.Currency, &w.WalletAddress, &w.Reference, &status, &hold, &w.CreatedAt, &w.DecidedAt)
	if err != nil {
		return nil, err
	}

	w.Amount = model.FromCents(amount)
	w.Status = model.TransactionStatus(status)
	w.Hold = model.HoldState(hold)

	return &w, nil
}

func collectWithdrawals(rows pgx.Rows) ([]model.Withdrawal, error) {
	defer rows.Close()

	var res []model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		res = append(res, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateWithdrawal создаёт запрос на вывод и сразу списывает его сумму с прибыли пользователя.
// Строка пользователя блокируется, поэтому параллельные запросы не могут увести прибыль в минус.
func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, w *model.Withdrawal) (int64, error) {
	amount := model.ToCents(w.Amount)

	var id int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		profit, err := lockUser(ctx, tx, w.UserID)
		if err != nil {
			return err
		}

		if err := roi.CheckWithdrawal(model.FromCents(amount), model.FromCents(profit)); err != nil {
			return err
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO withdrawals (user_id, amount, currency, wallet_address, reference, status, hold_state)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, created_at`,
			w.UserID, amount, w.Currency, w.WalletAddress, w.Reference,
			string(model.StatusPending), string(model.HoldHeld),
		).Scan(&id, &w.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert withdrawal: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE users SET profit = profit - $2 WHERE id = $1`, w.UserID, amount); err != nil {
			return fmt.Errorf("deduct profit: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	w.ID = id
	w.Status = model.StatusPending
	w.Hold = model.HoldHeld
	return id, nil
}

// GetWithdrawal возвращает запрос на вывод по идентификатору.
func (r *PostgresRepository) GetWithdrawal(ctx context.Context, id int64) (*model.Withdrawal, error) {
	w, err := scanWithdrawal(r.pool.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}
	return w, nil
}

// ListWithdrawalsByUser возвращает историю выводов пользователя.
func (r *PostgresRepository) ListWithdrawalsByUser(ctx context.Context, userID int64) ([]model.Withdrawal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select withdrawals: %w", err)
	}
	return collectWithdrawals(rows)
}

// ListWithdrawals возвращает выводы всех пользователей. Пустой статус означает все статусы.
func (r *PostgresRepository) ListWithdrawals(ctx context.Context, status model.TransactionStatus) ([]model.Withdrawal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals
		 WHERE $1::text = '' OR status = $1
		 ORDER BY created_at DESC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("select withdrawals: %w", err)
	}
	return collectWithdrawals(rows)
}

func lockPendingWithdrawal(ctx context.Context, tx pgx.Tx, id int64) (*model.Withdrawal, error) {
	w, err := scanWithdrawal(tx.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("lock withdrawal: %w", err)
	}
	if w.Status != model.StatusPending || w.Hold != model.HoldHeld {
		return nil, fmt.Errorf("%w: withdrawal %d is %s", ErrAlreadyDecided, id, w.Status)
	}
	return w, nil
}

// ApproveWithdrawal завершает вывод: удержание фиксируется, сумма добавляется к общим выплатам.
func (r *PostgresRepository) ApproveWithdrawal(ctx context.Context, id int64, at time.Time) (*model.Withdrawal, error) {
	return r.decideWithdrawal(ctx, id, at, model.StatusCompleted, model.HoldCommitted,
		`UPDATE users SET total_payout = total_payout + $2 WHERE id = $1`)
}

// RejectWithdrawal отклоняет вывод: удержание снимается, сумма полностью возвращается в прибыль.
func (r *PostgresRepository) RejectWithdrawal(ctx context.Context, id int64, at time.Time) (*model.Withdrawal, error) {
	return r.decideWithdrawal(ctx, id, at, model.StatusFailed, model.HoldReleased,
		`UPDATE users SET profit = profit + $2 WHERE id = $1`)
}

func (r *PostgresRepository) decideWithdrawal(
	ctx context.Context,
	id int64,
	at time.Time,
	status model.TransactionStatus,
	hold model.HoldState,
	userUpdate string,
) (*model.Withdrawal, error) {
	var res *model.Withdrawal
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		w, err := lockPendingWithdrawal(ctx, tx, id)
		if err != nil {
			return err
		}

		if _, err := lockUser(ctx, tx, w.UserID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE withdrawals SET status = $2, hold_state = $3, decided_at = $4 WHERE id = $1`,
			id, string(status), string(hold), at,
		); err != nil {
			return fmt.Errorf("update withdrawal: %w", err)
		}

		if _, err := tx.Exec(ctx, userUpdate, w.UserID, model.ToCents(w.Amount)); err != nil {
			return fmt.Errorf("update user funds: %w", err)
		}

		w.Status = status
		w.Hold = hold
		w.DecidedAt = &at
		res = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
