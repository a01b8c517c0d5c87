package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/hivestin/internal/model"
)

const depositColumns = `id, user_id, amount, currency, tx_hash, plan_id, status, accrued, created_at, confirmed_at`

func scanDeposit(row pgx.Row) (*model.Deposit, error) {
	var (
		d               model.Deposit
		amount, accrued int64
		status          string
	)

	err := row.Scan(&d.ID, &d.UserID, &amount, &d.Currency, &d.TransactionHash, &d.PlanID, &status, &accrued, &d.CreatedAt, &d.ConfirmedAt)
	if err != nil {
		return nil, err
	}

	d.Amount = model.FromCents(amount)
	d.AccruedProfit = model.FromCents(accrued)
	d.Status = model.TransactionStatus(status)

	return &d, nil
}

func collectDeposits(rows pgx.Rows) ([]model.Deposit, error) {
	defer rows.Close()

	var res []model.Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deposit: %w", err)
		}
		res = append(res, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateDeposit сохраняет депозит в статусе pending и отмечает, что пользователь вносил средства.
func (r *PostgresRepository) CreateDeposit(ctx context.Context, d *model.Deposit) (int64, error) {
	var id int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO deposits (user_id, amount, currency, tx_hash, plan_id, status)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, created_at`,
			d.UserID, model.ToCents(d.Amount), d.Currency, d.TransactionHash, d.PlanID, string(model.StatusPending),
		).Scan(&id, &d.CreatedAt)
		if err != nil {
			if isUniqueViolation(err, "") {
				return ErrDuplicateTxHash
			}
			return fmt.Errorf("insert deposit: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE users SET has_deposited = TRUE WHERE id = $1`, d.UserID); err != nil {
			return fmt.Errorf("mark user deposited: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	d.ID = id
	d.Status = model.StatusPending
	return id, nil
}

// GetDeposit возвращает депозит по идентификатору.
func (r *PostgresRepository) GetDeposit(ctx context.Context, id int64) (*model.Deposit, error) {
	d, err := scanDeposit(r.pool.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepositNotFound
		}
		return nil, fmt.Errorf("get deposit: %w", err)
	}
	return d, nil
}

// ListDepositsByUser возвращает депозиты пользователя, от новых к старым.
func (r *PostgresRepository) ListDepositsByUser(ctx context.Context, userID int64) ([]model.Deposit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select deposits: %w", err)
	}
	return collectDeposits(rows)
}

// ListDeposits возвращает депозиты всех пользователей. Пустой статус означает все статусы.
func (r *PostgresRepository) ListDeposits(ctx context.Context, status model.TransactionStatus) ([]model.Deposit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+depositColumns+` FROM deposits
		 WHERE $1::text = '' OR status = $1
		 ORDER BY created_at DESC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("select deposits: %w", err)
	}
	return collectDeposits(rows)
}

// ListPendingDeposits возвращает самые старые депозиты, ожидающие подтверждения.
func (r *PostgresRepository) ListPendingDeposits(ctx context.Context, limit int) ([]model.Deposit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+depositColumns+` FROM deposits
		 WHERE status = $1
		 ORDER BY created_at
		 LIMIT $2`,
		string(model.StatusPending), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending deposits: %w", err)
	}
	return collectDeposits(rows)
}

// ListCompletedDeposits возвращает все подтверждённые депозиты для начисления прибыли.
func (r *PostgresRepository) ListCompletedDeposits(ctx context.Context) ([]model.Deposit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE status = $1 ORDER BY id`,
		string(model.StatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("select completed deposits: %w", err)
	}
	return collectDeposits(rows)
}

func lockPendingDeposit(ctx context.Context, tx pgx.Tx, id int64) (*model.Deposit, error) {
	d, err := scanDeposit(tx.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepositNotFound
		}
		return nil, fmt.Errorf("lock deposit: %w", err)
	}
	if d.Status != model.StatusPending {
		return nil, fmt.Errorf("%w: deposit %d is %s", ErrAlreadyDecided, id, d.Status)
	}
	return d, nil
}

// CompleteDeposit подтверждает депозит и зачисляет его сумму на баланс пользователя.
func (r *PostgresRepository) CompleteDeposit(ctx context.Context, id int64, at time.Time) (*model.Deposit, error) {
	var res *model.Deposit
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		d, err := lockPendingDeposit(ctx, tx, id)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE deposits SET status = $2, confirmed_at = $3 WHERE id = $1`,
			id, string(model.StatusCompleted), at,
		); err != nil {
			return fmt.Errorf("complete deposit: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE users SET balance = balance + $2 WHERE id = $1`,
			d.UserID, model.ToCents(d.Amount),
		); err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}

		d.Status = model.StatusCompleted
		d.ConfirmedAt = &at
		res = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// FailDeposit отклоняет депозит, ожидающий подтверждения.
func (r *PostgresRepository) FailDeposit(ctx context.Context, id int64, at time.Time) (*model.Deposit, error) {
	var res *model.Deposit
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		d, err := lockPendingDeposit(ctx, tx, id)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE deposits SET status = $2, confirmed_at = $3 WHERE id = $1`,
			id, string(model.StatusFailed), at,
		); err != nil {
			return fmt.Errorf("fail deposit: %w", err)
		}

		d.Status = model.StatusFailed
		d.ConfirmedAt = &at
		res = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CreditAccrual доводит начисленную по депозиту прибыль до accrued (в центах) и зачисляет разницу
// на прибыль пользователя. Возвращает зачисленную разницу; ноль означает, что начислять нечего.
func (r *PostgresRepository) CreditAccrual(ctx context.Context, depositID, accrued, weeks int64, at time.Time) (int64, error) {
	var credited int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		credited = 0

		var (
			userID int64
			stored int64
			status string
		)
		err := tx.QueryRow(ctx,
			`SELECT user_id, accrued, status FROM deposits WHERE id = $1 FOR UPDATE`,
			depositID,
		).Scan(&userID, &stored, &status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrDepositNotFound
			}
			return fmt.Errorf("lock deposit: %w", err)
		}

		if model.TransactionStatus(status) != model.StatusCompleted || accrued <= stored {
			return nil
		}
		delta := accrued - stored

		if _, err := lockUser(ctx, tx, userID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE deposits SET accrued = $2 WHERE id = $1`, depositID, accrued); err != nil {
			return fmt.Errorf("update accrued: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE users SET profit = profit + $2 WHERE id = $1`, userID, delta); err != nil {
			return fmt.Errorf("credit profit: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO profit_distributions (user_id, deposit_id, amount, weeks, created_at) VALUES ($1, $2, $3, $4, $5)`,
			userID, depositID, delta, weeks, at,
		); err != nil {
			return fmt.Errorf("insert profit distribution: %w", err)
		}

		credited = delta
		return nil
	})
	if err != nil {
		return 0, err
	}
	return credited, nil
}

// ListProfitDistributions возвращает начисления прибыли пользователя, от новых к старым.
func (r *PostgresRepository) ListProfitDistributions(ctx context.Context, userID int64) ([]model.ProfitDistribution, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, deposit_id, amount, weeks, created_at
		 FROM profit_distributions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select profit distributions: %w", err)
	}
	defer rows.Close()

	var res []model.ProfitDistribution
	for rows.Next() {
		var (
			p      model.ProfitDistribution
			amount int64
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.DepositID, &amount, &p.Weeks, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan profit distribution: %w", err)
		}
		p.Amount = model.FromCents(amount)
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
