package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/hivestin/internal/model"
)

// NewUser содержит данные для регистрации пользователя.
type NewUser struct {
	Email           string
	PasswordHash    []byte
	Role            model.Role
	DepositDeadline time.Time
	ReferralCode    string
	ReferredBy      *int64
}

const constraintReferralCode = "users_referral_code_uniq"


const userColumns = `id, email, password_hash, role, balance, profit, total_payout, has_deposited, deposit_deadline, referral_code, referred_by, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u                       model.User
		role                    string
		balance, profit, payout int64
		deadline                *time.Time
	)

	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &balance, &profit, &payout, &u.HasDeposited, &deadline, &u.ReferralCode, &u.ReferredBy, &u.CreatedAt)
	if err != nil {
		return nil, err
	}

	u.Role = model.Role(role)
	u.Balance = model.FromCents(balance)
	u.Profit = model.FromCents(profit)
	u.TotalPayout = model.FromCents(payout)
	if deadline != nil {
		u.DepositDeadline = *deadline
	}

	return &u, nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, nu NewUser) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, role, deposit_deadline, referral_code, referred_by)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		nu.Email, nu.PasswordHash, string(nu.Role), nu.DepositDeadline, nu.ReferralCode, nu.ReferredBy,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err, constraintReferralCode) {
			return 0, ErrReferralCodeTaken
		}
		if isUniqueViolation(err, "") {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, nu.Email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByReferralCode возвращает пользователя по его реферальному коду.
func (r *PostgresRepository) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE referral_code = $1`,
		code,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by referral code: %w", err)
	}
	return u, nil
}

// ListReferrals возвращает пользователей, приглашённых userID, от новых к старым.
func (r *PostgresRepository) ListReferrals(ctx context.Context, userID int64) ([]model.Referral, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, has_deposited, created_at FROM users WHERE referred_by = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select referrals: %w", err)
	}
	defer rows.Close()

	var res []model.Referral
	for rows.Next() {
		var ref model.Referral
		if err := rows.Scan(&ref.UserID, &ref.Email, &ref.HasDeposited, &ref.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		res = append(res, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserRole возвращает текущую роль пользователя.
func (r *PostgresRepository) GetUserRole(ctx context.Context, id int64) (model.Role, error) {
	var role string
	err := r.pool.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, id).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("get user role: %w", err)
	}
	return model.Role(role), nil
}

// ListUsers возвращает всех пользователей, от новых к старым.
func (r *PostgresRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var res []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SetUserRole изменяет роль пользователя.
func (r *PostgresRepository) SetUserRole(ctx context.Context, id int64, role model.Role) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, string(role))
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser удаляет пользователя вместе со всеми его транзакциями и обращениями.
func (r *PostgresRepository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// lockUser блокирует строку пользователя до конца транзакции и возвращает его прибыль в центах.
func lockUser(ctx context.Context, tx pgx.Tx, userID int64) (int64, error) {
	var profit int64
	err := tx.QueryRow(ctx, `SELECT profit FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&profit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("lock user for update: %w", err)
	}
	return profit, nil
}
