package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mmeshcher/hivestin/internal/audit"
	"github.com/mmeshcher/hivestin/internal/model"
)

// GetStats возвращает статистику платформы на текущие сутки (UTC).
func (s *Service) GetStats(ctx context.Context) (*model.Stats, error) {
	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.repo.GetStats(ctx, dayStart)
}

// ListUsers возвращает всех пользователей.
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.repo.ListUsers(ctx)
}

// DeleteUser удаляет пользователя. Администратор не может удалить сам себя.
func (s *Service) DeleteUser(ctx context.Context, adminID, userID int64) error {
	if adminID == userID {
		return fmt.Errorf("%w: cannot delete own account", ErrForbidden)
	}
	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.record(ctx, adminID, audit.ActionUserDeleted, userTarget(userID), "")
	return nil
}

// SetUserRole меняет роль пользователя. Администратор не может снять роль с себя.
func (s *Service) SetUserRole(ctx context.Context, adminID, userID int64, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	if adminID == userID && role != model.RoleAdmin {
		return fmt.Errorf("%w: cannot demote own account", ErrForbidden)
	}
	if err := s.repo.SetUserRole(ctx, userID, role); err != nil {
		return err
	}
	s.record(ctx, adminID, audit.ActionRoleChanged, userTarget(userID), string(role))
	return nil
}

// RecentAudit возвращает последние события журнала аудита.
func (s *Service) RecentAudit(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.audit.Recent(ctx, limit)
}

func userTarget(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}
