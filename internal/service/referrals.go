package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mmeshcher/hivestin/internal/model"
	"github.com/mmeshcher/hivestin/internal/repository"
)

const (
	referralCodeLength   = 8
	referralCodeAttempts = 3
)

// ReferralSummary содержит реферальный код пользователя и приглашённых им пользователей.
type ReferralSummary struct {
	Code      string
	Referrals []model.Referral
}

func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:referralCodeLength])
}

func normalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// createWithReferralCode создаёт пользователя, повторяя генерацию кода при совпадении с уже выданным.
func (s *Service) createWithReferralCode(ctx context.Context, nu *repository.NewUser) (int64, error) {
	var err error
	for range referralCodeAttempts {
		nu.ReferralCode = s.newCode()

		var id int64
		id, err = s.repo.CreateUser(ctx, *nu)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, repository.ErrReferralCodeTaken) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("generate referral code: %w", err)
}

// GetReferrals возвращает реферальный код пользователя и список приглашённых.
func (s *Service) GetReferrals(ctx context.Context, userID int64) (*ReferralSummary, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	refs, err := s.repo.ListReferrals(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &ReferralSummary{Code: u.ReferralCode, Referrals: refs}, nil
}
