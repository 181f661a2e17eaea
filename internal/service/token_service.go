package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/publisher"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/pkg/utils"
)

const (
	DefaultTokenWindow      = 24 * time.Hour
	tokenRefreshConcurrency = 10
)

type TokenCheckReport struct {
	Checked   int `json:"checked"`
	Refreshed int `json:"refreshed"`
	Expired   int `json:"expired"`
	Failed    int `json:"failed"`
}

type TokenService interface {
	CheckExpiredTokens(ctx context.Context, window time.Duration) (*TokenCheckReport, error)
}

type tokenService struct {
	accounts  repository.SocialAccountRepository
	registry  *publisher.Registry
	notifier  Notifier
	secretKey []byte
	logger    *slog.Logger
	now       func() time.Time
}

func NewTokenService(
	accounts repository.SocialAccountRepository,
	registry *publisher.Registry,
	notifier Notifier,
	secretKey string,
	logger *slog.Logger) TokenService {
	return &tokenService{
		accounts:  accounts,
		registry:  registry,
		notifier:  notifier,
		secretKey: []byte(secretKey),
		logger:    resolveLogger(logger),
		now:       time.Now,
	}
}

// CheckExpiredTokens refreshes credentials that expire within window. Accounts that cannot be
// refreshed and are already past expiry are marked expired and their owner is notified.
func (s *tokenService) CheckExpiredTokens(ctx context.Context, window time.Duration) (*TokenCheckReport, error) {
	if window <= 0 {
		window = DefaultTokenWindow
	}
	now := s.now()

	accounts, err := s.accounts.ListByTimeInterval(ctx, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("list expiring accounts: %w", err)
	}

	report := &TokenCheckReport{Checked: len(accounts)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, tokenRefreshConcurrency)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			outcome := s.checkAccount(ctx, acc, now)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case tokenRefreshed:
				report.Refreshed++
			case tokenExpired:
				report.Expired++
			case tokenFailed:
				report.Failed++
			}
		}(acc)
	}
	wg.Wait()

	s.logger.Info("token check finished",
		"checked", report.Checked,
		"refreshed", report.Refreshed,
		"expired", report.Expired,
		"failed", report.Failed,
	)
	return report, nil
}

type tokenOutcome int

const (
	tokenRefreshed tokenOutcome = iota
	tokenExpired
	tokenFailed
)

func (s *tokenService) checkAccount(ctx context.Context, acc *models.SocialAccount, now time.Time) tokenOutcome {
	logger := s.logger.With("account_id", acc.ID, "platform", acc.Platform)

	err := s.refresh(ctx, acc)
	if err == nil {
		logger.Info("token refreshed")
		return tokenRefreshed
	}
	logger.Warn("token refresh failed", "error", err)

	if !acc.Expired(now) {
		s.notifier.Notify(ctx, &models.Notification{
			UserID:  acc.UserID,
			Kind:    models.NotificationTokenRefreshFail,
			Subject: "Your account connection is about to expire",
			Body:    fmt.Sprintf("We could not renew access to %s (%s). Reconnect it before %s.", acc.AccountName, acc.Platform, acc.TokenExpiresAt.Format(time.RFC1123)),
		})
		return tokenFailed
	}

	if err := s.accounts.UpdateStatus(ctx, acc.ID, repository.AccountStatusExpired); err != nil {
		logger.Error("mark account expired failed", "error", err)
		return tokenFailed
	}
	s.notifier.Notify(ctx, &models.Notification{
		UserID:  acc.UserID,
		Kind:    models.NotificationAccountExpired,
		Subject: "Your account was disconnected",
		Body:    fmt.Sprintf("Access to %s (%s) expired. Scheduled posts for it will fail until you reconnect.", acc.AccountName, acc.Platform),
	})
	return tokenExpired
}

func (s *tokenService) refresh(ctx context.Context, acc *models.SocialAccount) error {
	pub, err := s.registry.Get(acc.Platform)
	if err != nil {
		return err
	}
	refresher, ok := pub.(publisher.TokenRefresher)
	if !ok {
		return errors.New("platform does not support token refresh")
	}

	token, err := refresher.RefreshToken(ctx, acc)
	if err != nil {
		return err
	}

	accessToken, err := utils.Encrypt([]byte(token.AccessToken), s.secretKey)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	var refreshToken string
	if token.RefreshToken != "" {
		refreshToken, err = utils.Encrypt([]byte(token.RefreshToken), s.secretKey)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	return s.accounts.SetToken(ctx, acc.ID, acc.AccessToken, &models.SocialAccount{
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: token.ExpiresAt,
	})
}
