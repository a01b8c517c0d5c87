// Package main запускает HTTP-сервер инвестиционной платформы Hivestin.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/hivestin/internal/audit"
	"github.com/mmeshcher/hivestin/internal/config"
	"github.com/mmeshcher/hivestin/internal/exchange"
	"github.com/mmeshcher/hivestin/internal/handler"
	"github.com/mmeshcher/hivestin/internal/mailer"
	"github.com/mmeshcher/hivestin/internal/meet"
	"github.com/mmeshcher/hivestin/internal/middleware"
	"github.com/mmeshcher/hivestin/internal/plan"
	"github.com/mmeshcher/hivestin/internal/repository"
	"github.com/mmeshcher/hivestin/internal/scheduler"
	"github.com/mmeshcher/hivestin/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Sugar().Fatalw("application terminated with error", "error", err)
	}
}

// run собирает зависимости и блокируется до остановки сервера. Ресурсы закрываются до возврата.
func run(logger *zap.Logger) error {
	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	plans, err := plan.Load(cfg.PlansFile)
	if err != nil {
		return fmt.Errorf("plans loading error: %w", err)
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		return fmt.Errorf("database initialization error: %w", err)
	}

	opts := []service.Option{service.WithAdminEmails(cfg.AdminEmails)}

	if cfg.ExchangeAddress != "" {
		opts = append(opts, service.WithExchange(exchange.NewClient(cfg.ExchangeAddress, cfg.ExchangeAPIKey, cfg.ExchangeAPISecret)))
	} else {
		sugar.Warn("exchange address is not set, deposits are confirmed manually")
	}

	if cfg.MailAPIKey != "" {
		opts = append(opts, service.WithMailer(mailer.NewResendClient(cfg.MailBaseURL, cfg.MailAPIKey, cfg.MailFrom, logger)))
	} else {
		opts = append(opts, service.WithMailer(mailer.NewLogSender(logger)))
	}

	if cfg.CalendarCredsFile != "" {
		meetings, err := meet.NewGoogleScheduler(context.Background(), cfg.CalendarCredsFile, cfg.CalendarID)
		if err != nil {
			_ = repo.Close()
			return fmt.Errorf("calendar initialization error: %w", err)
		}
		opts = append(opts, service.WithMeetings(meetings))
	}

	if cfg.AuditDBPath != "" {
		recorder, err := audit.NewSQLiteRecorder(cfg.AuditDBPath)
		if err != nil {
			_ = repo.Close()
			return fmt.Errorf("audit log initialization error: %w", err)
		}
		opts = append(opts, service.WithAudit(recorder))
	}

	// С этого момента репозиторий и журнал аудита закрывает сервис.
	svc := service.NewService(repo, plans, logger, opts...)
	defer func() {
		if err := svc.Close(); err != nil {
			sugar.Errorw("close resources error", "error", err)
		}
	}()

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret, cfg.SecureCookies)
	h := handler.NewHandler(svc, logger, authMiddleware)

	cron := scheduler.New(svc, logger)
	if err := cron.Register(cfg.AccrualSchedule, cfg.ReminderSchedule); err != nil {
		return fmt.Errorf("scheduler configuration error: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Проверка ожидающих депозитов на бирже
	g.Go(func() error {
		svc.StartDepositVerification(ctx, cfg.VerifyInterval)
		return nil
	})

	// Начисление прибыли и напоминания о звонках
	g.Go(func() error {
		return cron.Run(ctx)
	})

	g.Go(func() error {
		sugar.Infow("starting hivestin server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
