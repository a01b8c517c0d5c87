// Package scheduler запускает периодические задачи платформы по расписанию cron.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mmeshcher/hivestin/internal/service"
)

const jobTimeout = 10 * time.Minute

// Jobs описывает задачи, которые выполняет планировщик.
type Jobs interface {
	RunAccrual(ctx context.Context) (service.AccrualResult, error)
	SendCallReminders(ctx context.Context) (int, error)
}

// Scheduler управляет задачами начисления прибыли и напоминаний о звонках.
type Scheduler struct {
	cron   *cron.Cron
	jobs   Jobs
	logger *zap.Logger
	ctx    context.Context
}

// New создаёт планировщик. Одновременно выполняется не более одного экземпляра каждой задачи.
func New(jobs Jobs, logger *zap.Logger) *Scheduler {
	cl := cronLogger{l: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:   jobs,
		logger: logger,
		ctx:    context.Background(),
	}
}

// Register добавляет задачи с указанными расписаниями.
func (s *Scheduler) Register(accrualSpec, reminderSpec string) error {
	if _, err := s.cron.AddFunc(accrualSpec, s.accrualTask); err != nil {
		return fmt.Errorf("register accrual task: %w", err)
	}
	if _, err := s.cron.AddFunc(reminderSpec, s.reminderTask); err != nil {
		return fmt.Errorf("register reminder task: %w", err)
	}
	return nil
}

// Run запускает планировщик и блокируется до отмены ctx, после чего дожидается текущих задач.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))

	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) accrualTask() {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	if _, err := s.jobs.RunAccrual(ctx); err != nil {
		s.logger.Error("accrual task error", zap.Error(err))
	}
}

func (s *Scheduler) reminderTask() {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	sent, err := s.jobs.SendCallReminders(ctx)
	if err != nil {
		s.logger.Error("reminder task error", zap.Error(err))
		return
	}
	if sent > 0 {
		s.logger.Info("call reminders sent", zap.Int("count", sent))
	}
}

type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
