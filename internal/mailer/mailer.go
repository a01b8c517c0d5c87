// Package mailer отправляет уведомления пользователям по электронной почте.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Sender отправляет письмо по шаблону.
type Sender interface {
	Send(ctx context.Context, to string, name Template, data any) error
}

// ResendClient отправляет письма через HTTP API почтового провайдера Resend.
type ResendClient struct {
	baseURL string
	apiKey  string
	from    string
	client  *retryablehttp.Client
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// NewResendClient создаёт клиента почтового провайдера с повторами при временных ошибках.
func NewResendClient(baseURL, apiKey, from string, logger *zap.Logger) *ResendClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = leveledLogger{logger.Sugar()}

	return &ResendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		from:    from,
		client:  rc,
	}
}

// Send формирует письмо по шаблону и отправляет его провайдеру.
func (c *ResendClient) Send(ctx context.Context, to string, name Template, data any) error {
	subject, html, err := Render(name, data)
	if err != nil {
		return err
	}

	body, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send email: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return nil
}

// LogSender только журналирует письма. Используется, когда провайдер не настроен.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender создаёт отправителя, который пишет письма в журнал.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send проверяет, что шаблон отрисовывается, и записывает факт отправки в журнал.
func (s *LogSender) Send(_ context.Context, to string, name Template, data any) error {
	subject, _, err := Render(name, data)
	if err != nil {
		return err
	}
	s.logger.Info("email suppressed, provider not configured",
		zap.String("to", to),
		zap.String("template", string(name)),
		zap.String("subject", subject),
	)
	return nil
}

type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
