package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"odoo-rpa/internal/config"
	"odoo-rpa/internal/entity"
	"odoo-rpa/internal/ports"
	"odoo-rpa/pkg/logg"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	alerterName         = "Alerter"
	defaultAlertTimeout = 10 * time.Second
)

// Alerter tells operators that an unattended step gave up. Delivery happens
// in the background and never fails the caller.
type Alerter struct {
	webhookURL string
	recipients []string
	timeout    time.Duration
	httpClient *http.Client
	mailer     ports.Mailer
	logger     *zap.Logger
	wg         sync.WaitGroup
}

type AlerterParams struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
	Mailer ports.Mailer `optional:"true"`
}

func NewAlerter(params AlerterParams) *Alerter {
	alertConfig := params.Config.AlertConfig

	timeout := alertConfig.Timeout
	if timeout <= 0 {
		timeout = defaultAlertTimeout
	}

	return &Alerter{
		webhookURL: alertConfig.WebhookURL,
		recipients: alertConfig.Recipients,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		mailer:     params.Mailer,
		logger:     params.Logger.With(zap.String(logg.Layer, alerterName)),
	}
}

func (a *Alerter) Alert(ctx context.Context, subject, body string) {
	logger := a.logger.With(zap.String("subject", subject))

	sendMail := a.mailer != nil && len(a.recipients) > 0
	if a.webhookURL == "" && !sendMail {
		logger.Warn("Alert raised with no channel configured", zap.String("body", body))

		return
	}

	logger.Warn("Raising alert")

	ctx = context.WithoutCancel(ctx)

	if a.webhookURL != "" {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()

			ctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			if err := a.postWebhook(ctx, subject, body); err != nil {
				logger.Error("Failed to deliver webhook alert", zap.Error(err))
			}
		}()
	}

	if sendMail {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()

			ctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			err := a.mailer.Send(ctx, entity.Mail{
				To:      a.recipients,
				Subject: "[odoo-rpa] " + subject,
				Body:    body,
			})
			if err != nil {
				logger.Error("Failed to deliver alert mail", zap.Error(err))
			}
		}()
	}
}

// Wait blocks until in-flight alerts finish or ctx ends.
func (a *Alerter) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Alerter) postWebhook(ctx context.Context, subject, body string) error {
	payload, err := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s*\n%s", subject, body),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook answered %d", resp.StatusCode)
	}

	return nil
}
