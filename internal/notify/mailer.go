package notify

import (
	"context"
	"errors"
	"fmt"
	"odoo-rpa/internal/config"
	"odoo-rpa/internal/entity"
	"odoo-rpa/pkg/apperr"
	"odoo-rpa/pkg/logg"
	"odoo-rpa/pkg/tracing"
	"os"
	"path/filepath"

	"github.com/wneessen/go-mail"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	mailerName   = "Mailer"
	notifyTracer = "notify"
)

var ErrMailDisabled = errors.New("smtp host is not configured")

// Mailer sends plain-text mail with attachments over authenticated SMTP.
type Mailer struct {
	config *config.MailConfig
	logger *zap.Logger
	tracer trace.Tracer
}

type MailerParams struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewMailer(params MailerParams) *Mailer {
	return &Mailer{
		config: params.Config.MailConfig,
		logger: params.Logger.With(zap.String(logg.Layer, mailerName)),
		tracer: otel.Tracer(notifyTracer),
	}
}

func (m *Mailer) Send(ctx context.Context, msg entity.Mail) (err error) {
	const op = "Send"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.Strings("to", msg.To))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op,
		attribute.Int("recipients", len(msg.To)),
		attribute.Int("attachments", len(msg.Attachments)))
	defer func() {
		step.End(err)
	}()

	if m.config == nil || m.config.Host == "" {
		return apperr.Wrap(op, apperr.CodeUnavailable, ErrMailDisabled, map[string]any{
			apperr.MetaReason: "mail_disabled",
			apperr.MetaStage:  apperr.StageMail,
		})
	}

	message, err := m.build(msg)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(m.config.Host, m.clientOptions()...)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "smtp_client_failed",
			apperr.MetaStage:  apperr.StageMail,
		})
	}

	if err := client.DialAndSendWithContext(ctx, message); err != nil {
		return apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "smtp_send_failed",
			apperr.MetaStage:  apperr.StageMail,
		})
	}

	logger.Info("Mail sent", zap.String("subject", msg.Subject))

	return nil
}

func (m *Mailer) build(msg entity.Mail) (*mail.Msg, error) {
	const op = "Send"

	if len(msg.To) == 0 {
		return nil, apperr.InvalidReqError(op, "to", errors.New("no recipients"))
	}

	message := mail.NewMsg()

	if err := message.From(m.config.From); err != nil {
		return nil, apperr.InvalidReqError(op, "from", err)
	}

	if err := message.To(msg.To...); err != nil {
		return nil, apperr.InvalidReqError(op, "to", err)
	}

	message.Subject(msg.Subject)
	message.SetBodyString(mail.TypeTextPlain, msg.Body)

	for _, path := range msg.Attachments {
		info, err := os.Stat(path)
		if err != nil {
			return nil, apperr.InvalidReqError(op, "attachments", err)
		}

		if info.IsDir() {
			return nil, apperr.InvalidReqError(op, "attachments", fmt.Errorf("%s is a directory", path))
		}

		message.AttachFile(path, mail.WithFileName(filepath.Base(path)))
	}

	return message, nil
}

func (m *Mailer) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(m.config.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}

	if m.config.StartTLS {
		opts[1] = mail.WithTLSPolicy(mail.TLSMandatory)
	}

	if m.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.config.Username),
			mail.WithPassword(m.config.Password),
		)
	}

	return opts
}
