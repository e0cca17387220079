package email

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"time"

	"github.com/eletrogest/eletrogest/internal/domain"
)

// SMTPEmailService sends emails via SMTP.
//
// This implementation works with:
// - Mailhog (development): No authentication required
// - Any standard SMTP provider (production): Uses username/password authentication
type SMTPEmailService struct {
	config  SMTPConfig
	baseURL string
	logger  *slog.Logger
}

// NewSMTPEmailService creates a new SMTP-based email service.
func NewSMTPEmailService(config SMTPConfig, baseURL string, logger *slog.Logger) *SMTPEmailService {
	if config.From == "" {
		config.From = DefaultFromEmail
	}
	if config.FromName == "" {
		config.FromName = DefaultFromName
	}
	return &SMTPEmailService{
		config:  config,
		baseURL: baseURL,
		logger:  logger,
	}
}

// SendNearLimitWarning tells a user they are approaching a plan limit.
func (s *SMTPEmailService) SendNearLimitWarning(ctx context.Context, to string, resource domain.ResourceType, percent int) error {
	body := fmt.Sprintf(
		"Olá,\n\n"+
			"Você já usou %d%% do limite de %s do seu plano neste mês.\n"+
			"Para continuar cadastrando sem interrupções, considere um upgrade:\n\n"+
			"%s/planos\n\n"+
			"— Equipe EletroGest\n", percent, resource, s.baseURL)

	return s.send(ctx, Email{
		To:       to,
		Subject:  fmt.Sprintf("Você está perto do limite de %s do seu plano", resource),
		TextBody: body,
	})
}

// SendPlanChanged confirms a plan change and the new period end.
func (s *SMTPEmailService) SendPlanChanged(ctx context.Context, to string, plan domain.PlanType, periodEnd time.Time) error {
	p, err := domain.GetPlan(plan)
	if err != nil {
		return err
	}

	body := fmt.Sprintf(
		"Olá,\n\n"+
			"Seu plano agora é o %s (%s/mês), válido até %s.\n\n"+
			"Gerencie sua assinatura em %s/assinatura\n\n"+
			"— Equipe EletroGest\n",
		p.DisplayName, p.FormattedPrice(), periodEnd.Format("02/01/2006"), s.baseURL)

	return s.send(ctx, Email{
		To:       to,
		Subject:  fmt.Sprintf("Seu plano EletroGest agora é %s", p.DisplayName),
		TextBody: body,
	})
}

// send delivers a message over SMTP, honoring context cancellation.
func (s *SMTPEmailService) send(ctx context.Context, msg Email) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s <%s>\r\n", s.config.FromName, s.config.From)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(msg.TextBody)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, s.config.From, []string{msg.To}, buf.Bytes())
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Error("failed to send email",
				"to", msg.To,
				"subject", msg.Subject,
				"error", err,
			)
			return fmt.Errorf("smtp send: %w", err)
		}
		s.logger.Debug("email sent", "to", msg.To, "subject", msg.Subject)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
