// Package email provides transactional email notifications for the
// entitlement engine.
//
// This package defines a Service interface with an SMTP implementation that
// works with Mailhog in development and any standard SMTP provider in
// production.
package email

import (
	"context"
	"time"

	"github.com/eletrogest/eletrogest/internal/domain"
)

// Service defines the interface for sending engine notifications.
//
// All methods are context-aware for timeout and cancellation support.
// Sending is best effort: callers log failures and never block the
// triggering operation on delivery.
type Service interface {
	// SendNearLimitWarning tells a user they are approaching a plan limit
	// for a resource type (the 80% threshold).
	SendNearLimitWarning(ctx context.Context, to string, resource domain.ResourceType, percent int) error

	// SendPlanChanged confirms a plan change (checkout, admin grant, promo or
	// referral redemption) and the new period end.
	SendPlanChanged(ctx context.Context, to string, plan domain.PlanType, periodEnd time.Time) error
}

// Email represents a single email message.
type Email struct {
	To       string // Recipient email address
	Subject  string // Email subject line
	TextBody string // Plain text content
}

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string // SMTP server hostname (e.g., "localhost" for Mailhog)
	Port     int    // SMTP server port (e.g., 1025 for Mailhog)
	Username string // SMTP authentication username (empty for Mailhog)
	Password string // SMTP authentication password (empty for Mailhog)
	From     string // Default sender email address
	FromName string // Default sender display name
}

const (
	// DefaultFromEmail is the default sender email for transactional emails.
	DefaultFromEmail = "noreply@eletrogest.com.br"

	// DefaultFromName is the default sender display name.
	DefaultFromName = "EletroGest"
)
