// Package alert notifies operators when a dependency keeps failing.
package alert

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/soundprediction/episodic/pkg/config"
)

// Alerter defines an interface for sending alerts
type Alerter interface {
	Alert(subject, message string) error
}

// New returns an email alerter when alerting is enabled, otherwise one that
// only logs.
func New(cfg config.AlertConfig, logger *slog.Logger) Alerter {
	if cfg.Enabled {
		return NewEmailAlerter(cfg)
	}
	return NewLogAlerter(logger)
}

// EmailAlerter implements Alerter using SMTP
type EmailAlerter struct {
	cfg  config.AlertConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailAlerter creates a new email alerter
func NewEmailAlerter(cfg config.AlertConfig) *EmailAlerter {
	return &EmailAlerter{
		cfg:  cfg,
		send: smtp.SendMail,
	}
}

// Alert sends an email with the given subject and message
func (a *EmailAlerter) Alert(subject, message string) error {
	if !a.cfg.Enabled {
		return nil
	}

	auth := smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", a.cfg.SMTPHost, a.cfg.SMTPPort)

	if err := a.send(addr, auth, a.cfg.From, a.cfg.To, formatMessage(a.cfg.To, subject, message)); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}

func formatMessage(to []string, subject, message string) []byte {
	return []byte(fmt.Sprintf("To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", strings.Join(to, ","), subject, message))
}

// LogAlerter writes alerts to a logger at error level.
type LogAlerter struct {
	logger *slog.Logger
}

// NewLogAlerter creates an alerter backed by logger, or slog.Default when nil.
func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAlerter{logger: logger}
}

func (l *LogAlerter) Alert(subject, message string) error {
	l.logger.Error(subject, "alert", message)
	return nil
}

// NoOpAlerter is a dummy alerter for when alerting is disabled
type NoOpAlerter struct{}

func (n *NoOpAlerter) Alert(subject, message string) error {
	return nil
}
