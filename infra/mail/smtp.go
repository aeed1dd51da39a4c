package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"github.com/mtkallio/spotcharge/infra/logger"
)

// Config holds the SMTP relay settings for report delivery. An empty Host
// disables mailing.
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	// PasswordEnv names the environment variable read when Password is
	// empty.
	PasswordEnv string   `json:"password_env"`
	From        string   `json:"from"`
	FromName    string   `json:"from_name"`
	To          []string `json:"to"`
}

// SetDefaults applies sane defaults and resolves the password from the
// environment.
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = 587
	}
	if c.PasswordEnv == "" {
		c.PasswordEnv = "SMTP_PASSWORD"
	}
	if c.Password == "" {
		c.Password = os.Getenv(c.PasswordEnv)
	}
}

// Validate checks mandatory fields when mailing is enabled.
func (c Config) Validate() error {
	if c.Host == "" {
		return nil
	}
	if c.From == "" {
		return fmt.Errorf("from address is required")
	}
	if len(c.To) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	return nil
}

// Sender delivers run reports over an authenticated SMTP relay using
// STARTTLS.
type Sender struct {
	cfg Config
	log logger.Logger
}

// NewSender creates a mail sender.
func NewSender(cfg Config) *Sender {
	return &Sender{cfg: cfg, log: logger.New("mail")}
}

// Send delivers a plain-text message to the configured recipients.
func (s *Sender) Send(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	msg := buildMessage(s.cfg, subject, body)
	if err := smtp.SendMail(addr, auth, s.cfg.From, s.cfg.To, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	s.log.Infof("report sent to %s", strings.Join(s.cfg.To, ", "))
	return nil
}

func buildMessage(cfg Config, subject, body string) []byte {
	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
	}
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(cfg.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}
