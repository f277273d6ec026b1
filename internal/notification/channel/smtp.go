package channel

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"billing-workers/internal/notification"
)

// SMTPConfig configures the SMTP email adapter.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPAdapter is the email adapter for deployments without SES.
type SMTPAdapter struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
}

func NewSMTPAdapter(cfg SMTPConfig) *SMTPAdapter {
	a := &SMTPAdapter{cfg: cfg}
	if cfg.UseTLS {
		a.sendMail = a.sendWithTLS
	} else {
		a.sendMail = smtp.SendMail
	}
	return a
}

func (a *SMTPAdapter) Channel() notification.Channel { return notification.ChannelEmail }

func (a *SMTPAdapter) Deliver(ctx context.Context, msg Message) DeliveryResult {
	if a.cfg.Host == "" || a.cfg.From == "" {
		return Misconfigured("smtp host or sender not configured")
	}
	if msg.Recipient.Email == "" {
		return Misconfigured("recipient %s has no email address", msg.Recipient.ID)
	}
	if err := ctx.Err(); err != nil {
		return Failed("smtp: %v", err)
	}

	var auth smtp.Auth
	if a.cfg.Username != "" && a.cfg.Password != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.Host)
	}

	messageID := a.messageID(msg)
	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)

	// net/smtp has no context support; run it aside so the caller's deadline holds
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.sendMail(addr, auth, a.cfg.From, []string{msg.Recipient.Email}, []byte(a.buildMessage(msg, messageID)))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return Failed("smtp: %v", err)
		}
		return Delivered(messageID)
	case <-ctx.Done():
		return Failed("smtp: %v", ctx.Err())
	}
}

func (a *SMTPAdapter) buildMessage(msg Message, messageID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", a.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.Recipient.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return b.String()
}

func (a *SMTPAdapter) messageID(msg Message) string {
	return fmt.Sprintf("<%d.%s@%s>", time.Now().UnixNano(), msg.NotificationID, a.cfg.Host)
}

func (a *SMTPAdapter) sendWithTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err = client.StartTLS(&tls.Config{ServerName: a.cfg.Host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}
	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err = client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range to {
		if err = client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return client.Quit()
}
