package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"pms/internal/domain/notifications"
	"pms/internal/platform/config"
)

type noopMailer struct{}

func (noopMailer) Send(ctx context.Context, msg notifications.Mail) error {
	slog.Debug("email disabled, dropping message", "to", msg.To, "subject", msg.Subject)
	return nil
}

type smtpMailer struct {
	cfg config.Config
}

// New returns an SMTP mailer, or a no-op mailer when email is disabled or no host is configured.
func New(cfg config.Config) notifications.Mailer {
	if !cfg.EmailEnabled || cfg.SMTPHost == "" {
		return noopMailer{}
	}
	return &smtpMailer{cfg: cfg}
}

func (s *smtpMailer) Send(ctx context.Context, msg notifications.Mail) error {
	if strings.TrimSpace(msg.To) == "" {
		return nil
	}
	if msg.From == "" {
		msg.From = s.cfg.EmailFrom
	}
	addr := net.JoinHostPort(s.cfg.SMTPHost, fmt.Sprint(s.cfg.SMTPPort))

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.SMTPHost)
	if err != nil {
		return err
	}
	defer client.Close()

	if s.cfg.SMTPUseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.SMTPHost}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if s.cfg.SMTPUser != "" {
		auth := smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPassword, s.cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(msg.From); err != nil {
		return err
	}
	if err := client.Rcpt(msg.To); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(buildMessage(msg, time.Now())); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func buildMessage(msg notifications.Mail, now time.Time) []byte {
	domain := "localhost"
	if at := strings.LastIndex(msg.From, "@"); at >= 0 && at < len(msg.From)-1 {
		domain = msg.From[at+1:]
	}
	headers := []string{
		"From: " + headerValue(msg.From),
		"To: " + headerValue(msg.To),
		"Subject: " + headerValue(msg.Subject),
		"Date: " + now.Format(time.RFC1123Z),
		fmt.Sprintf("Message-ID: <%s@%s>", uuid.NewString(), domain),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n" + msg.Body)
}

// headerValue strips line breaks so user supplied titles cannot inject headers.
func headerValue(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
