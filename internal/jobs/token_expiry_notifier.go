// token_expiry_notifier.go implements the TokenExpiryNotifier background job,
// which periodically scans for service tokens approaching their expiry date and
// sends a warning email to the configured operations inbox. Notification state
// is persisted in the database (expiry_notification_sent_at column) so emails
// are sent exactly once even across server restarts. The job is a no-op when
// notifications are disabled, the SMTP host is unset, or no recipient is
// configured, so it is always safe to start regardless of deployment
// environment.
package jobs

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/orgsuite/orgsuite/internal/config"
	"github.com/orgsuite/orgsuite/internal/db/repositories"
)

// TokenExpiryNotifier periodically emails the operations inbox about service
// tokens that are about to expire.
type TokenExpiryNotifier struct {
	tokenRepo *repositories.ServiceTokenRepository
	orgRepo   *repositories.OrganizationRepository
	cfg       *config.NotificationsConfig
	interval  time.Duration
	stopChan  chan struct{}
}

// NewTokenExpiryNotifier creates a new TokenExpiryNotifier.
// intervalHours controls how often the check runs (default 24h).
func NewTokenExpiryNotifier(
	tokenRepo *repositories.ServiceTokenRepository,
	orgRepo *repositories.OrganizationRepository,
	cfg *config.NotificationsConfig,
) *TokenExpiryNotifier {
	hours := cfg.TokenExpiryCheckIntervalHours
	if hours <= 0 {
		hours = 24
	}
	return &TokenExpiryNotifier{
		tokenRepo: tokenRepo,
		orgRepo:   orgRepo,
		cfg:       cfg,
		interval:  time.Duration(hours) * time.Hour,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the background expiry-notification loop.
// It runs an initial check immediately, then repeats on the configured interval.
// The loop exits when ctx is cancelled or Stop() is called.
func (n *TokenExpiryNotifier) Start(ctx context.Context) {
	if !n.cfg.Enabled {
		log.Println("Token expiry notifier: disabled (notifications.enabled=false)")
		return
	}
	if n.cfg.SMTP.Host == "" {
		log.Println("Token expiry notifier: disabled (notifications.smtp.host not set)")
		return
	}
	if n.cfg.TokenExpiryRecipient == "" {
		log.Println("Token expiry notifier: disabled (notifications.token_expiry_recipient not set)")
		return
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	log.Printf("Token expiry notifier started (check interval: %v, warning window: %d days)",
		n.interval, n.cfg.TokenExpiryWarningDays)

	// Run once immediately on startup
	n.runCheck(ctx)

	for {
		select {
		case <-ticker.C:
			n.runCheck(ctx)
		case <-n.stopChan:
			log.Println("Token expiry notifier stopped")
			return
		case <-ctx.Done():
			log.Println("Token expiry notifier context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (n *TokenExpiryNotifier) Stop() {
	close(n.stopChan)
}

// runCheck queries for expiring tokens and sends notification emails.
func (n *TokenExpiryNotifier) runCheck(ctx context.Context) {
	warningDays := n.cfg.TokenExpiryWarningDays
	if warningDays <= 0 {
		warningDays = 7
	}

	tokens, err := n.tokenRepo.FindExpiringTokens(ctx, warningDays)
	if err != nil {
		log.Printf("Token expiry notifier: failed to query expiring tokens: %v", err)
		return
	}

	if len(tokens) == 0 {
		return
	}

	log.Printf("Token expiry notifier: found %d token(s) approaching expiry", len(tokens))

	for _, token := range tokens {
		orgName := token.OrganizationID
		if org, err := n.orgRepo.GetByID(ctx, token.OrganizationID); err == nil && org != nil {
			orgName = org.DisplayName
		}

		if err := n.sendExpiryEmail(orgName, token.Name, token.TokenPrefix, *token.ExpiresAt); err != nil {
			log.Printf("Token expiry notifier: failed to send email for token %s: %v", token.ID, err)
			continue
		}

		if err := n.tokenRepo.MarkExpiryNotificationSent(ctx, token.ID); err != nil {
			log.Printf("Token expiry notifier: failed to mark notification sent for token %s: %v", token.ID, err)
		}
	}
}

// sendExpiryEmail composes and delivers a plain-text warning email via SMTP.
func (n *TokenExpiryNotifier) sendExpiryEmail(orgName, tokenName, tokenPrefix string, expiresAt time.Time) error {
	daysLeft := int(time.Until(expiresAt).Hours()/24) + 1
	if daysLeft < 0 {
		daysLeft = 0
	}

	subject := fmt.Sprintf("Action Required: service token '%s' expires in %d day(s)", tokenName, daysLeft)
	body := strings.Join([]string{
		"Hello,",
		"",
		fmt.Sprintf("The service token '%s' (%s...) for organization %s will expire on %s (%d day(s) from now).",
			tokenName, tokenPrefix, orgName, expiresAt.UTC().Format(time.RFC1123), daysLeft),
		"",
		"Subsystems authenticating with this token will stop writing audit records when it expires.",
		"To avoid a gap in the audit trail, issue a replacement token before the expiry date and",
		"update the subsystem's credentials, then revoke the old token.",
		"",
		"If the token is no longer in use, no action is required.",
		"",
		"— OrgSuite Audit Log Service",
	}, "\r\n")

	smtpCfg := &n.cfg.SMTP
	toEmail := n.cfg.TokenExpiryRecipient
	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		smtpCfg.From, toEmail, subject,
	)
	msg := []byte(headers + body + "\r\n")

	addr := fmt.Sprintf("%s:%d", smtpCfg.Host, smtpCfg.Port)
	auth := smtp.PlainAuth("", smtpCfg.Username, smtpCfg.Password, smtpCfg.Host)

	if smtpCfg.UseTLS {
		return sendMailTLS(addr, smtpCfg.Host, auth, smtpCfg.From, []string{toEmail}, msg)
	}
	return smtp.SendMail(addr, auth, smtpCfg.From, []string{toEmail}, msg)
}

// sendMailTLS connects via implicit TLS (port 465 / SMTPS) and sends a message.
// Use this when UseTLS=true and the port is 465; for port 587 STARTTLS,
// smtp.SendMail handles the upgrade automatically — but we call this path for
// both so the config is unambiguous: UseTLS=true always means an encrypted connection.
func sendMailTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		// Fall back to STARTTLS via the standard smtp.SendMail path (port 587 pattern)
		return smtp.SendMail(addr, auth, from, to, msg)
	}
	defer conn.Close()

	hostname, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, hostname)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, addr := range to {
		if err := c.Rcpt(addr); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", addr, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
