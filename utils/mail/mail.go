package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/joy095/payouts/config"
	"github.com/joy095/payouts/logger"
	models "github.com/joy095/payouts/models/payout_batch_models"
	"github.com/shopspring/decimal"
	gomail "gopkg.in/gomail.v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var batchReportTemplate = template.Must(template.New("batch_report.html").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"date":  func(t time.Time) string { return t.Format("2006-01-02") },
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
}).ParseFS(templateFS, "templates/batch_report.html"))

// Dialer is the part of *gomail.Dialer the mailer uses.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// BatchReportMailer emails a summary to finance once a batch finishes
// processing.
type BatchReportMailer struct {
	dialer Dialer
	from   string
	to     []string
}

func NewBatchReportMailer(smtp config.SMTPConfig, recipients string) (*BatchReportMailer, error) {
	if smtp.Host == "" {
		return nil, errors.New("SMTP_HOST is required to send batch reports")
	}
	var to []string
	for _, addr := range strings.Split(recipients, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return nil, errors.New("no report recipients")
	}

	dialer := gomail.NewDialer(smtp.Host, smtp.Port, smtp.Username, smtp.Password)
	dialer.TLSConfig = &tls.Config{ServerName: smtp.Host}
	return &BatchReportMailer{dialer: dialer, from: smtp.FromEmail, to: to}, nil
}

// NewBatchReportMailerWithDialer is used by tests and by callers that manage
// their own SMTP connection.
func NewBatchReportMailerWithDialer(dialer Dialer, from string, to ...string) *BatchReportMailer {
	return &BatchReportMailer{dialer: dialer, from: from, to: to}
}

func subject(report models.BatchReport) string {
	s := fmt.Sprintf("Payout batch %s %s: %d of %d settled",
		report.Batch.BatchNumber, strings.ToLower(string(report.Batch.Status)), report.Succeeded, report.Succeeded+report.Failed)
	if report.Batch.IsDemo {
		s = "[DEMO] " + s
	}
	return s
}

// RenderBatchReport renders the HTML body of a batch report.
func RenderBatchReport(report models.BatchReport) (string, error) {
	var body bytes.Buffer
	if err := batchReportTemplate.Execute(&body, report); err != nil {
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}
	return body.String(), nil
}

// NotifyBatchProcessed sends the report. gomail has no context support, so
// ctx is only checked before dialing.
func (m *BatchReportMailer) NotifyBatchProcessed(ctx context.Context, report models.BatchReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := RenderBatchReport(report)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to render report for batch %s: %v", report.Batch.ID, err)
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to...)
	msg.SetHeader("Subject", subject(report))
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		logger.ErrorLogger.Errorf("Failed to send report for batch %s: %v", report.Batch.BatchNumber, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	logger.InfoLogger.Infof("Sent report for batch %s to %d recipients", report.Batch.BatchNumber, len(m.to))
	return nil
}
