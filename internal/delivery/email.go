package delivery

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"build-insight/internal/models"
)

// SMTPDialer sends composed mail messages. gomail's Dialer satisfies it.
type SMTPDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSink mails the analysis summary and detail messages. The subject is
// the first line of the result summary; the body joins the assembled
// message bodies.
type EmailSink struct {
	dialer SMTPDialer
	from   string
	to     []string
}

func NewEmailSink(host string, port int, username, password, from string, to []string, ssl bool) *EmailSink {
	d := gomail.NewDialer(host, port, username, password)
	d.SSL = ssl // true = 465 SSL, false = 587 STARTTLS
	return &EmailSink{dialer: d, from: from, to: to}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Send(_ context.Context, job *models.Job) error {
	if len(s.to) == 0 {
		return fmt.Errorf("no recipients configured")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to...)
	m.SetHeader("Subject", subjectLine(job))
	m.SetBody("text/plain", bodyText(job))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func subjectLine(job *models.Job) string {
	if job.Result != nil && job.Result.Summary != "" {
		line := job.Result.Summary
		if i := strings.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
		}
		return line
	}
	return fmt.Sprintf("Build analysis %s %s", job.ID, job.Status)
}

func bodyText(job *models.Job) string {
	if job.Result == nil {
		return job.Error
	}
	bodies := make([]string, 0, len(job.Result.Messages))
	for _, m := range job.Result.Messages {
		bodies = append(bodies, m.Body)
	}
	return strings.Join(bodies, "\n\n")
}
