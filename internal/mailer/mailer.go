// Package mailer delivers templated reminder emails. Delivery is
// fire-and-forget from the engine's point of view.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"text/template"
)

var reminderTemplate = template.Must(template.New("reminder").Parse(
	`To: {{.To}}
From: {{.From}}
Subject: Your study session "{{.Title}}" starts in {{.MinutesBefore}} minutes

Hi,

"{{.Title}}" starts at {{.StartTime}} and runs for {{.Duration}} minutes.
Get your materials ready!
`))

type reminderData struct {
	To            string
	From          string
	Title         string
	MinutesBefore int
	StartTime     string
	Duration      int
}

// SMTPDispatcher sends reminder emails through a plain SMTP endpoint.
type SMTPDispatcher struct {
	addr    string
	from    string
	resolve func(recipient string) (string, error)
	send    func(addr, from, to string, body []byte) error
	logger  *slog.Logger
}

// NewSMTPDispatcher constructs a dispatcher for the given SMTP address and
// sender. resolve maps the engine's recipient identifier to an email
// address; when nil the identifier is used as the address directly.
func NewSMTPDispatcher(addr, from string, resolve func(string) (string, error), logger *slog.Logger) *SMTPDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPDispatcher{
		addr:    addr,
		from:    from,
		resolve: resolve,
		send: func(addr, from, to string, body []byte) error {
			return smtp.SendMail(addr, nil, from, []string{to}, body)
		},
		logger: logger,
	}
}

// SendReminder renders and sends one reminder email.
func (d *SMTPDispatcher) SendReminder(ctx context.Context, recipient, scheduleTitle string, minutesBefore int, startTimeFormatted string, durationMinutes int) error {
	to := recipient
	if d.resolve != nil {
		resolved, err := d.resolve(recipient)
		if err != nil {
			return fmt.Errorf("mailer: resolve recipient %s: %w", recipient, err)
		}
		to = resolved
	}

	var body bytes.Buffer
	err := reminderTemplate.Execute(&body, reminderData{
		To:            to,
		From:          d.from,
		Title:         scheduleTitle,
		MinutesBefore: minutesBefore,
		StartTime:     startTimeFormatted,
		Duration:      durationMinutes,
	})
	if err != nil {
		return fmt.Errorf("mailer: render reminder: %w", err)
	}

	if err := d.send(d.addr, d.from, to, body.Bytes()); err != nil {
		return fmt.Errorf("mailer: send to %s: %w", to, err)
	}

	d.logger.Info("reminder email sent",
		"recipient", to, "title", scheduleTitle, "minutes_before", minutesBefore)
	return nil
}

// LogDispatcher writes reminders to the log instead of sending email. Used
// when no SMTP endpoint is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher constructs a logging dispatcher.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

// SendReminder logs the reminder.
func (d *LogDispatcher) SendReminder(_ context.Context, recipient, scheduleTitle string, minutesBefore int, startTimeFormatted string, durationMinutes int) error {
	d.logger.Info("reminder (log only)",
		"recipient", recipient,
		"title", scheduleTitle,
		"minutes_before", minutesBefore,
		"start_time", startTimeFormatted,
		"duration_minutes", durationMinutes)
	return nil
}
