// Package notify emails the owner of a tracked repository when it is forked.
//
// Notify never returns an error: every outcome is a Result, so a failed
// email cannot turn a webhook delivery into an HTTP error.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/sakif/forkwatch/internal/model"
)

// Status is the outcome kind of one notification attempt.
type Status string

const (
	Sent                   Status = "sent"
	SkippedByConfiguration Status = "skipped"
	Failed                 Status = "failed"
)

// Result of a notification attempt. Reason is set for Skipped and Failed.
type Result struct {
	Status Status
	Reason string
}

// Message is a rendered email ready for a Mailer.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers a Message. Implementations must honour ctx.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Config controls the Dispatcher.
type Config struct {
	// APIKey is the transport credential. Empty or placeholder keys
	// disable sending (see KeyConfigured).
	APIKey   string
	From     string
	Timezone string
	Timeout  time.Duration
}

// Dispatcher renders fork notifications and hands them to a Mailer.
type Dispatcher struct {
	mailer     Mailer
	configured bool
	from       string
	loc        *time.Location
	timeout    time.Duration
	logger     *slog.Logger
}

// NewDispatcher builds a Dispatcher. mailer may be nil when the key is not
// configured; every Notify then reports SkippedByConfiguration.
func NewDispatcher(cfg Config, mailer Mailer, logger *slog.Logger) (*Dispatcher, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "Asia/Kolkata"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("notify: loading timezone %q: %w", tz, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Dispatcher{
		mailer:     mailer,
		configured: KeyConfigured(cfg.APIKey) && mailer != nil,
		from:       cfg.From,
		loc:        loc,
		timeout:    cfg.Timeout,
		logger:     logger,
	}, nil
}

// KeyConfigured reports whether key looks like a real credential. Empty
// keys and keys containing "dummy" or "test" are placeholders.
func KeyConfigured(key string) bool {
	return key != "" && !strings.Contains(key, "dummy") && !strings.Contains(key, "test")
}

// Configured reports whether Notify will attempt delivery.
func (d *Dispatcher) Configured() bool {
	return d.configured
}

// Notify emails recipient about a fork of originalRepo.
func (d *Dispatcher) Notify(ctx context.Context, recipient, originalRepo string, ev model.ForkEvent) Result {
	log := d.logger.With(
		slog.String("recipient", recipient),
		slog.String("repository", originalRepo),
		slog.String("forkedBy", ev.SenderLogin),
	)

	if !d.configured {
		log.Info("email transport not configured, skipping notification")
		return Result{Status: SkippedByConfiguration, Reason: "Email sending skipped: transport not configured"}
	}

	html, text, err := Render(originalRepo, ev, d.loc)
	if err != nil {
		log.Error("rendering notification failed", slog.String("error", err.Error()))
		return Result{Status: Failed, Reason: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err = d.mailer.Send(ctx, Message{
		From:    d.from,
		To:      recipient,
		Subject: Subject(originalRepo),
		HTML:    html,
		Text:    text,
	})
	if err != nil {
		log.Error("sending notification failed", slog.String("error", err.Error()))
		return Result{Status: Failed, Reason: err.Error()}
	}

	log.Info("notification sent")
	return Result{Status: Sent}
}
