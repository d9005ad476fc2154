package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/forkwatch/internal/apperror"
	"github.com/sakif/forkwatch/internal/model"
	"github.com/sakif/forkwatch/internal/notify"
)

// Status is the terminal state reported for a delivery.
type Status string

const (
	StatusIgnored       Status = "ignored"
	StatusNoSubscribers Status = "no_subscribers"
	StatusUserNotFound  Status = "user_not_found"
	StatusEmailSkipped  Status = "email_skipped"
	StatusEmailError    Status = "email_error"
	StatusSuccess       Status = "success"
)

// Outcome is the 200 response body for a delivery. Fields beyond Status
// give context for the particular state.
type Outcome struct {
	Status     Status     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Repository string     `json:"repository,omitempty"`
	ForkedBy   string     `json:"forkedBy,omitempty"`
	Email      string     `json:"email,omitempty"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	Deliveries []Delivery `json:"deliveries,omitempty"`
}

// Delivery is the result for one subscriber of the forked repository.
type Delivery struct {
	Email  string `json:"email"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// SubscriberStore finds the tracked records for a repository.
type SubscriberStore interface {
	ListByRepoName(ctx context.Context, repoFullName string) ([]model.TrackedRepository, error)
}

// UserStore resolves a subscriber's user record.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// Notifier sends the fork notification. It reports failures as a Result.
type Notifier interface {
	Notify(ctx context.Context, recipient, originalRepo string, ev model.ForkEvent) notify.Result
}

// Observer is told about every finished delivery and notification. It may
// be nil.
type Observer interface {
	ObserveWebhook(status string)
	ObserveNotification(result string)
}

// Processor runs the delivery state machine. It keeps no state between
// calls and is safe for concurrent use.
type Processor struct {
	subscribers SubscriberStore
	users       UserStore
	notifier    Notifier
	observer    Observer
	logger      *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(subscribers SubscriberStore, users UserStore, notifier Notifier, observer Observer, logger *slog.Logger) *Processor {
	return &Processor{
		subscribers: subscribers,
		users:       users,
		notifier:    notifier,
		observer:    observer,
		logger:      logger,
	}
}

// Process decodes body and runs it through the pipeline. The returned error
// is a parse failure (ErrParse or apperror.ErrUnsupportedContentType) or a
// store failure; every other result is an Outcome.
func (p *Processor) Process(ctx context.Context, contentType string, body []byte) (*Outcome, error) {
	payload, err := ParseBody(contentType, body)
	if err != nil {
		p.logger.Warn("webhook payload rejected",
			slog.String("contentType", contentType),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return p.Handle(ctx, payload)
}

// Handle runs an already decoded payload through the pipeline.
func (p *Processor) Handle(ctx context.Context, payload *Payload) (*Outcome, error) {
	if !payload.IsFork() {
		p.logger.Info("webhook ignored: not a fork event", slog.String("action", payload.Action))
		return p.finish(&Outcome{Status: StatusIgnored, Reason: "Not a fork event"}), nil
	}

	ev, err := payload.ForkEvent()
	if err != nil {
		p.logger.Warn("fork payload incomplete", slog.String("error", err.Error()))
		return nil, err
	}
	log := p.logger.With(
		slog.String("repository", ev.RepositoryFullName),
		slog.String("forkee", ev.ForkeeFullName),
	)
	log.Info("processing fork event")

	subs, err := p.subscribers.ListByRepoName(ctx, ev.RepositoryFullName)
	if err != nil {
		log.Error("subscriber lookup failed", slog.String("error", err.Error()))
		return nil, apperror.StoreUnavailable("Failed to look up subscribers", err)
	}
	if len(subs) == 0 {
		log.Info("no subscribers for repository")
		return p.finish(&Outcome{Status: StatusNoSubscribers, Repository: ev.RepositoryFullName}), nil
	}

	deliveries := make([]Delivery, 0, len(subs))
	for _, sub := range subs {
		d, err := p.deliver(ctx, log, sub, ev)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	out := summarize(deliveries)
	out.Repository = ev.RepositoryFullName
	out.ForkedBy = ev.SenderLogin
	if len(deliveries) > 1 {
		out.Deliveries = deliveries
	}
	return p.finish(out), nil
}

// deliver resolves one subscriber and notifies them.
func (p *Processor) deliver(ctx context.Context, log *slog.Logger, sub model.TrackedRepository, ev model.ForkEvent) (Delivery, error) {
	user, err := p.users.GetByEmail(ctx, sub.OwnerEmail)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// A tracked record always points at a signed-in user.
			log.Error("data integrity: tracked repository owner has no user record",
				slog.String("ownerEmail", sub.OwnerEmail),
				slog.String("trackedID", sub.ID),
			)
			return Delivery{Email: sub.OwnerEmail, Status: StatusUserNotFound}, nil
		}
		log.Error("user lookup failed", slog.String("error", err.Error()))
		return Delivery{}, apperror.StoreUnavailable("Failed to look up user", err)
	}

	res := p.notifier.Notify(ctx, user.Email, ev.RepositoryFullName, ev)
	if p.observer != nil {
		p.observer.ObserveNotification(string(res.Status))
	}

	switch res.Status {
	case notify.Sent:
		return Delivery{Email: user.Email, Status: StatusSuccess}, nil
	case notify.SkippedByConfiguration:
		return Delivery{Email: user.Email, Status: StatusEmailSkipped, Reason: res.Reason}, nil
	case notify.Failed:
		return Delivery{Email: user.Email, Status: StatusEmailError, Reason: res.Reason}, nil
	default:
		return Delivery{}, fmt.Errorf("webhook: unknown notification status %q", res.Status)
	}
}

// summarize picks the overall status: any email error wins, then any
// success, then any skip; user_not_found only if nothing else happened.
func summarize(deliveries []Delivery) *Outcome {
	first := func(s Status) (Delivery, bool) {
		for _, d := range deliveries {
			if d.Status == s {
				return d, true
			}
		}
		return Delivery{}, false
	}

	if d, ok := first(StatusEmailError); ok {
		return &Outcome{Status: StatusEmailError, Error: d.Reason}
	}
	if _, ok := first(StatusSuccess); ok {
		return &Outcome{Status: StatusSuccess}
	}
	if d, ok := first(StatusEmailSkipped); ok {
		return &Outcome{Status: StatusEmailSkipped, Message: d.Reason}
	}
	d, _ := first(StatusUserNotFound)
	return &Outcome{Status: StatusUserNotFound, Email: d.Email}
}

// Ping acknowledges GitHub's hook-creation ping without touching the store.
func (p *Processor) Ping() *Outcome {
	p.logger.Info("webhook ping received")
	return p.finish(&Outcome{Status: StatusIgnored, Reason: "Ping event"})
}

func (p *Processor) finish(out *Outcome) *Outcome {
	if p.observer != nil {
		p.observer.ObserveWebhook(string(out.Status))
	}
	return out
}
