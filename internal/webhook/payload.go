// Package webhook turns GitHub webhook deliveries into fork notifications.
//
// A delivery moves through a fixed sequence of states:
//
//	RECEIVED → PARSED → CLASSIFIED → {IGNORED | SUBSCRIBER_LOOKUP}
//	         → {NO_SUBSCRIBER | USER_LOOKUP} → {USER_NOT_FOUND | NOTIFY_ATTEMPTED} → DONE
//
// Every terminal state except a parse failure is an Outcome reported with
// HTTP 200, so GitHub does not retry deliveries that were understood.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/url"

	"github.com/sakif/forkwatch/internal/apperror"
	"github.com/sakif/forkwatch/internal/model"
)

// BodyKind is the closed set of body encodings the endpoint understands.
type BodyKind int

const (
	Unsupported BodyKind = iota
	JSONBody
	FormBody
)

// ErrParse marks a body that could not be decoded into a payload.
var ErrParse = errors.New("webhook: invalid payload")

// ClassifyContentType maps a Content-Type header to a BodyKind. Parameters
// such as charset are ignored.
func ClassifyContentType(contentType string) BodyKind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Unsupported
	}
	switch mediaType {
	case "application/json":
		return JSONBody
	case "application/x-www-form-urlencoded":
		return FormBody
	default:
		return Unsupported
	}
}

// Payload is the subset of a GitHub webhook body the pipeline reads.
// Forkee is a pointer: its presence is what makes a delivery a fork event.
type Payload struct {
	Action     string `json:"action"`
	Repository *struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Forkee *struct {
		FullName  string `json:"full_name"`
		HTMLURL   string `json:"html_url"`
		CreatedAt string `json:"created_at"`
	} `json:"forkee"`
	Sender *struct {
		Login   string `json:"login"`
		HTMLURL string `json:"html_url"`
	} `json:"sender"`
}

// ParseBody decodes body according to contentType. Form bodies carry the
// JSON document in their "payload" field.
func ParseBody(contentType string, body []byte) (*Payload, error) {
	var raw []byte
	switch ClassifyContentType(contentType) {
	case JSONBody:
		raw = body
	case FormBody:
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding form body: %w", ErrParse, err)
		}
		if !form.Has("payload") {
			return nil, fmt.Errorf("%w: Invalid payload format", ErrParse)
		}
		raw = []byte(form.Get("payload"))
	default:
		return nil, apperror.UnsupportedContentType(contentType)
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return &p, nil
}

// IsFork reports whether p is a fork event.
func (p *Payload) IsFork() bool {
	return p.Forkee != nil
}

// ForkEvent extracts the fork details. It fails when the payload names a
// forkee but not the repository it was forked from.
func (p *Payload) ForkEvent() (model.ForkEvent, error) {
	if p.Forkee == nil {
		return model.ForkEvent{}, fmt.Errorf("%w: not a fork event", ErrParse)
	}
	if p.Repository == nil || p.Repository.FullName == "" {
		return model.ForkEvent{}, fmt.Errorf("%w: fork event without repository.full_name", ErrParse)
	}

	ev := model.ForkEvent{
		RepositoryFullName: p.Repository.FullName,
		ForkeeFullName:     p.Forkee.FullName,
		ForkeeURL:          p.Forkee.HTMLURL,
		ForkeeCreatedAt:    p.Forkee.CreatedAt,
	}
	if p.Sender != nil {
		ev.SenderLogin = p.Sender.Login
		ev.SenderURL = p.Sender.HTMLURL
	}
	return ev, nil
}
