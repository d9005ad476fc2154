package webhook

import (
	"errors"
	"fmt"

	"github.com/google/go-github/v66/github"
)

const (
	SignatureHeader = github.SHA256SignatureHeader
	EventHeader     = github.EventTypeHeader
	DeliveryHeader  = github.DeliveryIDHeader
)

// ErrSignature marks a delivery whose HMAC does not verify.
var ErrSignature = errors.New("webhook: signature verification failed")

// Verifier checks X-Hub-Signature-256 against the shared webhook secret.
type Verifier struct {
	secret   []byte
	required bool
}

// NewVerifier returns a Verifier. With an empty secret nothing is checked.
// When required is true a missing signature header is rejected.
func NewVerifier(secret string, required bool) *Verifier {
	return &Verifier{secret: []byte(secret), required: required && secret != ""}
}

// Verify checks signature (the raw header value) over body.
func (v *Verifier) Verify(signature string, body []byte) error {
	if len(v.secret) == 0 {
		return nil
	}
	if signature == "" {
		if v.required {
			return fmt.Errorf("%w: missing %s header", ErrSignature, SignatureHeader)
		}
		return nil
	}
	if err := github.ValidateSignature(signature, body, v.secret); err != nil {
		return fmt.Errorf("%w: %w", ErrSignature, err)
	}
	return nil
}
