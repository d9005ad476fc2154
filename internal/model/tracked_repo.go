package model

import "time"

// TrackedRepository is a repository a user registered for fork notifications.
//
// RepoFullName is stored in GitHub's canonical casing ("Owner/Name") so that
// inbound webhook payloads, which always carry canonical casing, match it
// exactly. The pair (RepoFullName, OwnerEmail) is unique; different users may
// track the same repository.
//
// WebhookID is nil when no live webhook backs the record (tracking done in a
// deployment where webhook registration is switched off).
type TrackedRepository struct {
	ID           string    `json:"id"           db:"id"`
	RepoFullName string    `json:"repoUrl"      db:"repo_full_name"`
	OwnerEmail   string    `json:"userEmail"    db:"owner_email"`
	WebhookID    *int64    `json:"webhookId"    db:"webhook_id"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
}

// HasWebhook reports whether a live webhook was registered for the record.
func (r *TrackedRepository) HasWebhook() bool {
	return r.WebhookID != nil
}
