package model

// ForkEvent is the part of a GitHub "fork" webhook delivery the pipeline uses.
// It is never persisted.
type ForkEvent struct {
	// RepositoryFullName is the original, forked-from repository.
	RepositoryFullName string `json:"repository"`

	ForkeeFullName  string `json:"forkeeFullName"`
	ForkeeURL       string `json:"forkeeUrl"`
	ForkeeCreatedAt string `json:"forkeeCreatedAt"` // RFC 3339 as sent by GitHub

	SenderLogin string `json:"senderLogin"`
	SenderURL   string `json:"senderUrl"`
}
