// Package repository declares the storage contracts of the credential store.
//
// Services depend on these interfaces, never on a concrete driver; the sqlstore
// package implements them for SQLite and PostgreSQL.
package repository

import (
	"context"

	"github.com/sakif/forkwatch/internal/model"
)

// TrackedRepoRepository persists tracked repository records.
//
// Every operation is individually atomic, so callers need no locking across
// concurrent requests.
type TrackedRepoRepository interface {
	// Create assigns ID and CreatedAt. A duplicate (repo, owner) pair returns an
	// error matching apperror.ErrConflict.
	Create(ctx context.Context, repo *model.TrackedRepository) error
	// FindByNameAndOwner returns apperror.ErrNotFound when no record exists.
	FindByNameAndOwner(ctx context.Context, repoFullName, ownerEmail string) (*model.TrackedRepository, error)
	// GetForOwner returns apperror.ErrNotFound when the id is unknown or owned by
	// someone else.
	GetForOwner(ctx context.Context, id, ownerEmail string) (*model.TrackedRepository, error)
	// ListByRepoName matches repoFullName exactly (case-sensitive).
	ListByRepoName(ctx context.Context, repoFullName string) ([]model.TrackedRepository, error)
	// ListByOwner returns the owner's records, newest first.
	ListByOwner(ctx context.Context, ownerEmail string) ([]model.TrackedRepository, error)
	// DeleteForOwner returns apperror.ErrNotFound when nothing was deleted.
	DeleteForOwner(ctx context.Context, id, ownerEmail string) error
}

// UserRepository persists user profiles.
type UserRepository interface {
	// Upsert inserts the user or refreshes login, name, image and LastSignIn.
	Upsert(ctx context.Context, user *model.User) error
	// GetByEmail returns apperror.ErrNotFound when no user has that email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}
