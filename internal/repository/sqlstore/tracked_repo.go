package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/forkwatch/internal/apperror"
	"github.com/sakif/forkwatch/internal/model"
	"github.com/sakif/forkwatch/internal/repository"
)

var _ repository.TrackedRepoRepository = (*DB)(nil)

const trackedColumns = `id, repo_full_name, owner_email, webhook_id, created_at`

// Create inserts a tracked repository, assigning its ID and CreatedAt.
func (db *DB) Create(ctx context.Context, repo *model.TrackedRepository) error {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	repo.ID = xid.New().String()
	repo.CreatedAt = time.Now().UTC()

	var webhookID sql.NullInt64
	if repo.WebhookID != nil {
		webhookID = sql.NullInt64{Int64: *repo.WebhookID, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx, db.rebind(
		`INSERT INTO tracked_repositories (id, repo_full_name, owner_email, webhook_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`),
		repo.ID,
		repo.RepoFullName,
		repo.OwnerEmail,
		webhookID,
		repo.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.AlreadyTracked(repo.RepoFullName)
		}
		return fmt.Errorf("sqlstore: creating tracked repository %s: %w", repo.RepoFullName, err)
	}
	return nil
}

// FindByNameAndOwner looks up the record for one (repository, owner) pair.
func (db *DB) FindByNameAndOwner(ctx context.Context, repoFullName, ownerEmail string) (*model.TrackedRepository, error) {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT `+trackedColumns+` FROM tracked_repositories
		 WHERE repo_full_name = ? AND owner_email = ?`),
		repoFullName, ownerEmail,
	)
	repo, err := scanTracked(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("tracked repository", repoFullName)
		}
		return nil, fmt.Errorf("sqlstore: finding tracked repository %s: %w", repoFullName, err)
	}
	return repo, nil
}

// GetForOwner returns a record by id only if it belongs to ownerEmail. A
// record owned by someone else is reported exactly like a missing one.
func (db *DB) GetForOwner(ctx context.Context, id, ownerEmail string) (*model.TrackedRepository, error) {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT `+trackedColumns+` FROM tracked_repositories
		 WHERE id = ? AND owner_email = ?`),
		id, ownerEmail,
	)
	repo, err := scanTracked(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("tracked repository", id)
		}
		return nil, fmt.Errorf("sqlstore: getting tracked repository %s: %w", id, err)
	}
	return repo, nil
}

// ListByRepoName returns every subscriber of a repository. The comparison is
// exact: GitHub sends canonical casing and records are stored in it.
func (db *DB) ListByRepoName(ctx context.Context, repoFullName string) ([]model.TrackedRepository, error) {
	return db.list(ctx,
		`SELECT `+trackedColumns+` FROM tracked_repositories
		 WHERE repo_full_name = ? ORDER BY created_at ASC`,
		repoFullName,
	)
}

// ListByOwner returns the owner's tracked repositories, newest first.
func (db *DB) ListByOwner(ctx context.Context, ownerEmail string) ([]model.TrackedRepository, error) {
	return db.list(ctx,
		`SELECT `+trackedColumns+` FROM tracked_repositories
		 WHERE owner_email = ? ORDER BY created_at DESC`,
		ownerEmail,
	)
}

func (db *DB) list(ctx context.Context, query string, arg string) ([]model.TrackedRepository, error) {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), arg)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing tracked repositories: %w", err)
	}
	defer rows.Close()

	var out []model.TrackedRepository
	for rows.Next() {
		repo, err := scanTracked(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning tracked repository row: %w", err)
		}
		out = append(out, *repo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating tracked repositories: %w", err)
	}
	return out, nil
}

// DeleteForOwner removes a record owned by ownerEmail.
func (db *DB) DeleteForOwner(ctx context.Context, id, ownerEmail string) error {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx, db.rebind(
		`DELETE FROM tracked_repositories WHERE id = ? AND owner_email = ?`),
		id, ownerEmail,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting tracked repository %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("tracked repository", id)
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTracked(s scanner) (*model.TrackedRepository, error) {
	var (
		repo      model.TrackedRepository
		webhookID sql.NullInt64
	)
	if err := s.Scan(&repo.ID, &repo.RepoFullName, &repo.OwnerEmail, &webhookID, &repo.CreatedAt); err != nil {
		return nil, err
	}
	if webhookID.Valid {
		id := webhookID.Int64
		repo.WebhookID = &id
	}
	return &repo, nil
}
