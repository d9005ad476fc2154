package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/forkwatch/internal/apperror"
	"github.com/sakif/forkwatch/internal/model"
)

// newTestDB opens a fresh in-memory SQLite store with the schema applied.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Options{DSN: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestRepo(t *testing.T, db *DB, name, owner string, webhookID *int64) *model.TrackedRepository {
	t.Helper()
	repo := &model.TrackedRepository{RepoFullName: name, OwnerEmail: owner, WebhookID: webhookID}
	if err := db.Create(context.Background(), repo); err != nil {
		t.Fatalf("failed to create tracked repository: %v", err)
	}
	return repo
}

func int64Ptr(v int64) *int64 { return &v }

// =========================================================================
// CREATE
// =========================================================================

func TestCreate_AssignsIDAndTimestamp(t *testing.T) {
	db := newTestDB(t)

	repo := createTestRepo(t, db, "alice/demo", "alice@example.com", int64Ptr(42))

	assert.NotEmpty(t, repo.ID)
	assert.False(t, repo.CreatedAt.IsZero())
}

func TestCreate_DuplicatePairIsAlreadyTracked(t *testing.T) {
	db := newTestDB(t)
	createTestRepo(t, db, "alice/demo", "alice@example.com", nil)

	err := db.Create(context.Background(), &model.TrackedRepository{
		RepoFullName: "alice/demo",
		OwnerEmail:   "alice@example.com",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrConflict), "want ErrConflict, got %v", err)

	repos, err := db.ListByOwner(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, repos, 1)
}

func TestCreate_SameRepoDifferentOwners(t *testing.T) {
	db := newTestDB(t)
	createTestRepo(t, db, "alice/demo", "alice@example.com", nil)
	createTestRepo(t, db, "alice/demo", "alice-work@example.com", nil)

	subs, err := db.ListByRepoName(context.Background(), "alice/demo")
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

// =========================================================================
// LOOKUPS
// =========================================================================

func TestFindByNameAndOwner(t *testing.T) {
	db := newTestDB(t)
	created := createTestRepo(t, db, "alice/demo", "alice@example.com", int64Ptr(7))

	found, err := db.FindByNameAndOwner(context.Background(), "alice/demo", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	require.NotNil(t, found.WebhookID)
	assert.Equal(t, int64(7), *found.WebhookID)

	_, err = db.FindByNameAndOwner(context.Background(), "alice/demo", "bob@example.com")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestGetForOwner_OtherOwnerLooksMissing(t *testing.T) {
	db := newTestDB(t)
	created := createTestRepo(t, db, "alice/demo", "alice@example.com", nil)

	got, err := db.GetForOwner(context.Background(), created.ID, "alice@example.com")
	require.NoError(t, err)
	assert.Nil(t, got.WebhookID, "record created without a webhook must scan back as nil")

	_, err = db.GetForOwner(context.Background(), created.ID, "mallory@example.com")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestListByRepoName_IsCaseSensitive(t *testing.T) {
	db := newTestDB(t)
	createTestRepo(t, db, "Alice/Demo", "alice@example.com", nil)

	subs, err := db.ListByRepoName(context.Background(), "alice/demo")
	require.NoError(t, err)
	assert.Empty(t, subs)

	subs, err = db.ListByRepoName(context.Background(), "Alice/Demo")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestListByOwner_OnlyOwnRecords(t *testing.T) {
	db := newTestDB(t)
	createTestRepo(t, db, "alice/one", "alice@example.com", nil)
	createTestRepo(t, db, "alice/two", "alice@example.com", nil)
	createTestRepo(t, db, "bob/one", "bob@example.com", nil)

	repos, err := db.ListByOwner(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Len(t, repos, 2)
	for _, r := range repos {
		assert.Equal(t, "alice@example.com", r.OwnerEmail)
	}
}

// =========================================================================
// DELETE
// =========================================================================

func TestDeleteForOwner(t *testing.T) {
	db := newTestDB(t)
	created := createTestRepo(t, db, "alice/demo", "alice@example.com", nil)

	err := db.DeleteForOwner(context.Background(), created.ID, "bob@example.com")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "foreign owner must not delete")

	require.NoError(t, db.DeleteForOwner(context.Background(), created.ID, "alice@example.com"))

	_, err = db.GetForOwner(context.Background(), created.ID, "alice@example.com")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	err = db.DeleteForOwner(context.Background(), created.ID, "alice@example.com")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

// =========================================================================
// MIGRATIONS / DIALECT
// =========================================================================

func TestMigrationStatus_AllApplied(t *testing.T) {
	db := newTestDB(t)

	states, err := db.MigrationStatus(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, states)
	for _, s := range states {
		assert.True(t, s.Applied, "migration %d (%s) not applied", s.Version, s.Path)
	}

	n, err := db.Migrate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "second migrate should be a no-op")
}

func TestRebind(t *testing.T) {
	lite := &DB{dialect: DialectSQLite}
	pg := &DB{dialect: DialectPostgres}
	q := "SELECT 1 FROM t WHERE a = ? AND b = ?"

	assert.Equal(t, q, lite.rebind(q))
	assert.Equal(t, "SELECT 1 FROM t WHERE a = $1 AND b = $2", pg.rebind(q))
}

func TestDialectFor(t *testing.T) {
	assert.Equal(t, DialectPostgres, DialectFor("postgres://u:p@localhost/forkwatch"))
	assert.Equal(t, DialectPostgres, DialectFor("postgresql://localhost/forkwatch"))
	assert.Equal(t, DialectSQLite, DialectFor("data/forkwatch.db"))
	assert.Equal(t, DialectSQLite, DialectFor(":memory:"))
}

func TestSQLiteDSN(t *testing.T) {
	dir := t.TempDir()

	dsn, err := sqliteDSN(":memory:")
	require.NoError(t, err)
	assert.Equal(t, ":memory:", dsn)

	path := filepath.Join(dir, "a", "b", "forkwatch.db")
	dsn, err = sqliteDSN(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "file:"+path+"?"), dsn)
	assert.Contains(t, dsn, "busy_timeout")
	assert.Contains(t, dsn, "journal_mode")
	assert.DirExists(t, filepath.Join(dir, "a", "b"))

	dsn, err = sqliteDSN("file:" + filepath.Join(dir, "x.db") + "?cache=shared")
	require.NoError(t, err)
	assert.Contains(t, dsn, "cache=shared", "existing parameters are kept")
	assert.Equal(t, 1, strings.Count(dsn, "file:"))
}

// newFileDB opens a SQLite file store in a fresh, not yet existing directory.
func newFileDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "forkwatch.db")
	db, err := Open(context.Background(), Options{DSN: path})
	require.NoError(t, err, "Open must create the parent directory")
	t.Cleanup(func() { db.Close() })
	return db
}

func TestFileStore_PragmasOnEveryConnection(t *testing.T) {
	db := newFileDB(t)
	ctx := context.Background()

	// Hold two connections at once so the pool has to open a second one.
	c1, err := db.conn.Conn(ctx)
	require.NoError(t, err)
	defer c1.Close()
	c2, err := db.conn.Conn(ctx)
	require.NoError(t, err)
	defer c2.Close()

	for i, c := range []*sql.Conn{c1, c2} {
		var timeout int
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
		assert.Equal(t, 5000, timeout, "connection %d", i)

		var mode string
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, "wal", strings.ToLower(mode), "connection %d", i)
	}
}

func TestFileStore_ConcurrentWriters(t *testing.T) {
	db := newFileDB(t)
	ctx := context.Background()

	const workers, perWorker = 32, 10
	errs := make(chan error, workers*perWorker*2)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				name := fmt.Sprintf("o/r%d-%d", w, i)
				if err := db.Create(ctx, &model.TrackedRepository{RepoFullName: name, OwnerEmail: "a@example.com"}); err != nil {
					errs <- err
				}
				if _, err := db.ListByRepoName(ctx, name); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent store call failed: %v", err)
	}
	all, err := db.ListByOwner(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Len(t, all, workers*perWorker)
}

// TestPostgres_RoundTrip runs against a real PostgreSQL when
// FORKWATCH_TEST_POSTGRES_DSN is set.
func TestPostgres_RoundTrip(t *testing.T) {
	dsn := os.Getenv("FORKWATCH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FORKWATCH_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, Options{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := &model.TrackedRepository{RepoFullName: "pg/roundtrip", OwnerEmail: "pg@example.com", WebhookID: int64Ptr(9)}
	require.NoError(t, db.Create(ctx, repo))
	t.Cleanup(func() { _ = db.DeleteForOwner(ctx, repo.ID, "pg@example.com") })

	err = db.Create(ctx, &model.TrackedRepository{RepoFullName: "pg/roundtrip", OwnerEmail: "pg@example.com"})
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	got, err := db.GetForOwner(ctx, repo.ID, "pg@example.com")
	require.NoError(t, err)
	require.NotNil(t, got.WebhookID)
	assert.Equal(t, int64(9), *got.WebhookID)
}
