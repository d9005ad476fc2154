package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/forkwatch/internal/apperror"
	"github.com/sakif/forkwatch/internal/auth"
	"github.com/sakif/forkwatch/internal/registrar"
)

type fakeBrowser struct {
	login       string
	repos       []registrar.RepoSummary
	activity    *registrar.Activity
	listErr     error
	activityErr error

	gotOwner, gotName string
}

func (f *fakeBrowser) AuthenticatedLogin(ctx context.Context, token string) (string, error) {
	return f.login, nil
}

func (f *fakeBrowser) ListOwnedRepos(ctx context.Context, token string) ([]registrar.RepoSummary, error) {
	return f.repos, f.listErr
}

func (f *fakeBrowser) RepoActivity(ctx context.Context, owner, name, token string, now time.Time) (*registrar.Activity, error) {
	f.gotOwner, f.gotName = owner, name
	return f.activity, f.activityErr
}

func TestOwnedRepos(t *testing.T) {
	gh := &fakeBrowser{repos: []registrar.RepoSummary{{ID: 1, Name: "demo", FullName: "alice/demo"}}}
	svc := NewGitHubService(gh, testLogger())

	repos, err := svc.OwnedRepos(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, repos, 1)
}

func TestOwnedRepos_RequiresToken(t *testing.T) {
	svc := NewGitHubService(&fakeBrowser{}, testLogger())

	_, err := svc.OwnedRepos(context.Background(), &auth.Session{Email: alice.Email})
	assert.True(t, errors.Is(err, apperror.ErrForbidden))
}

func TestOwnedRepos_UpstreamFailure(t *testing.T) {
	svc := NewGitHubService(&fakeBrowser{listErr: upstreamErr(502, "Bad Gateway")}, testLogger())

	_, err := svc.OwnedRepos(context.Background(), alice)
	assert.True(t, errors.Is(err, apperror.ErrUpstream))
}

func TestActivity_UsesAuthenticatedLogin(t *testing.T) {
	gh := &fakeBrowser{login: "alice", activity: &registrar.Activity{}}
	svc := NewGitHubService(gh, testLogger())

	_, err := svc.Activity(context.Background(), alice, "demo")
	require.NoError(t, err)
	assert.Equal(t, "alice", gh.gotOwner)
	assert.Equal(t, "demo", gh.gotName)
}

func TestActivity_Errors(t *testing.T) {
	tests := []struct {
		name    string
		repo    string
		err     error
		wantErr error
	}{
		{name: "missing repo param", repo: "", wantErr: apperror.ErrValidation},
		{name: "not found", repo: "demo", err: upstreamNotFound(), wantErr: apperror.ErrNotFound},
		{name: "upstream", repo: "demo", err: upstreamErr(500, "boom"), wantErr: apperror.ErrUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewGitHubService(&fakeBrowser{login: "alice", activityErr: tt.err}, testLogger())

			_, err := svc.Activity(context.Background(), alice, tt.repo)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}
