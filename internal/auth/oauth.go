package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/sakif/forkwatch/internal/registrar"
)

// Scopes requested at sign-in. Besides the profile and email, tracking
// needs to read private repositories and manage their webhooks.
var Scopes = []string{"read:user", "user:email", "repo", "admin:repo_hook"}

// ProfileFetcher resolves the GitHub profile behind an access token.
type ProfileFetcher interface {
	Profile(ctx context.Context, token string) (*registrar.Profile, error)
}

// GitHubUser is the result of a completed sign-in.
type GitHubUser struct {
	Login       string
	Name        string
	Email       string
	AvatarURL   string
	AccessToken string
}

// GitHubProvider wraps golang.org/x/oauth2 for the GitHub Authorization Code
// flow.
type GitHubProvider struct {
	config   *oauth2.Config
	profiles ProfileFetcher
}

// NewGitHubProvider creates a GitHubProvider. callbackURL must match the
// OAuth App's "Authorization callback URL" exactly.
func NewGitHubProvider(clientID, clientSecret, callbackURL string, profiles ProfileFetcher) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       Scopes,
			Endpoint:     github.Endpoint,
		},
		profiles: profiles,
	}
}

// AuthURL returns the GitHub authorization URL carrying state.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for an access token and resolves
// the user's profile with it. A user without a verified primary email
// cannot sign in: the email is the account identity.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	profile, err := p.profiles.Profile(ctx, tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("auth: fetching GitHub profile: %w", err)
	}
	if profile.Email == "" {
		return nil, errors.New("auth: GitHub account has no verified primary email")
	}

	return &GitHubUser{
		Login:       profile.Login,
		Name:        profile.Name,
		Email:       profile.Email,
		AvatarURL:   profile.AvatarURL,
		AccessToken: tok.AccessToken,
	}, nil
}
