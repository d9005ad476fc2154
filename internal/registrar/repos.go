package registrar

import (
	"context"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
)

// Profile is the signed-in user's GitHub identity.
type Profile struct {
	Login     string
	Name      string
	Email     string
	AvatarURL string
}

// Repository is what tracking needs to know about a GitHub repository.
type Repository struct {
	FullName string
	Owner    string
	Name     string
	HTMLURL  string
	Private  bool
	Fork     bool
	// Parent is set for forks: the repository this one was forked from.
	ParentOwner string
	ParentName  string
}

// RepoSummary is one entry of the user's repository picker.
type RepoSummary struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"fullName"`
	Description *string   `json:"description"`
	URL         string    `json:"url"`
	Private     bool      `json:"private"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AuthenticatedLogin returns the login of the token's owner.
func (c *Client) AuthenticatedLogin(ctx context.Context, token string) (string, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	user, resp, err := c.github(token).Users.Get(ctx, "")
	if err != nil {
		return "", c.classify("get authenticated user", resp, err)
	}
	return user.GetLogin(), nil
}

// Profile returns the token owner's profile. Email is the primary verified
// address; GitHub omits it from /user when the user hides it.
func (c *Client) Profile(ctx context.Context, token string) (*Profile, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	gh := c.github(token)
	user, resp, err := gh.Users.Get(ctx, "")
	if err != nil {
		return nil, c.classify("get authenticated user", resp, err)
	}

	p := &Profile{
		Login:     user.GetLogin(),
		Name:      user.GetName(),
		Email:     user.GetEmail(),
		AvatarURL: user.GetAvatarURL(),
	}

	emails, resp, err := gh.Users.ListEmails(ctx, &github.ListOptions{PerPage: 100})
	if err != nil {
		if p.Email != "" {
			return p, nil
		}
		return nil, c.classify("list user emails", resp, err)
	}
	for _, e := range emails {
		if e.GetPrimary() && e.GetVerified() {
			p.Email = e.GetEmail()
			break
		}
	}
	return p, nil
}

// Repository confirms owner/name exists and returns GitHub's canonical
// form of it.
func (c *Client) Repository(ctx context.Context, owner, name, token string) (*Repository, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	repo, resp, err := c.github(token).Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, c.classify("get repository", resp, err)
	}

	out := &Repository{
		FullName: repo.GetFullName(),
		Owner:    repo.GetOwner().GetLogin(),
		Name:     repo.GetName(),
		HTMLURL:  repo.GetHTMLURL(),
		Private:  repo.GetPrivate(),
		Fork:     repo.GetFork(),
	}
	if out.FullName == "" {
		out.FullName = owner + "/" + name
	}
	if parent := repo.GetParent(); parent != nil {
		out.ParentOwner = parent.GetOwner().GetLogin()
		out.ParentName = parent.GetName()
	}
	return out, nil
}

// CreateForkWebhook registers a webhook for the "fork" event delivering JSON
// to callbackURL, signed with secret when one is given.
func (c *Client) CreateForkWebhook(ctx context.Context, owner, name, callbackURL, secret, token string) (int64, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	cfg := &github.HookConfig{
		URL:         github.String(callbackURL),
		ContentType: github.String("json"),
		InsecureSSL: github.String("0"),
	}
	if secret != "" {
		cfg.Secret = github.String(secret)
	}

	hook, resp, err := c.github(token).Repositories.CreateHook(ctx, owner, name, &github.Hook{
		Name:   github.String("web"),
		Events: []string{"fork"},
		Active: github.Bool(true),
		Config: cfg,
	})
	if err != nil {
		return 0, c.classify("create webhook", resp, err)
	}
	return hook.GetID(), nil
}

// DeleteWebhook removes a webhook. A 404 is reported as ErrNotFound; callers
// that only want the hook gone treat it as success.
func (c *Client) DeleteWebhook(ctx context.Context, owner, name string, id int64, token string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.github(token).Repositories.DeleteHook(ctx, owner, name, id)
	if err != nil {
		return c.classify("delete webhook", resp, err)
	}
	return nil
}

// ListOwnedRepos returns up to 100 repositories the token owner owns, most
// recently updated first.
func (c *Client) ListOwnedRepos(ctx context.Context, token string) ([]RepoSummary, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	repos, resp, err := c.github(token).Repositories.ListByAuthenticatedUser(ctx, &github.RepositoryListByAuthenticatedUserOptions{
		Type:        "owner",
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, c.classify("list repositories", resp, err)
	}

	out := make([]RepoSummary, 0, len(repos))
	for _, r := range repos {
		out = append(out, RepoSummary{
			ID:          r.GetID(),
			Name:        r.GetName(),
			FullName:    r.GetFullName(),
			Description: r.Description,
			URL:         r.GetHTMLURL(),
			Private:     r.GetPrivate(),
			UpdatedAt:   r.GetUpdatedAt().Time,
		})
	}
	return out, nil
}

// SplitFullName splits "owner/name". ok is false unless both halves are
// non-empty and there is exactly one slash.
func SplitFullName(fullName string) (owner, name string, ok bool) {
	owner, name, found := strings.Cut(fullName, "/")
	if !found || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", false
	}
	return owner, name, true
}
