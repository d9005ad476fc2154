package registrar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/sync/errgroup"
)

const (
	activityContributors = 5
	activityForks        = 20
	// activityFanOut bounds concurrent commit lookups per request.
	activityFanOut = 8
)

// Contributor is one entry of a repository's recent activity.
type Contributor struct {
	Username     string  `json:"username"`
	Avatar       string  `json:"avatar"`
	CommitHash   *string `json:"commitHash"`
	TimeAgo      *string `json:"timeAgo"`
	TotalCommits int     `json:"totalCommits"`
	RepoOwner    string  `json:"repoOwner"`
	RepoName     string  `json:"repoName"`
}

// ForkActivity is one recent fork of a repository.
type ForkActivity struct {
	Username   string  `json:"username"`
	Commits    int     `json:"commits"`
	ForkedAgo  string  `json:"forkedAgo"`
	CommitHash *string `json:"commitHash"`
	CommitAgo  *string `json:"commitAgo"`
	RepoOwner  string  `json:"repoOwner"`
	RepoName   string  `json:"repoName"`
}

// Activity is the hover-card summary for a repository.
type Activity struct {
	RecentActivity struct {
		ForkCount    int           `json:"forksLast24h"`
		Contributors []Contributor `json:"contributors"`
	} `json:"recentActivity"`
	RecentForks []ForkActivity `json:"recentForks"`
}

// lastCommit is the newest commit by one author, if any.
type lastCommit struct {
	sha   string
	date  time.Time
	count int
}

// RepoActivity summarises owner/name: its five most recently active
// contributors and its twenty newest forks. When owner/name is itself a
// fork, the parent repository is summarised instead.
func (c *Client) RepoActivity(ctx context.Context, owner, name, token string, now time.Time) (*Activity, error) {
	repo, err := c.Repository(ctx, owner, name, token)
	if err != nil {
		return nil, err
	}
	srcOwner, srcName := owner, name
	if repo.Fork && repo.ParentOwner != "" {
		srcOwner, srcName = repo.ParentOwner, repo.ParentName
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()
	gh := c.github(token)

	var (
		contributors []*github.Contributor
		forks        []*github.Repository
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, resp, err := gh.Repositories.ListContributors(gctx, srcOwner, srcName, &github.ListContributorsOptions{
			ListOptions: github.ListOptions{PerPage: activityContributors},
		})
		if err != nil {
			return c.classify("list contributors", resp, err)
		}
		contributors = list
		return nil
	})
	g.Go(func() error {
		list, resp, err := gh.Repositories.ListForks(gctx, srcOwner, srcName, &github.RepositoryListForksOptions{
			Sort:        "newest",
			ListOptions: github.ListOptions{PerPage: activityForks},
		})
		if err != nil {
			return c.classify("list forks", resp, err)
		}
		forks = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Per-author commit lookups are best effort; a failure leaves the entry
	// without commit details.
	contribCommits := make([]lastCommit, len(contributors))
	forkCommits := make([]lastCommit, len(forks))
	lookups, lctx := errgroup.WithContext(ctx)
	lookups.SetLimit(activityFanOut)
	for i, contributor := range contributors {
		lookups.Go(func() error {
			contribCommits[i] = c.latestCommitBy(lctx, gh, srcOwner, srcName, contributor.GetLogin(), 1)
			return nil
		})
	}
	for i, fork := range forks {
		lookups.Go(func() error {
			forkCommits[i] = c.latestCommitBy(lctx, gh, srcOwner, srcName, fork.GetOwner().GetLogin(), 100)
			return nil
		})
	}
	_ = lookups.Wait()

	out := &Activity{}
	out.RecentActivity.ForkCount = len(forks)

	order := make([]int, len(contributors))
	for i := range order {
		order[i] = i
	}
	sortByKey(order, func(i int) time.Time { return contribCommits[i].date })
	for _, i := range order[:min(len(order), activityContributors)] {
		lc := contribCommits[i]
		entry := Contributor{
			Username:     contributors[i].GetLogin(),
			Avatar:       contributors[i].GetAvatarURL(),
			TotalCommits: contributors[i].GetContributions(),
			RepoOwner:    srcOwner,
			RepoName:     srcName,
		}
		if lc.sha != "" {
			entry.CommitHash = ptr(lc.sha)
			entry.TimeAgo = ptr(TimeAgo(now, lc.date))
		}
		out.RecentActivity.Contributors = append(out.RecentActivity.Contributors, entry)
	}

	forkOrder := make([]int, len(forks))
	for i := range forkOrder {
		forkOrder[i] = i
	}
	sortByKey(forkOrder, func(i int) time.Time { return forks[i].GetCreatedAt().Time })
	for _, i := range forkOrder[:min(len(forkOrder), activityForks)] {
		lc := forkCommits[i]
		entry := ForkActivity{
			Username:  forks[i].GetOwner().GetLogin(),
			Commits:   lc.count,
			ForkedAgo: TimeAgo(now, forks[i].GetCreatedAt().Time),
			RepoOwner: srcOwner,
			RepoName:  srcName,
		}
		if lc.sha != "" {
			entry.CommitHash = ptr(lc.sha)
			entry.CommitAgo = ptr(TimeAgo(now, lc.date))
		}
		out.RecentForks = append(out.RecentForks, entry)
	}
	if out.RecentActivity.Contributors == nil {
		out.RecentActivity.Contributors = []Contributor{}
	}
	if out.RecentForks == nil {
		out.RecentForks = []ForkActivity{}
	}
	return out, nil
}

func (c *Client) latestCommitBy(ctx context.Context, gh *github.Client, owner, name, author string, perPage int) lastCommit {
	if author == "" {
		return lastCommit{}
	}
	commits, _, err := gh.Repositories.ListCommits(ctx, owner, name, &github.CommitsListOptions{
		Author:      author,
		ListOptions: github.ListOptions{PerPage: perPage},
	})
	if err != nil || len(commits) == 0 {
		return lastCommit{}
	}
	sha := commits[0].GetSHA()
	if len(sha) > 7 {
		sha = sha[:7]
	}
	return lastCommit{
		sha:   sha,
		date:  commits[0].GetCommit().GetAuthor().GetDate().Time,
		count: len(commits),
	}
}

// sortByKey orders idx by key descending; zero keys go last. The sort is
// stable so equal keys keep GitHub's order.
func sortByKey(idx []int, key func(int) time.Time) {
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := key(idx[a]), key(idx[b])
		switch {
		case ka.IsZero():
			return false
		case kb.IsZero():
			return true
		default:
			return ka.After(kb)
		}
	})
}

// TimeAgo renders the coarse age used by the hover card: minutes under an
// hour, hours under a day, days otherwise.
func TimeAgo(now, then time.Time) string {
	d := now.Sub(then)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
}

func ptr[T any](v T) *T { return &v }
