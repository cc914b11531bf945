// Package enrich augments classified candidates with public signals. The
// only implementation reads an organization's public GitHub repositories and
// folds their primary languages into the candidate's technology list.
// Enrichment is strictly additive; callers treat every failure as skippable.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v58/github"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
)

const (
	defaultMaxRepos = 20

	// GitHub caps login names at 39 characters.
	maxOrgSlugLen = 39
)

// GitHubEnricher implements schemas.Enricher against the public GitHub API.
type GitHubEnricher struct {
	client   *github.Client
	limiter  *rate.Limiter
	maxRepos int
	log      *zap.Logger
}

// NewGitHubEnricher builds the production enricher. An empty token means
// unauthenticated access, which GitHub rate-limits hard; the configured
// limiter keeps us inside whatever budget applies.
func NewGitHubEnricher(cfg config.EnrichConfig, logger *zap.Logger) *GitHubEnricher {
	client := github.NewClient(nil)
	if cfg.GitHubToken != "" {
		client = client.WithAuthToken(cfg.GitHubToken)
	}
	return newGitHubEnricher(cfg, client, logger)
}

func newGitHubEnricher(cfg config.EnrichConfig, client *github.Client, logger *zap.Logger) *GitHubEnricher {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	maxRepos := cfg.MaxRepos
	if maxRepos <= 0 {
		maxRepos = defaultMaxRepos
	}
	return &GitHubEnricher{
		client:   client,
		limiter:  rate.NewLimiter(limit, 1),
		maxRepos: maxRepos,
		log:      logger.Named("enrich"),
	}
}

// Enrich looks up the candidate's organization on GitHub and merges the
// primary languages of its most recently pushed repositories into the
// classification. Records without a classification or an organization guess
// pass through untouched. A missing GitHub organization is not an error.
func (e *GitHubEnricher) Enrich(ctx context.Context, record *schemas.CandidateRecord) error {
	if record == nil || record.Classification == nil {
		return nil
	}

	org := orgSlug(candidateOrganization(record))
	if org == "" {
		return nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	opts := &github.RepositoryListByOrgOptions{
		Sort:        "pushed",
		ListOptions: github.ListOptions{PerPage: e.maxRepos},
	}
	repos, _, err := e.client.Repositories.ListByOrg(ctx, org, opts)
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			e.log.Debug("Organization has no GitHub presence", zap.String("org", org))
			return nil
		}
		return fmt.Errorf("failed to list repositories for %q: %w", org, err)
	}

	languages := repositoryLanguages(repos, e.maxRepos)
	if len(languages) == 0 {
		return nil
	}

	record.Classification.Technologies = mergeTechnologies(record.Classification.Technologies, languages)
	e.log.Debug("Candidate enriched from GitHub",
		zap.String("org", org),
		zap.Int("repos", len(repos)),
		zap.Strings("languages", languages),
	)
	return nil
}

func candidateOrganization(record *schemas.CandidateRecord) string {
	if org := strings.TrimSpace(record.Classification.Organization); org != "" {
		return org
	}
	return strings.TrimSpace(record.InferredOrganization)
}

// orgSlug reduces a free-text organization guess to a plausible GitHub
// login: lowercase, word runs joined with single hyphens.
func orgSlug(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxOrgSlugLen {
		slug = strings.Trim(slug[:maxOrgSlugLen], "-")
	}
	return slug
}

// repositoryLanguages returns the distinct primary languages of non-fork
// repositories, in listing order.
func repositoryLanguages(repos []*github.Repository, maxRepos int) []string {
	seen := make(map[string]struct{})
	var languages []string
	for i, repo := range repos {
		if i >= maxRepos {
			break
		}
		if repo.GetFork() {
			continue
		}
		lang := strings.TrimSpace(repo.GetLanguage())
		if lang == "" {
			continue
		}
		key := strings.ToLower(lang)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		languages = append(languages, lang)
	}
	return languages
}

// mergeTechnologies appends languages not already present, comparing
// case-insensitively, keeping the existing order first.
func mergeTechnologies(existing, languages []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		seen[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	merged := existing
	for _, lang := range languages {
		key := strings.ToLower(lang)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, lang)
	}
	return merged
}
