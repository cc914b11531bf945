package orchestrator

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/extraction"
)

// resultsWaitTimeout bounds the wait for the first result block after a
// search navigation. Results not appearing is a recoverable per-keyword
// failure, not a session failure.
const resultsWaitTimeout = 20 * time.Second

const (
	defaultResultSelector = `[data-result], .search-result, article`
	defaultAuthorSelector = `.author, [data-author], [rel='author']`
)

// resultScrapeTemplate collects every result block's visible text plus its
// author label and nearest link target. The two %s verbs take the quoted
// result and author selectors.
const resultScrapeTemplate = `(() => {
	const out = [];
	for (const el of document.querySelectorAll(%s)) {
		const text = (el.innerText || '').trim();
		if (!text) continue;
		const author = el.querySelector(%s);
		const link = el.querySelector('a[href]');
		out.push({
			text: text,
			author: author ? (author.innerText || '').trim() : '',
			url: link ? link.href : '',
		});
	}
	return out;
})()`

// scrapedUnit mirrors the objects resultScrapeTemplate pushes.
type scrapedUnit struct {
	Text   string `json:"text"`
	Author string `json:"author"`
	URL    string `json:"url"`
}

// search walks the configured keywords in order, accumulating candidates
// into the session-wide list. The stop flag is polled at the top of each
// keyword iteration.
func (o *Orchestrator) search(ctx context.Context) error {
	for _, keyword := range o.cfg.Session.Keywords {
		if o.checkStop(ctx) {
			return nil
		}
		if err := o.searchKeyword(ctx, keyword); err != nil {
			return err
		}
	}
	return nil
}

// searchKeyword gathers raw units for one keyword from the configured feeds
// and the browser surface, dedupes and caps them, and extracts candidates.
func (o *Orchestrator) searchKeyword(ctx context.Context, keyword string) error {
	log := o.logger.With(zap.String("keyword", keyword))

	units := o.fetchFeedUnits(ctx, keyword, log)

	browsed, err := o.browseKeyword(ctx, keyword, log)
	if err != nil {
		return err
	}
	units = append(units, browsed...)
	units = dedupeUnits(units)
	if max := o.cfg.Session.MaxSearchResultsPerKeyword; max > 0 && len(units) > max {
		units = units[:max]
	}

	records := extraction.ExtractCandidates(units, keyword)
	for i := range records {
		o.counts.found++
		if records[i].HasAddresses() {
			o.counts.withContacts++
		}
	}
	o.candidates = append(o.candidates, records...)

	log.Info("Keyword search finished",
		zap.Int("units", len(units)),
		zap.Int("candidates", len(records)),
	)
	return nil
}

// fetchFeedUnits pulls units from the feed source when one is configured.
// Feed failures are counted and skipped; the browser surface still runs.
func (o *Orchestrator) fetchFeedUnits(ctx context.Context, keyword string, log *zap.Logger) []schemas.RawUnit {
	if o.deps.Feeds == nil {
		return nil
	}
	units, err := o.deps.Feeds.FetchUnits(ctx, keyword)
	if err != nil {
		log.Warn("Feed fetch failed", zap.Error(err))
		o.counts.errors++
		return nil
	}
	log.Debug("Feed units collected", zap.Int("count", len(units)))
	return units
}

// browseKeyword drives the browser through one keyword search: navigate,
// clear any challenge, scroll through the results, scrape. Interaction
// failures skip the keyword; an unresolved challenge ends the session.
func (o *Orchestrator) browseKeyword(ctx context.Context, keyword string, log *zap.Logger) ([]schemas.RawUnit, error) {
	searchURL := o.searchURL(keyword)
	if searchURL == "" {
		return nil, nil
	}

	if err := o.deps.Driver.Navigate(ctx, searchURL); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("Search navigation failed, skipping keyword", zap.Error(err))
		o.counts.errors++
		return nil, nil
	}

	challenged, err := o.challengeSignal(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("Could not read page state, skipping keyword", zap.Error(err))
		o.counts.errors++
		return nil, nil
	}
	if challenged {
		if err := o.recoverFromChallenge(ctx); err != nil {
			return nil, err
		}
		o.transition(schemas.PhaseSearching)
		if err := o.deps.Driver.Navigate(ctx, searchURL); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("Search navigation failed after challenge recovery, skipping keyword", zap.Error(err))
			o.counts.errors++
			return nil, nil
		}
	}

	resultSel := orDefault(o.cfg.Site.ResultSelector, defaultResultSelector)
	if err := o.deps.Driver.WaitForElement(ctx, resultSel, resultsWaitTimeout); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("No results appeared for keyword", zap.Error(err))
		o.counts.errors++
		return nil, nil
	}

	o.scrollThroughResults(ctx)

	units, err := o.scrapeResults(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("Result scrape failed, skipping keyword", zap.Error(err))
		o.counts.errors++
		return nil, nil
	}
	return units, nil
}

// searchURL builds the search location for a keyword from the configured
// template, falling back to a conventional query path under the base URL.
func (o *Orchestrator) searchURL(keyword string) string {
	site := o.cfg.Site
	escaped := url.QueryEscape(keyword)
	if site.SearchURLTemplate != "" {
		if strings.Contains(site.SearchURLTemplate, "%s") {
			return fmt.Sprintf(site.SearchURLTemplate, escaped)
		}
		return site.SearchURLTemplate + escaped
	}
	if site.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(site.BaseURL, "/") + "/search?q=" + escaped
}

// scrollThroughResults walks a scroll plan down the results page so lazily
// loaded content has a chance to appear. Failures just end the walk.
func (o *Orchestrator) scrollThroughResults(ctx context.Context) {
	plan := o.deps.Simulator.ScrollPlan(o.cfg.Session.ScrollRounds)
	for _, step := range plan {
		if ctx.Err() != nil {
			return
		}
		if err := o.deps.Driver.ScrollBy(ctx, step.DeltaY); err != nil {
			o.logger.Debug("Scroll step failed", zap.Error(err))
			return
		}
		if err := o.deps.Simulator.Delay(ctx, step.Pause, step.Pause); err != nil {
			return
		}
	}
}

// scrapeResults evaluates the scrape script and converts its output into
// raw units stamped with the collection time.
func (o *Orchestrator) scrapeResults(ctx context.Context) ([]schemas.RawUnit, error) {
	script := fmt.Sprintf(resultScrapeTemplate,
		strconv.Quote(orDefault(o.cfg.Site.ResultSelector, defaultResultSelector)),
		strconv.Quote(orDefault(o.cfg.Site.AuthorSelector, defaultAuthorSelector)),
	)

	var scraped []scrapedUnit
	if err := o.deps.Driver.Evaluate(ctx, script, &scraped); err != nil {
		return nil, err
	}

	pageURL, err := o.deps.Driver.CurrentURL(ctx)
	if err != nil {
		pageURL = ""
	}

	now := o.now()
	units := make([]schemas.RawUnit, 0, len(scraped))
	for _, s := range scraped {
		src := s.URL
		if src == "" {
			src = pageURL
		}
		units = append(units, schemas.RawUnit{
			Content:     s.Text,
			AuthorLabel: s.Author,
			SourceURL:   src,
			CollectedAt: now,
		})
	}
	return units, nil
}

// dedupeUnits drops units whose content was already collected for this
// keyword, preserving first-seen order. Feeds and the browser surface often
// carry the same posting.
func dedupeUnits(units []schemas.RawUnit) []schemas.RawUnit {
	seen := make(map[string]struct{}, len(units))
	deduped := make([]schemas.RawUnit, 0, len(units))
	for _, u := range units {
		key := strings.TrimSpace(u.Content)
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		deduped = append(deduped, u)
	}
	return deduped
}
