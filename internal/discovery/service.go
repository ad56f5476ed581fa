// Package discovery locates a privacy-policy URL and privacy-contact emails
// for one web origin: the homepage first, then either the privacy link found
// on it or a fixed list of well-known policy paths, with a fallback that
// widens a subdomain to its parent domain when nothing was found.
package discovery

import (
	"context"
	"log/slog"

	"github.com/ZacMelendez/passporter/config"
	"github.com/ZacMelendez/passporter/internal/aws_s3"
	"github.com/ZacMelendez/passporter/internal/cache"
	"github.com/ZacMelendez/passporter/internal/model"
)

type DiscoveryService struct {
	cfg       *config.DiscoveryConfig
	fetcher   TextFetcher
	cache     cache.ResultCache
	snapshots aws_s3.SnapshotClient
	log       *slog.Logger
}

// NewDiscoveryService wires the orchestrator. resultCache and snapshots may
// be nil; the corresponding steps are skipped.
func NewDiscoveryService(cfg *config.DiscoveryConfig, fetcher TextFetcher, resultCache cache.ResultCache,
	snapshots aws_s3.SnapshotClient, log *slog.Logger) *DiscoveryService {
	return &DiscoveryService{
		cfg:       cfg,
		fetcher:   fetcher,
		cache:     resultCache,
		snapshots: snapshots,
		log:       log,
	}
}

// Discover runs a single discovery attempt against one origin:
// 1. fetch the homepage; a failure here does not abort the attempt;
// 2. collect emails from the homepage and look for a privacy link on it;
// 3. privacy link found: fetch it and collect its emails, keeping the link
//    even when the fetch fails (a dead policy link is still useful metadata);
// 4. no privacy link: probe the well-known policy paths in order and stop at
//    the first one that fetches.
// All fetches share the deadline carried by ctx.
func (s *DiscoveryService) Discover(ctx context.Context, origin string) *model.DiscoveryResult {
	emails := newEmailSet()
	var privacyURL *string

	homepage, homeErr := s.fetcher.FetchText(ctx, origin)
	privacyLink := ""
	if homeErr == nil {
		privacyLink = findPrivacyLink(homepage, origin)
		collectEmails(homepage, emails)
	} else {
		s.log.Debug("homepage fetch failed.", slog.String("origin", origin),
			slog.String("err", homeErr.Error()))
	}

	if privacyLink != "" {
		privacyURL = &privacyLink
		body, err := s.fetcher.FetchText(ctx, privacyLink)
		if err != nil {
			s.log.Debug("privacy page fetch failed. keeping the link.",
				slog.String("url", privacyLink), slog.String("err", err.Error()))
		} else {
			collectEmails(body, emails)
			s.archive(privacyLink, body)
		}
	} else {
		for _, candidate := range buildPrivacyCandidates(origin) {
			body, err := s.fetcher.FetchText(ctx, candidate)
			if err != nil {
				continue
			}
			privacyURL = &candidate
			collectEmails(body, emails)
			s.archive(candidate, body)
			break
		}
	}

	return &model.DiscoveryResult{PrivacyURL: privacyURL, Emails: emails.values()}
}

// DiscoverWithFallback normalizes rawURL to an origin and runs Discover under
// the configured time budget. When a subdomain origin produced neither a
// privacy URL nor emails, the parent domain is tried with a fresh budget and
// the two results are merged. The method never fails: every misstep collapses
// into an empty result.
func (s *DiscoveryService) DiscoverWithFallback(ctx context.Context, rawURL string) *model.DiscoveryResult {
	origin := NormalizeOrigin(rawURL)

	if cached, ok := s.cachedResult(origin); ok {
		s.log.Debug("discovery result served from cache.", slog.String("origin", origin))
		return cached
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	result := s.Discover(attemptCtx, origin)
	cancel()

	if result.IsEmpty() && hasSubdomain(origin) {
		if parent := widenToParentDomain(origin); parent != "" {
			s.log.Debug("widening to the parent domain.", slog.String("origin", origin),
				slog.String("parent", parent))
			parentCtx, parentCancel := context.WithTimeout(ctx, s.cfg.Timeout)
			result = mergeResults(result, s.Discover(parentCtx, parent))
			parentCancel()
		}
	}

	s.saveResult(origin, result)
	return result
}

// mergeResults favors the first attempt's privacy URL and unions the emails.
func mergeResults(first, second *model.DiscoveryResult) *model.DiscoveryResult {
	merged := &model.DiscoveryResult{PrivacyURL: first.PrivacyURL}
	if merged.PrivacyURL == nil {
		merged.PrivacyURL = second.PrivacyURL
	}
	set := newEmailSet()
	for _, e := range first.Emails {
		set.add(e)
	}
	for _, e := range second.Emails {
		set.add(e)
	}
	merged.Emails = set.values()
	return merged
}

func (s *DiscoveryService) cachedResult(origin string) (*model.DiscoveryResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.GetResult(origin)
}

// saveResult caches non-empty results only, so origins that produced nothing
// stay retryable.
func (s *DiscoveryService) saveResult(origin string, result *model.DiscoveryResult) {
	if s.cache == nil || result.IsEmpty() {
		return
	}
	s.cache.SaveResult(origin, result)
}

func (s *DiscoveryService) archive(pageURL, html string) {
	if s.snapshots == nil {
		return
	}
	if link := s.snapshots.WritePage(pageURL, html); link != "" {
		s.log.Debug("privacy page archived.", slog.String("s3", link))
	}
}
