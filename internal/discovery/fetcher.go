package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZacMelendez/passporter/config"
	"github.com/gocolly/colly"
)

// acceptHeader mirrors a browser navigation request so content negotiation
// returns HTML.
const acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// FetchError covers every way a page fetch can fail. Non-2xx statuses,
// network errors and timeouts are all the same kind to callers; StatusCode is
// zero when no response arrived.
type FetchError struct {
	URL        string
	StatusCode int
	Reason     string
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Reason != "":
		return fmt.Sprintf("fetch %s: status %d: %s", e.URL, e.StatusCode, e.Reason)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
	}
}

// TextFetcher loads one page body as text.
type TextFetcher interface {
	FetchText(ctx context.Context, pageURL string) (string, error)
}

// PageFetcher issues a single GET per call with redirects followed and a
// fixed User-Agent and Accept header. A fresh collector is built for every
// fetch; the request timeout is whatever remains of the deadline on ctx, so
// a slow homepage leaves less time for the privacy page.
type PageFetcher struct {
	userAgent string
	log       *slog.Logger
}

func NewPageFetcher(cfg *config.DiscoveryConfig, log *slog.Logger) *PageFetcher {
	return &PageFetcher{userAgent: cfg.UserAgent, log: log}
}

func (f *PageFetcher) FetchText(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &FetchError{URL: pageURL, Reason: err.Error()}
	}

	c := colly.NewCollector()
	c.UserAgent = f.userAgent
	c.ParseHTTPErrorResponse = true // let non-2xx responses reach OnResponse
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", &FetchError{URL: pageURL, Reason: context.DeadlineExceeded.Error()}
		}
		c.SetRequestTimeout(remaining)
	}

	var (
		body       string
		statusCode int
		failure    error
	)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHeader)
	})
	c.OnResponse(func(resp *colly.Response) {
		statusCode = resp.StatusCode
		body = string(resp.Body)
	})
	c.OnError(func(resp *colly.Response, err error) {
		if resp != nil {
			statusCode = resp.StatusCode
		}
		failure = err
	})

	if err := c.Visit(pageURL); err != nil && failure == nil {
		failure = err
	}
	if failure != nil {
		f.log.Debug("fetch failed.", slog.String("url", pageURL), slog.String("err", failure.Error()))
		return "", &FetchError{URL: pageURL, StatusCode: statusCode, Reason: failure.Error()}
	}
	if statusCode < 200 || statusCode >= 300 {
		return "", &FetchError{URL: pageURL, StatusCode: statusCode}
	}

	return body, nil
}
