// Package handler implements the Fetcher stage: filters and fetches a URL,
// extracts metadata, computes the content hash, and optionally emits
// sitemap-discovered URLs. Grounded on crawler_handler.py's process_task
// plus the retry/politeness ladder named in §4.4.1.
package handler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	coredomain "github.com/sitesearch/pipeline/core/domain"
	"github.com/sitesearch/pipeline/core/contenthash"
	"github.com/sitesearch/pipeline/core/handler"
	"github.com/sitesearch/pipeline/core/queue"

	fcfg "github.com/sitesearch/pipeline/fetcher/internal/infra/config"
)

// FetchHandler implements core/handler.Handler for the fetch stage.
type FetchHandler struct {
	client  FetchClient
	filter  *urlFilter
	retry   *retryPolicy
	limiter *politenessLimiter

	sitemapDiscovery bool
	qm               *queue.Manager
	urlQueue         string
	log              *slog.Logger

	stats handler.Stats
}

// New builds a FetchHandler from the stage config. qm and the fetcher's
// own input queue (cfg.InputQueue, "url" per the queue-name contract) are
// where sitemap discovery enqueues any URLs it finds.
func New(cfg *fcfg.Config, qm *queue.Manager, log *slog.Logger) (*FetchHandler, error) {
	filter, err := newURLFilter(cfg.AllowedDomains, cfg.IncludePatterns, cfg.ExcludePatterns)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	return &FetchHandler{
		client:           newCollyClient(cfg.AllowedDomains, int64(cfg.RequestTimeout)),
		filter:           filter,
		retry:            newRetryPolicy(cfg.MaxRetryAttempts, 1*time.Second),
		limiter:          newPolitenessLimiter(cfg.BaseCrawlDelay),
		sitemapDiscovery: cfg.SitemapDiscovery,
		qm:               qm,
		urlQueue:         cfg.InputQueue,
		log:              log,
	}, nil
}

func (h *FetchHandler) OnStart(ctx context.Context) error {
	h.stats.StartTime = time.Now()
	return nil
}
func (h *FetchHandler) OnStop(ctx context.Context) error  { return nil }
func (h *FetchHandler) Stats() handler.Stats              { return h.stats }

// Process fetches in.URL, producing an envelope with content/metadata/
// content_hash on success, a SkipError for filtered URLs, a TransientError
// for retriable network/5xx/429 failures, and a PermanentError for
// unrecoverable 4xx/parse failures.
func (h *FetchHandler) Process(ctx context.Context, in *coredomain.Envelope) (*coredomain.Envelope, error) {
	if in == nil || in.URL == "" {
		return nil, coredomain.NewPermanentError(errEmptyURL)
	}

	h.stats.TasksProcessed++
	h.stats.LastActivity = time.Now()

	if !h.filter.Allowed(in.URL) {
		return nil, coredomain.NewSkipError("url excluded by include/exclude filter")
	}

	host := hostOf(in.URL)
	if err := h.limiter.Wait(ctx, host); err != nil {
		return nil, coredomain.NewTransientError(err)
	}

	page, fetchErr := h.client.Fetch(in.URL)
	if fetchErr == nil && page != nil && isPermanentStatus(page.StatusCode) {
		h.stats.TasksFailed++
		return nil, coredomain.NewPermanentError(errPermanentStatus)
	}

	if fetchErr != nil || (page != nil && isRetriableStatus(page.StatusCode)) {
		fetchErr = h.retry.Run(func() error {
			p, err := h.client.Fetch(in.URL)
			page = p
			if err != nil {
				return err
			}
			if page != nil && isRetriableStatus(page.StatusCode) {
				return errRetriableStatus
			}
			return nil
		})
	}

	if fetchErr != nil {
		h.stats.TasksFailed++
		if page != nil && isPermanentStatus(page.StatusCode) {
			return nil, coredomain.NewPermanentError(fetchErr)
		}
		return nil, coredomain.NewTransientError(fetchErr)
	}

	out := in.Clone()
	out.StatusCode = page.StatusCode
	out.Content = page.Body
	out.Headers = page.Headers
	out.MimeType = page.MimeType
	out.Links = page.Links
	out.Timestamp = time.Now()

	if strings.Contains(strings.ToLower(out.MimeType), "html") {
		if err := extractMetadata(page.Body, out); err != nil {
			return nil, coredomain.NewPermanentError(err)
		}
	}

	out.ContentHash = contenthash.Compute(page.Body)

	if h.sitemapDiscovery {
		h.emitDiscovered(ctx, page, in.SiteID)
	}

	h.stats.TasksSucceeded++
	return out, nil
}

// emitDiscovered enqueues the candidate URLs sitemap discovery turned up
// for page (sitemap/sitemap-index <loc> entries, or a page's own anchor
// links) back onto the url queue, per §4.4.1's sitemap-discovery addition.
// Failures here are logged and otherwise ignored: discovery is a side
// effect of a successful fetch, not a condition of it.
func (h *FetchHandler) emitDiscovered(ctx context.Context, page *FetchedPage, siteID string) {
	if h.qm == nil {
		return
	}
	for _, u := range discoverURLs(page) {
		if !h.filter.Allowed(u) {
			continue
		}
		if _, err := h.qm.Enqueue(ctx, h.urlQueue, &coredomain.Envelope{URL: u, SiteID: siteID}, ""); err != nil {
			h.log.Warn("sitemap discovery: enqueue failed",
				slog.String("url", u), slog.String("error", err.Error()))
		}
	}
}

func hostOf(rawURL string) string {
	rest := strings.TrimPrefix(rawURL, "https://")
	rest = strings.TrimPrefix(rest, "http://")
	if idx := strings.IndexAny(rest, "/?#"); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}

var errEmptyURL = coreErr("fetcher: empty url")
var errRetriableStatus = coreErr("fetcher: retriable status code")
var errPermanentStatus = coreErr("fetcher: permanent status code")

type coreErr string

func (e coreErr) Error() string { return string(e) }
