package handler

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/sitesearch/pipeline/core/domain"
)

// FetchedPage is the raw result of fetching one URL, before metadata
// extraction.
type FetchedPage struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	MimeType   string
	Links      []string
}

// FetchClient is the narrow interface the handler depends on, keeping the
// concrete fetch mechanics (colly) behind a seam the same way the teacher
// keeps its gRPC converter behind a narrow client interface.
type FetchClient interface {
	Fetch(url string) (*FetchedPage, error)
}

// collyClient is the default FetchClient, wrapping a single-use
// colly.Collector per request so the per-request timeout and allowed
// domains can vary by call without mutating shared collector state.
type collyClient struct {
	allowedDomains []string
	timeout        int64 // nanoseconds; 0 keeps colly's default
}

func newCollyClient(allowedDomains []string, requestTimeoutNS int64) *collyClient {
	return &collyClient{allowedDomains: allowedDomains, timeout: requestTimeoutNS}
}

func (c *collyClient) Fetch(url string) (*FetchedPage, error) {
	var page FetchedPage
	var fetchErr error

	collector := colly.NewCollector()
	if len(c.allowedDomains) > 0 {
		collector.AllowedDomains = c.allowedDomains
	}
	if c.timeout > 0 {
		collector.SetRequestTimeout(time.Duration(c.timeout))
	}

	collector.OnResponse(func(r *colly.Response) {
		page.StatusCode = r.StatusCode
		page.Body = append([]byte(nil), r.Body...)
		page.MimeType = r.Headers.Get("Content-Type")
		page.Headers = make(map[string]string, len(*r.Headers))
		for k := range *r.Headers {
			page.Headers[k] = r.Headers.Get(k)
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		page.StatusCode = r.StatusCode
		fetchErr = err
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Request.AbsoluteURL(e.Attr("href"))
		if href != "" {
			page.Links = append(page.Links, href)
		}
	})

	if err := collector.Visit(url); err != nil && fetchErr == nil {
		fetchErr = err
	}
	if fetchErr != nil {
		return &page, fetchErr
	}
	return &page, nil
}

// extractMetadata pulls title/description/keywords/open-graph/h1/h2/images
// out of an HTML body using goquery, matching §4.4.1's metadata fields.
func extractMetadata(body []byte, env *domain.Envelope) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("extract metadata: %w", err)
	}

	env.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		env.Description = strings.TrimSpace(desc)
	}
	if kw, ok := doc.Find(`meta[name="keywords"]`).Attr("content"); ok {
		for _, k := range strings.Split(kw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				env.Keywords = append(env.Keywords, k)
			}
		}
	}

	extra := map[string]any{}
	doc.Find(`meta[property^="og:"]`).Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if prop != "" {
			extra[prop] = content
		}
	})
	if len(extra) > 0 {
		env.Extra = extra
	}

	doc.Find("h1").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			env.H1 = append(env.H1, t)
		}
	})
	doc.Find("h2").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			env.H2 = append(env.H2, t)
		}
	})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		alt, _ := s.Attr("alt")
		if src != "" {
			env.Images = append(env.Images, domain.Image{Src: src, Alt: alt})
		}
	})

	return nil
}

// urlFilter applies include/exclude regex filtering and domain scoping,
// matching the "filtered URLs complete with null output" edge case.
type urlFilter struct {
	allowedDomains []string
	include        []*regexp.Regexp
	exclude        []*regexp.Regexp
}

func newURLFilter(allowedDomains, includePatterns, excludePatterns []string) (*urlFilter, error) {
	f := &urlFilter{allowedDomains: allowedDomains}
	for _, p := range includePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile include pattern %q: %w", p, err)
		}
		f.include = append(f.include, re)
	}
	for _, p := range excludePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern %q: %w", p, err)
		}
		f.exclude = append(f.exclude, re)
	}
	return f, nil
}

func (f *urlFilter) Allowed(url string) bool {
	for _, re := range f.exclude {
		if re.MatchString(url) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, re := range f.include {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

func isRetriableStatus(status int) bool {
	return status >= 500 || status == 429
}

func isPermanentStatus(status int) bool {
	return status >= 400 && status < 500 && status != 429
}
