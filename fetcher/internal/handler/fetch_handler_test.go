package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	coredomain "github.com/sitesearch/pipeline/core/domain"
)

type fakeFetchClient struct {
	page *FetchedPage
	err  error
}

func (f *fakeFetchClient) Fetch(url string) (*FetchedPage, error) {
	return f.page, f.err
}

func newTestHandler(t *testing.T, client FetchClient) *FetchHandler {
	filter, err := newURLFilter(nil, nil, []string{`\.pdf$`})
	require.NoError(t, err)

	return &FetchHandler{
		client:  client,
		filter:  filter,
		retry:   newRetryPolicy(1, 0),
		limiter: newPolitenessLimiter(0),
	}
}

func TestProcessSkipsExcludedURL(t *testing.T) {
	h := newTestHandler(t, &fakeFetchClient{})
	_, err := h.Process(context.Background(), &coredomain.Envelope{URL: "https://example.com/doc.pdf"})

	var skip *coredomain.SkipError
	require.ErrorAs(t, err, &skip)
}

func TestProcessSucceedsAndComputesContentHash(t *testing.T) {
	h := newTestHandler(t, &fakeFetchClient{page: &FetchedPage{
		StatusCode: 200,
		Body:       []byte("<html><title>Hi</title><body>hello</body></html>"),
		MimeType:   "text/html",
	}})

	out, err := h.Process(context.Background(), &coredomain.Envelope{URL: "https://example.com/a"})
	require.NoError(t, err)
	require.NotEmpty(t, out.ContentHash)
	require.Equal(t, "Hi", out.Title)
}

func TestProcessClassifiesPermanentOn404(t *testing.T) {
	h := newTestHandler(t, &fakeFetchClient{page: &FetchedPage{StatusCode: 404}})

	_, err := h.Process(context.Background(), &coredomain.Envelope{URL: "https://example.com/missing"})
	var permanent *coredomain.PermanentError
	require.ErrorAs(t, err, &permanent)
}

func TestProcessClassifiesTransientOnConnectError(t *testing.T) {
	h := newTestHandler(t, &fakeFetchClient{err: errors.New("connection refused")})

	_, err := h.Process(context.Background(), &coredomain.Envelope{URL: "https://example.com/down"})
	var transient *coredomain.TransientError
	require.ErrorAs(t, err, &transient)
}
