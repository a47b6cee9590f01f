// Package domain holds the types shared by every stage of the pipeline:
// the task envelope that flows through the queues, the queue task record
// the backend keeps around it, and the error taxonomy every component
// surfaces through.
package domain

import "time"

// IndexOperation is the action the persister asks the indexer to take.
type IndexOperation string

const (
	IndexOperationNew    IndexOperation = "new"
	IndexOperationEdit   IndexOperation = "edit"
	IndexOperationDelete IndexOperation = "delete"
)

// Image is a single image reference extracted from a fetched page.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// Envelope is the append-only task record that flows through the pipeline.
// Every stage may add fields; none may remove or rewrite a field a prior
// stage has already set.
type Envelope struct {
	// Identity & routing.
	URL           string         `json:"url"`
	SiteID        string         `json:"site_id"`
	CrawlerID     string         `json:"crawler_id,omitempty"`
	CrawlerType   string         `json:"crawler_type,omitempty"`
	CrawlerConfig map[string]any `json:"crawler_config,omitempty"`

	// Content.
	Content      []byte            `json:"content,omitempty"`
	CleanContent string            `json:"clean_content,omitempty"`
	MimeType     string            `json:"mimetype,omitempty"`
	StatusCode   int               `json:"status_code,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Links        []string          `json:"links,omitempty"`

	// Metadata. Headings and images are named fields; open-graph fields
	// don't get promoted one by one. Extra carries anything not listed
	// explicitly so a new metadata field never forces a wire-format migration.
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Keywords    []string       `json:"keywords,omitempty"`
	H1          []string       `json:"h1,omitempty"`
	H2          []string       `json:"h2,omitempty"`
	Images      []Image        `json:"images,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`

	// Dedup & versioning.
	ContentHash    string         `json:"content_hash,omitempty"`
	Version        int            `json:"version,omitempty"`
	IndexOperation IndexOperation `json:"index_operation,omitempty"`

	// Timestamps.
	Timestamp time.Time `json:"timestamp,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Clone returns a deep-enough copy for safe re-enqueue (new slice/map
// backing arrays), so a handler that mutates its output doesn't alias the
// envelope still referenced by the loop that dequeued it.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Content != nil {
		clone.Content = append([]byte(nil), e.Content...)
	}
	if e.Links != nil {
		clone.Links = append([]string(nil), e.Links...)
	}
	if e.Keywords != nil {
		clone.Keywords = append([]string(nil), e.Keywords...)
	}
	if e.H1 != nil {
		clone.H1 = append([]string(nil), e.H1...)
	}
	if e.H2 != nil {
		clone.H2 = append([]string(nil), e.H2...)
	}
	if e.Images != nil {
		clone.Images = append([]Image(nil), e.Images...)
	}
	if e.Headers != nil {
		clone.Headers = make(map[string]string, len(e.Headers))
		for k, v := range e.Headers {
			clone.Headers[k] = v
		}
	}
	if e.Extra != nil {
		clone.Extra = make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			clone.Extra[k] = v
		}
	}
	if e.CrawlerConfig != nil {
		clone.CrawlerConfig = make(map[string]any, len(e.CrawlerConfig))
		for k, v := range e.CrawlerConfig {
			clone.CrawlerConfig[k] = v
		}
	}
	return &clone
}
