// Strategy dispatch by mimetype, matching §4.4.2's strategy selection.
// html uses html-to-markdown/v2 the way docs-crawler's internal/mdconvert
// converts a DOM node; markdown is normalized through gomarkdown's
// parse+render pipeline so clean_content is always canonical Markdown
// regardless of input dialect; plaintext collapses whitespace; pdf/docx/
// search-page are named but unimplemented, matching §1's explicit
// non-goal on binary-format extraction.
package handler

import (
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// CleanStrategy converts raw content of one mimetype into clean_content.
type CleanStrategy interface {
	Clean(content []byte) (string, error)
}

var errNotImplemented = fmt.Errorf("cleaner: strategy not implemented")

type htmlStrategy struct{}

func (htmlStrategy) Clean(content []byte) (string, error) {
	out, err := htmltomarkdown.ConvertString(string(content))
	if err != nil {
		return "", fmt.Errorf("html strategy: %w", err)
	}
	return strings.TrimSpace(out), nil
}

type markdownStrategy struct{}

func (markdownStrategy) Clean(content []byte) (string, error) {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse(content)

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.Render(doc, renderer)

	// The rendered HTML is re-flattened through the html-to-markdown
	// strategy so every markdown dialect converges on the same canonical
	// output the html strategy produces.
	out, err := htmltomarkdown.ConvertString(string(rendered))
	if err != nil {
		return "", fmt.Errorf("markdown strategy: %w", err)
	}
	return strings.TrimSpace(out), nil
}

type plaintextStrategy struct{}

var whitespaceRun = regexp.MustCompile(`[ \t]+`)
var blankLineRun = regexp.MustCompile(`\n{3,}`)

func (plaintextStrategy) Clean(content []byte) (string, error) {
	text := whitespaceRun.ReplaceAllString(string(content), " ")
	text = blankLineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}

type unimplementedStrategy struct{ name string }

func (u unimplementedStrategy) Clean(content []byte) (string, error) {
	return "", fmt.Errorf("%s strategy: %w", u.name, errNotImplemented)
}

// strategyFor selects a CleanStrategy from a mimetype string, matching
// §4.4.2's html/markdown/plaintext/pdf/docx/search-page dispatch.
func strategyFor(mimeType string) CleanStrategy {
	m := strings.ToLower(mimeType)
	switch {
	case strings.Contains(m, "html"):
		return htmlStrategy{}
	case strings.Contains(m, "markdown"):
		return markdownStrategy{}
	case strings.Contains(m, "pdf"):
		return unimplementedStrategy{name: "pdf"}
	case strings.Contains(m, "word") || strings.Contains(m, "docx"):
		return unimplementedStrategy{name: "docx"}
	case strings.Contains(m, "search-page"):
		return unimplementedStrategy{name: "search-page"}
	default:
		return plaintextStrategy{}
	}
}
