// sitemap.go implements the optional sitemap-discovery addition named in
// §4.4.1: a fetched sitemap/sitemap-index document's <loc> entries, or an
// ordinary page's own anchor links, become candidate URLs for
// FetchHandler.emitDiscovered to enqueue. No sitemap-parsing library
// appears anywhere in the retrieval pack, so this decodes the small
// urlset/sitemapindex subset of the format with the standard library's
// encoding/xml.
package handler

import (
	"bytes"
	"encoding/xml"
	"strings"
)

type sitemapURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// discoverURLs returns the candidate URLs to enqueue for page: a sitemap
// or sitemap-index document's <loc> entries, falling back to the page's
// extracted anchor links for an ordinary HTML page.
func discoverURLs(page *FetchedPage) []string {
	if !looksLikeSitemap(page) {
		return page.Links
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(page.Body, &set); err == nil && len(set.URLs) > 0 {
		urls := make([]string, 0, len(set.URLs))
		for _, u := range set.URLs {
			if u.Loc != "" {
				urls = append(urls, u.Loc)
			}
		}
		return urls
	}

	var index sitemapIndex
	if err := xml.Unmarshal(page.Body, &index); err == nil && len(index.Sitemaps) > 0 {
		urls := make([]string, 0, len(index.Sitemaps))
		for _, s := range index.Sitemaps {
			if s.Loc != "" {
				urls = append(urls, s.Loc)
			}
		}
		return urls
	}

	return nil
}

func looksLikeSitemap(page *FetchedPage) bool {
	if strings.Contains(strings.ToLower(page.MimeType), "xml") {
		return true
	}
	return bytes.Contains(page.Body, []byte("<urlset")) || bytes.Contains(page.Body, []byte("<sitemapindex"))
}
