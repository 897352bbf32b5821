package scraper

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/WessleyAI/skillscan/engine/domain"
	"github.com/WessleyAI/skillscan/pkg/fn"
)

const (
	// ResultsSelector is the container holding the ad links on a results page.
	ResultsSelector = "#resultsCol"
	// DefaultLinkMarker identifies click-through job-ad links.
	DefaultLinkMarker = "clk"
)

// LinkExtractor pulls ad URLs out of a results page.
type LinkExtractor struct {
	Selector string
	Marker   string
}

// Extract returns the absolute ad URLs in page order, deduplicated. A page
// without the results container yields a *domain.ParseStructureError.
func (e LinkExtractor) Extract(pageURL string, body []byte) ([]string, error) {
	selector := e.Selector
	if selector == "" {
		selector = ResultsSelector
	}
	marker := e.Marker
	if marker == "" {
		marker = DefaultLinkMarker
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, &domain.ParseStructureError{URL: pageURL, Selector: selector}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &domain.ParseStructureError{URL: pageURL, Selector: selector}
	}
	area := doc.Find(selector).First()
	if area.Length() == 0 {
		return nil, &domain.ParseStructureError{URL: pageURL, Selector: selector}
	}

	var resolved []string
	area.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		resolved = append(resolved, abs.String())
	})
	links := fn.Filter(resolved, func(s string) bool { return strings.Contains(s, marker) })
	return fn.Unique(links), nil
}
