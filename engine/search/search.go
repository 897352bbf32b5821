// Package search builds job-search URLs, reads the total result count off the
// first results page and plans the paginated crawl.
package search

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/WessleyAI/skillscan/engine/domain"
)

const (
	// DefaultBaseURL is the job board searched when no base is configured.
	DefaultBaseURL = "http://www.indeed.com"
	// PageSize is the number of ads listed per results page.
	PageSize = 10
	// CountSelector locates the "Jobs 1 to 10 of N" indicator.
	CountSelector = "#searchCount"
)

var digitRun = regexp.MustCompile(`\d+`)

// BuildURL renders the search URL for q. Words of the job title and city are
// joined with '+'; the state is appended after an encoded comma.
func BuildURL(base string, q domain.SearchQuery) string {
	if base == "" {
		base = DefaultBaseURL
	}
	base = strings.TrimRight(base, "/")
	title := strings.Join(strings.Fields(q.JobTitle), "+")
	if q.Nationwide() {
		return base + "/jobs?q=" + title
	}
	city := strings.Join(strings.Fields(q.City), "+")
	return base + "/jobs?q=" + title + "&l=" + city + "%2C+" + q.State
}

// ParseResultCount extracts the total from indicator text such as
// "Jobs 1 to 10 of 1,234". Digit groups are read positionally: with more than
// three groups the third and fourth form a thousands-separated number, with
// exactly three the third is the total.
func ParseResultCount(text string) (int, error) {
	groups := digitRun.FindAllString(text, -1)
	switch {
	case len(groups) > 3:
		thousands, err := strconv.Atoi(groups[2])
		if err != nil {
			return 0, &domain.DiscoveryError{Reason: "bad digit group " + groups[2], Err: err}
		}
		units, err := strconv.Atoi(groups[3])
		if err != nil {
			return 0, &domain.DiscoveryError{Reason: "bad digit group " + groups[3], Err: err}
		}
		return thousands*1000 + units, nil
	case len(groups) == 3:
		n, err := strconv.Atoi(groups[2])
		if err != nil {
			return 0, &domain.DiscoveryError{Reason: "bad digit group " + groups[2], Err: err}
		}
		return n, nil
	default:
		return 0, &domain.DiscoveryError{Reason: "result count indicator has " + strconv.Itoa(len(groups)) + " digit groups: " + strconv.Quote(text)}
	}
}

// FindResultCount locates the result-count indicator in a search page and
// parses it.
func FindResultCount(body []byte) (int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, &domain.DiscoveryError{Reason: "parse search page", Err: err}
	}
	sel := doc.Find(CountSelector).First()
	if sel.Length() == 0 {
		return 0, &domain.DiscoveryError{Reason: "result count indicator " + CountSelector + " not found"}
	}
	return ParseResultCount(sel.Text())
}

// PlanPages lists every results page for total ads, pageSize per page. The
// final partial page is included. maxPages > 0 truncates the plan.
func PlanPages(searchURL string, total, pageSize, maxPages int) []domain.ResultPage {
	if total <= 0 {
		return nil
	}
	if pageSize <= 0 {
		pageSize = PageSize
	}
	n := (total + pageSize - 1) / pageSize
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}
	pages := make([]domain.ResultPage, n)
	for i := range pages {
		pages[i] = domain.ResultPage{
			Index: i,
			URL:   searchURL + "&start=" + strconv.Itoa(i*pageSize),
		}
	}
	return pages
}
