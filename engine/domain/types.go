// Package domain defines the data model shared by the skillscan engine: the
// search query, the per-ad token bags, and the finished frequency report.
package domain

import (
	"strings"
	"time"
)

// DefaultJobTitle is searched when the caller does not name one.
const DefaultJobTitle = "data scientist"

// SearchQuery identifies one search. City and State are either both set or
// both empty; the empty form is a nationwide search. Build it with
// NewSearchQuery so the invariant holds.
type SearchQuery struct {
	JobTitle string `json:"job_title"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
}

// Nationwide reports whether the query has no location.
func (q SearchQuery) Nationwide() bool { return q.City == "" }

// Location renders "City, ST" or "nationwide".
func (q SearchQuery) Location() string {
	if q.Nationwide() {
		return "nationwide"
	}
	return q.City + ", " + q.State
}

func (q SearchQuery) String() string {
	return q.JobTitle + " (" + q.Location() + ")"
}

// ResultPage is one page of the paginated search listing.
type ResultPage struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
}

// AdDocument is the deduplicated token bag of one job ad.
type AdDocument struct {
	URL    string
	Tokens map[string]struct{}
}

// Has reports whether the ad contains token.
func (d AdDocument) Has(token string) bool {
	_, ok := d.Tokens[token]
	return ok
}

// SkillCount is one row of the frequency table.
type SkillCount struct {
	Skill      string  `json:"skill"`
	Category   string  `json:"category,omitempty"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// FrequencyTable holds one row per taxonomy skill, in taxonomy order.
type FrequencyTable []SkillCount

// Get returns the row for a skill label (case-insensitive).
func (t FrequencyTable) Get(skill string) (SkillCount, bool) {
	for _, row := range t {
		if strings.EqualFold(row.Skill, skill) {
			return row, true
		}
	}
	return SkillCount{}, false
}

// SkipReason classifies why an ad or page contributed nothing.
type SkipReason string

const (
	SkipFetch          SkipReason = "fetch"
	SkipDecode         SkipReason = "decode"
	SkipParseStructure SkipReason = "parse_structure"
)

// ScrapeRun is the terminal artifact of one run.
type ScrapeRun struct {
	ID                string         `json:"id"`
	Query             SearchQuery    `json:"query"`
	TotalResults      int            `json:"total_results"`
	PagesPlanned      int            `json:"pages_planned"`
	TotalAdsFound     int            `json:"total_ads_found"`
	AdsSkipped        int            `json:"ads_skipped"`
	TotalBytesFetched int64          `json:"total_bytes_fetched"`
	Table             FrequencyTable `json:"table"`
	StartedAt         time.Time      `json:"started_at"`
	Elapsed           time.Duration  `json:"elapsed"`
}
