// Package report renders a finished ScrapeRun: a console summary, a TSV
// table and a horizontal bar chart.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rodaine/table"

	"github.com/WessleyAI/skillscan/engine/domain"
)

// Sorted returns a copy of t ordered by descending percentage, ties by label.
func Sorted(t domain.FrequencyTable) domain.FrequencyTable {
	out := append(domain.FrequencyTable(nil), t...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Percentage != out[j].Percentage {
			return out[i].Percentage > out[j].Percentage
		}
		return out[i].Skill < out[j].Skill
	})
	return out
}

// Print writes the run header followed by the sorted skill table.
func Print(w io.Writer, run domain.ScrapeRun) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Date: %s\n", run.StartedAt.Format("01-02-2006"))
	fmt.Fprintf(w, "City: %s\n", run.Query.Location())
	fmt.Fprintf(w, "Job: %s\n", run.Query.JobTitle)
	fmt.Fprintf(w, "Number of Jobs Scraped: %d\n", run.TotalAdsFound)
	if run.AdsSkipped > 0 {
		fmt.Fprintf(w, "Ads Skipped: %d\n", run.AdsSkipped)
	}
	fmt.Fprintf(w, "Bytes processed: %d\n", run.TotalBytesFetched)
	fmt.Fprintf(w, "Run Time: %.2f seconds\n", run.Elapsed.Seconds())
	fmt.Fprintln(w)

	tbl := table.New("Skill", "Category", "NumAds", "Percentage").WithWriter(w)
	for _, row := range Sorted(run.Table) {
		tbl.AddRow(row.Skill, row.Category, row.Count, fmt.Sprintf("%.2f", row.Percentage))
	}
	tbl.Print()
}

// WriteTSV writes the sorted table as tab-separated values with a
// Skill/NumAds/Percentage header.
func WriteTSV(w io.Writer, t domain.FrequencyTable) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"Skill", "NumAds", "Percentage"}); err != nil {
		return err
	}
	for _, row := range Sorted(t) {
		rec := []string{
			row.Skill,
			strconv.Itoa(row.Count),
			strconv.FormatFloat(row.Percentage, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FileBase names a run's artifacts: "<city>_<MM_DD_YYYY>", with spaces in
// the city replaced by underscores and "nationwide" when there is no city.
func FileBase(q domain.SearchQuery, date time.Time) string {
	city := "nationwide"
	if !q.Nationwide() {
		city = strings.Join(strings.Fields(q.City), "_")
	}
	return city + "_" + date.Format("01_02_2006")
}

// Failure writes a fatal run error with the query that triggered it.
func Failure(w io.Writer, q domain.SearchQuery, err error) {
	fmt.Fprintf(w, "scrape failed for %q in %s: %v\n", q.JobTitle, q.Location(), err)
}
