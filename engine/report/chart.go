package report

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/WessleyAI/skillscan/engine/domain"
)

var skyBlue = color.RGBA{R: 135, G: 206, B: 235, A: 255}

// ChartTitle is the chart heading for run.
func ChartTitle(run domain.ScrapeRun) string {
	job := cases.Title(language.English).String(run.Query.JobTitle)
	loc := "Nationwide"
	if !run.Query.Nationwide() {
		loc = run.Query.City
	}
	return fmt.Sprintf("Percentage of %s Job Ads with a Key Skill, %s", job, loc)
}

func chart(run domain.ScrapeRun) (*plot.Plot, error) {
	rows := append(domain.FrequencyTable(nil), run.Table...)
	// Ascending so the most frequent skill ends up at the top.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Percentage != rows[j].Percentage {
			return rows[i].Percentage < rows[j].Percentage
		}
		return rows[i].Skill > rows[j].Skill
	})

	values := make(plotter.Values, len(rows))
	labels := make([]string, len(rows))
	for i, r := range rows {
		values[i] = r.Percentage
		labels[i] = r.Skill
	}

	p := plot.New()
	p.Title.Text = ChartTitle(run)
	p.X.Label.Text = "Percentage Appearing in Job Ads"
	p.X.Min = 0

	bars, err := plotter.NewBarChart(values, vg.Points(9))
	if err != nil {
		return nil, fmt.Errorf("bar chart: %w", err)
	}
	bars.Horizontal = true
	bars.Color = skyBlue
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalY(labels...)
	return p, nil
}

// WriteChart renders run as a PNG to w.
func WriteChart(w io.Writer, run domain.ScrapeRun) error {
	p, err := chart(run)
	if err != nil {
		return err
	}
	height := vg.Length(len(run.Table))*0.22*vg.Inch + 1.5*vg.Inch
	wt, err := p.WriterTo(8*vg.Inch, height, "png")
	if err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveChart writes the PNG chart to path, creating parent directories.
func SaveChart(path string, run domain.ScrapeRun) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteChart(f, run); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
