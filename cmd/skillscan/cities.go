package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/WessleyAI/skillscan/engine/domain"
)

// readCities parses city,state rows. A header row and rows that do not form
// a valid query are skipped with a warning.
func readCities(r io.Reader, job string, log *slog.Logger) ([]domain.SearchQuery, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var out []domain.SearchQuery
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cities line %d: %w", line, err)
		}
		if len(rec) < 2 {
			log.Warn("skipping cities row", "line", line, "row", rec)
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "city") {
			continue
		}
		q, err := domain.NewSearchQuery(job, rec[0], rec[1])
		if err != nil || q.Nationwide() {
			log.Warn("skipping cities row", "line", line, "row", rec, "error", err)
			continue
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, errors.New("cities file has no usable city,state rows")
	}
	return out, nil
}

// buildQueries turns the config into the list of scans to run.
func buildQueries(cfg Config, log *slog.Logger) ([]domain.SearchQuery, error) {
	if cfg.Cities == "" {
		q, err := domain.NewSearchQuery(cfg.Job, cfg.City, cfg.State)
		if err != nil {
			return nil, err
		}
		return []domain.SearchQuery{q}, nil
	}
	f, err := os.Open(cfg.Cities)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCities(f, cfg.Job, log)
}
