// Package history records finished scans in Neo4j so skill shares can be
// compared across cities and over time.
//
// Graph shape:
//
//	(:Query {key})-[:HAS_RUN]->(:Run {id, ...})-[:FOUND {count, percentage}]->(:Skill {label})
package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/skillscan/engine/domain"
)

// result is the minimal interface needed from a neo4j result.
type result interface {
	Consume(ctx context.Context) (neo4j.ResultSummary, error)
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Store writes runs to Neo4j.
type Store struct {
	driver     neo4j.DriverWithContext
	database   string
	newSession func(ctx context.Context) runner // for testing
}

// NewStore wraps an existing driver. database may be empty for the default.
func NewStore(driver neo4j.DriverWithContext, database string) *Store {
	return &Store{driver: driver, database: database}
}

// Open connects to uri and verifies connectivity.
func Open(ctx context.Context, uri, user, pass, database string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, pass, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connect %s: %w", uri, err)
	}
	return NewStore(driver, database), nil
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

// sessionAdapter adapts neo4j.SessionWithContext to the runner interface.
type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (s *Store) session(ctx context.Context) runner {
	if s.newSession != nil {
		return s.newSession(ctx)
	}
	return &sessionAdapter{sess: s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})}
}

var schema = []string{
	"CREATE CONSTRAINT query_key IF NOT EXISTS FOR (q:Query) REQUIRE q.key IS UNIQUE",
	"CREATE CONSTRAINT run_id IF NOT EXISTS FOR (r:Run) REQUIRE r.id IS UNIQUE",
	"CREATE CONSTRAINT skill_label IF NOT EXISTS FOR (k:Skill) REQUIRE k.label IS UNIQUE",
}

// EnsureSchema creates the uniqueness constraints the writes rely on.
func (s *Store) EnsureSchema(ctx context.Context) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)
	for _, stmt := range schema {
		if err := exec(ctx, sess, stmt, nil); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const saveRunCypher = `
MERGE (q:Query {key: $key})
  ON CREATE SET q.job_title = $job_title, q.city = $city, q.state = $state
CREATE (r:Run {
  id: $id, started_at: $started_at, elapsed_ms: $elapsed_ms,
  total_results: $total_results, pages: $pages,
  ads: $ads, skipped: $skipped, bytes: $bytes
})
CREATE (q)-[:HAS_RUN]->(r)
WITH r
UNWIND $skills AS s
MERGE (k:Skill {label: s.label})
  ON CREATE SET k.category = s.category
CREATE (r)-[:FOUND {count: s.count, percentage: s.percentage}]->(k)`

// QueryKey identifies a query node: lowercase job|city|state.
func QueryKey(q domain.SearchQuery) string {
	return strings.ToLower(q.JobTitle + "|" + q.City + "|" + q.State)
}

// SaveRun stores one finished run with its skill table.
func (s *Store) SaveRun(ctx context.Context, run domain.ScrapeRun) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	rows := make([]map[string]any, 0, len(run.Table))
	for _, row := range run.Table {
		rows = append(rows, map[string]any{
			"label":      row.Skill,
			"category":   row.Category,
			"count":      int64(row.Count),
			"percentage": row.Percentage,
		})
	}
	params := map[string]any{
		"key":           QueryKey(run.Query),
		"job_title":     run.Query.JobTitle,
		"city":          run.Query.City,
		"state":         run.Query.State,
		"id":            run.ID,
		"started_at":    run.StartedAt,
		"elapsed_ms":    run.Elapsed.Milliseconds(),
		"total_results": int64(run.TotalResults),
		"pages":         int64(run.PagesPlanned),
		"ads":           int64(run.TotalAdsFound),
		"skipped":       int64(run.AdsSkipped),
		"bytes":         run.TotalBytesFetched,
		"skills":        rows,
	}
	if err := exec(ctx, sess, saveRunCypher, params); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func exec(ctx context.Context, sess runner, cypher string, params map[string]any) error {
	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}
