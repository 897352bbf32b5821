package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/skillscan/engine/domain"
)

// board serves one results page with three ads for any location, or an
// unrecognised search page when broken is set.
func board(t *testing.T, broken bool) *httptest.Server {
	t.Helper()
	ads := map[string]string{
		"a": "python sql",
		"b": "python spark",
		"c": "excel",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/jobs":
			if broken {
				fmt.Fprint(w, `<html><body>captcha</body></html>`)
				return
			}
			if r.URL.Query().Get("start") == "" {
				fmt.Fprint(w, `<html><body><div id="searchCount">Jobs 1 to 3 of 3</div></body></html>`)
				return
			}
			fmt.Fprint(w, `<html><body><div id="resultsCol">`+
				`<a href="/rc/clk?jk=a">a</a><a href="/rc/clk?jk=b">b</a><a href="/rc/clk?jk=c">c</a>`+
				`</div></body></html>`)
		case "/rc/clk":
			fmt.Fprintf(w, "<html><body><p>%s</p></body></html>", ads[r.URL.Query().Get("jk")])
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, env(nil), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func today() string {
	return time.Now().Format("01_02_2006")
}

func TestRunWritesReports(t *testing.T) {
	srv := board(t, false)
	out := t.TempDir()

	code, stdout, stderr := runCLI(t, "--base-url", srv.URL, "--city", "Seattle", "--state", "wa",
		"--delay", "-1ns", "--output-dir", out)
	require.Equal(t, exitOK, code, stderr)

	assert.Contains(t, stdout, "City: Seattle, WA")
	assert.Contains(t, stdout, "Number of Jobs Scraped: 3")
	assert.Contains(t, stdout, "Python")

	tsv, err := os.ReadFile(filepath.Join(out, "Seattle_"+today()+".txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(tsv)), "\n")
	assert.Equal(t, "Skill\tNumAds\tPercentage", lines[0])
	assert.Contains(t, string(tsv), "Python\t2\t")

	png, err := os.ReadFile(filepath.Join(out, "Seattle_"+today()+".png"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestRunDiscoveryFailure(t *testing.T) {
	srv := board(t, true)
	out := t.TempDir()

	code, stdout, stderr := runCLI(t, "--base-url", srv.URL, "--delay", "-1ns", "--output-dir", out)
	assert.Equal(t, exitFailed, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, `scrape failed for "data scientist" in nationwide`)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"state without city", []string{"--state", "WA"}},
		{"bad state", []string{"--city", "Seattle", "--state", "Washington"}},
		{"missing taxonomy", []string{"--taxonomy", "/does/not/exist.yaml"}},
		{"missing cities", []string{"--cities", "/does/not/exist.csv"}},
		{"bad flag", []string{"--numThreads", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, exitUsage, code)
			assert.NotEmpty(t, stderr)
		})
	}
}

func TestRunHelp(t *testing.T) {
	code, _, stderr := runCLI(t, "-h")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stderr, "-numThreads")
}

func TestRunCitiesBatch(t *testing.T) {
	srv := board(t, false)
	out := t.TempDir()
	cities := filepath.Join(t.TempDir(), "cities.csv")
	require.NoError(t, os.WriteFile(cities, []byte("city,state\nSeattle,WA\nSan Francisco,CA\n"), 0o644))

	code, stdout, stderr := runCLI(t, "--base-url", srv.URL, "--cities", cities,
		"--delay", "-1ns", "--output-dir", out)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, 2, strings.Count(stdout, "Number of Jobs Scraped: 3"))

	for _, base := range []string{"Seattle_", "San_Francisco_"} {
		_, err := os.Stat(filepath.Join(out, base+today()+".txt"))
		assert.NoError(t, err, base)
	}
}

func TestRunPublishesToNATS(t *testing.T) {
	ns, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	require.NoError(t, err)
	ns.Start()
	t.Cleanup(ns.Shutdown)
	require.True(t, ns.ReadyForConnections(3*time.Second))

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	sub, err := nc.SubscribeSync("skillscan.test")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	srv := board(t, false)
	code, _, stderr := runCLI(t, "--base-url", srv.URL, "--city", "Boise", "--state", "ID",
		"--delay", "-1ns", "--output-dir", t.TempDir(),
		"--nats", ns.ClientURL(), "--subject", "skillscan.test")
	require.Equal(t, exitOK, code, stderr)

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "application/json", msg.Header.Get("Content-Type"))

	var got domain.ScrapeRun
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "Boise", got.Query.City)
	assert.Equal(t, 3, got.TotalAdsFound)
	assert.Equal(t, got.ID, msg.Header.Get("Nats-Msg-Id"))
}

func TestRunNATSUnreachable(t *testing.T) {
	srv := board(t, false)
	code, _, stderr := runCLI(t, "--base-url", srv.URL, "--delay", "-1ns",
		"--output-dir", t.TempDir(), "--nats", "nats://127.0.0.1:1")
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "nats connect")
}
