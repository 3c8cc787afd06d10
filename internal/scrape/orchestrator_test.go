package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapleads/internal/config"
	"mapleads/internal/extract"
	"mapleads/internal/model"
)

// fakeSession records calls and fails navigation on demand.
type fakeSession struct {
	navigated  []string
	searchURLs []string
	recovered  int
	processed  int
	debugs     []string

	// navErr is consumed once per matching URL, simulating a transient crash.
	navErr map[string]error
}

func newFakeSession() *fakeSession {
	return &fakeSession{navErr: map[string]error{}}
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.navigated = append(s.navigated, url)
	if err, ok := s.navErr[url]; ok {
		delete(s.navErr, url)
		return err
	}
	return nil
}

func (s *fakeSession) Pane() extract.Pane                { return nopPane{} }
func (s *fakeSession) DetectBlock(context.Context) bool  { return false }
func (s *fakeSession) SetSearchURL(url string)           { s.searchURLs = append(s.searchURLs, url) }
func (s *fakeSession) NoteProcessed(context.Context) error {
	s.processed++
	return nil
}
func (s *fakeSession) Recover(context.Context, error) error {
	s.recovered++
	return nil
}
func (s *fakeSession) CaptureDebug(_ context.Context, reason string) {
	s.debugs = append(s.debugs, reason)
}

type nopPane struct{}

func (nopPane) Eval(context.Context, string, any) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		SearchLat:       59.9139,
		SearchLng:       10.7522,
		Zoom:            14,
		IndustryRetries: 3,
		MaxScrollTries:  5,
		DelayMin:        0,
		DelayMax:        0,
	}
}

func newTestOrchestrator(cfg *config.Config, s Session) *Orchestrator {
	o := New(cfg, s)
	o.sleep = func(time.Duration) {}
	return o
}

func recordWith(name, website string) model.BusinessRecord {
	r := model.NewBusinessRecord()
	r.Name = name
	r.Website = website
	return r
}

func TestRunFiltersBusinessesWithRealWebsites(t *testing.T) {
	sess := newFakeSession()
	o := newTestOrchestrator(testConfig(), sess)

	byURL := map[string]model.BusinessRecord{
		"https://maps/place/a": recordWith("Joes Bakery", model.NotFound),
		"https://maps/place/b": recordWith("Hotel Bristol", "https://bristol.no"),
		"https://maps/place/c": recordWith("Kafe Sør", "https://facebook.com/kafesor"),
	}
	o.discoverFn = func(context.Context, extract.Pane, int) []string {
		return []string{"https://maps/place/a", "https://maps/place/b", "https://maps/place/c"}
	}
	o.extractFn = func(_ context.Context, _ extract.Pane, url string) model.BusinessRecord {
		return byURL[url]
	}

	results, err := o.Run(context.Background(), []string{"bakery"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, 3, r.Found)
	assert.Equal(t, 3, r.Processed)
	assert.Equal(t, 1, r.Filtered)
	assert.Equal(t, 2, r.Kept)

	records := Collect(results)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Empty(t, rec.Website, "kept records must have no real website")
		assert.Equal(t, "bakery", rec.Industry)
	}
	assert.Equal(t, "Joes Bakery", records[0].Name)
	// Kafe Sør's facebook link is a platform, not a real site, so it stays.
	assert.Equal(t, "Kafe Sør", records[1].Name)
}

func TestRunZeroResultsAfterRetriesIsFatal(t *testing.T) {
	sess := newFakeSession()
	cfg := testConfig()
	o := newTestOrchestrator(cfg, sess)

	discoveries := 0
	o.discoverFn = func(context.Context, extract.Pane, int) []string {
		discoveries++
		return nil
	}
	o.extractFn = func(context.Context, extract.Pane, string) model.BusinessRecord {
		t.Fatal("extract must not run when nothing was discovered")
		return model.BusinessRecord{}
	}

	results, err := o.Run(context.Background(), []string{"bakery", "cafe"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bakery")

	// Every retry re-entered the search, none of them found listings.
	assert.Equal(t, cfg.IndustryRetries, discoveries)
	// The failure ends the run; cafe is never searched.
	for _, u := range sess.searchURLs {
		assert.NotContains(t, u, "cafe")
	}
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Err)
}

func TestRunStopsAtFirstFatalIndustry(t *testing.T) {
	sess := newFakeSession()
	o := newTestOrchestrator(testConfig(), sess)

	o.discoverFn = func(_ context.Context, _ extract.Pane, _ int) []string { return nil }

	_, err := o.Run(context.Background(), []string{"plumber", "electrician", "painter"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plumber")
	// Debug snapshots were captured on each stagnant attempt.
	assert.NotEmpty(t, sess.debugs)
}

func TestRunRetriesIndustryThenSucceeds(t *testing.T) {
	sess := newFakeSession()
	o := newTestOrchestrator(testConfig(), sess)

	attempt := 0
	o.discoverFn = func(context.Context, extract.Pane, int) []string {
		attempt++
		if attempt < 3 {
			return nil
		}
		return []string{"https://maps/place/x"}
	}
	o.extractFn = func(context.Context, extract.Pane, string) model.BusinessRecord {
		return recordWith("Late Bloomer AS", model.NotFound)
	}

	results, err := o.Run(context.Background(), []string{"florist"})
	require.NoError(t, err)
	assert.Equal(t, 3, attempt)
	assert.Equal(t, 1, results[0].Kept)
}

func TestProcessListingRecoversSessionOnce(t *testing.T) {
	sess := newFakeSession()
	sess.navErr["https://maps/place/a"] = errors.New("chrome target closed")
	o := newTestOrchestrator(testConfig(), sess)

	o.discoverFn = func(context.Context, extract.Pane, int) []string {
		return []string{"https://maps/place/a"}
	}
	o.extractFn = func(context.Context, extract.Pane, string) model.BusinessRecord {
		return recordWith("Back From The Dead AS", model.NotFound)
	}

	results, err := o.Run(context.Background(), []string{"bakery"})
	require.NoError(t, err)
	assert.Equal(t, 1, sess.recovered)
	assert.Equal(t, 1, results[0].Kept)
	assert.Equal(t, 1, sess.processed)
}

func TestProcessListingSkipsOnPlainNavError(t *testing.T) {
	sess := newFakeSession()
	sess.navErr["https://maps/place/a"] = errors.New("navigate failed: net::ERR_NAME_NOT_RESOLVED")
	o := newTestOrchestrator(testConfig(), sess)

	o.discoverFn = func(context.Context, extract.Pane, int) []string {
		return []string{"https://maps/place/a", "https://maps/place/b"}
	}
	o.extractFn = func(context.Context, extract.Pane, string) model.BusinessRecord {
		return recordWith("Survivor AS", model.NotFound)
	}

	results, err := o.Run(context.Background(), []string{"bakery"})
	require.NoError(t, err)
	assert.Equal(t, 0, sess.recovered)
	assert.Equal(t, 1, results[0].Processed)
	assert.Equal(t, 1, results[0].Kept)
}

func TestRunHonorsListingCap(t *testing.T) {
	sess := newFakeSession()
	cfg := testConfig()
	cfg.ListingCap = 2
	o := newTestOrchestrator(cfg, sess)

	o.discoverFn = func(context.Context, extract.Pane, int) []string {
		return []string{"u1", "u2", "u3", "u4"}
	}
	extracted := 0
	o.extractFn = func(context.Context, extract.Pane, string) model.BusinessRecord {
		extracted++
		return recordWith("Capped AS", model.NotFound)
	}

	results, err := o.Run(context.Background(), []string{"bakery"})
	require.NoError(t, err)
	assert.Equal(t, 2, extracted)
	// Found reports everything discovered; the cap only bounds processing.
	assert.Equal(t, 4, results[0].Found)
	assert.Equal(t, 2, results[0].Processed)
}

func TestRunRespectsCancellation(t *testing.T) {
	sess := newFakeSession()
	o := newTestOrchestrator(testConfig(), sess)

	ctx, cancel := context.WithCancel(context.Background())
	o.discoverFn = func(context.Context, extract.Pane, int) []string {
		return []string{"u1", "u2", "u3"}
	}
	o.extractFn = func(context.Context, extract.Pane, string) model.BusinessRecord {
		cancel() // stop after the first listing
		return recordWith("First AS", model.NotFound)
	}

	results, err := o.Run(ctx, []string{"bakery", "cafe"})
	require.Error(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, results[0].Processed, 1)
}

func TestAnalysisRows(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	results := []model.IndustryRunResult{
		{Industry: "bakery", Found: 10, Processed: 9, Kept: 4, Filtered: 5},
		{Industry: "cafe", Err: "no results after retries"},
	}
	rows := Analysis(results, started)

	metrics := map[string]string{}
	for _, row := range rows {
		metrics[row.Metric] = row.Value
	}
	assert.Equal(t, "10", metrics["bakery: found"])
	assert.Equal(t, "4", metrics["bakery: kept"])
	assert.Equal(t, "5", metrics["bakery: filtered"])
	assert.Equal(t, "no results after retries", metrics["cafe: error"])
	assert.Equal(t, "2", metrics["Industries"])
}
