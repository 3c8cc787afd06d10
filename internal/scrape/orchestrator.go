// Package scrape runs the industry pipeline: for each search term it drives
// discovery, extraction and classification through the single live browser
// session, retries failed industries, and aggregates timing telemetry. An
// industry that stays empty after all retries is treated as a symptom of
// systemic blocking and ends the whole run.
package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/log"

	"mapleads/internal/browser"
	"mapleads/internal/config"
	"mapleads/internal/discover"
	"mapleads/internal/extract"
	"mapleads/internal/model"
	"mapleads/internal/sites"
	"mapleads/internal/workbook"
)

// Session is the slice of the browser manager the orchestrator drives.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Pane() extract.Pane
	DetectBlock(ctx context.Context) bool
	SetSearchURL(url string)
	Recover(ctx context.Context, cause error) error
	NoteProcessed(ctx context.Context) error
	CaptureDebug(ctx context.Context, reason string)
}

// Orchestrator iterates the industry list in file order against one session.
type Orchestrator struct {
	cfg     *config.Config
	session Session

	discoverFn func(ctx context.Context, pane extract.Pane, maxAttempts int) []string
	extractFn  func(ctx context.Context, pane extract.Pane, url string) model.BusinessRecord
	sleep      func(time.Duration)
}

func New(cfg *config.Config, session Session) *Orchestrator {
	d := discover.New(cfg)
	return &Orchestrator{
		cfg:        cfg,
		session:    session,
		discoverFn: d.Discover,
		extractFn:  extract.Fields,
		sleep:      time.Sleep,
	}
}

// Run processes every industry in order. A zero-result industry after all
// retries is fatal: the error ends the run and nothing later is attempted.
func (o *Orchestrator) Run(ctx context.Context, industries []string) ([]model.IndustryRunResult, error) {
	var results []model.IndustryRunResult

	for i, industry := range industries {
		log.Info("starting industry", "industry", industry, "position", fmt.Sprintf("%d/%d", i+1, len(industries)))

		result, err := o.runIndustryWithRetries(ctx, industry)
		results = append(results, result)
		if err != nil {
			return results, fmt.Errorf("industry %q: %w", industry, err)
		}

		log.Info("industry finished",
			"industry", industry,
			"found", result.Found,
			"kept", result.Kept,
			"filtered", result.Filtered,
			"duration", result.Duration().Round(time.Second))

		if i < len(industries)-1 {
			o.sleep(o.cfg.RandomDelay())
		}
	}
	return results, nil
}

func (o *Orchestrator) runIndustryWithRetries(ctx context.Context, industry string) (model.IndustryRunResult, error) {
	var last model.IndustryRunResult
	for attempt := 1; attempt <= o.cfg.IndustryRetries; attempt++ {
		if ctx.Err() != nil {
			return last, ctx.Err()
		}
		result := o.runIndustry(ctx, industry)
		if result.Found > 0 {
			return result, nil
		}
		last = result
		log.Warn("industry yielded no listings, retrying", "industry", industry, "attempt", attempt, "of", o.cfg.IndustryRetries)
		o.session.CaptureDebug(ctx, "stagnation")
		o.sleep(o.cfg.RandomDelay())
	}
	last.Err = "no results after retries"
	// Zero results after every retry reads as systemic blocking, not an
	// empty category. Stopping beats silently shipping a gap.
	return last, fmt.Errorf("no results after %d attempts", o.cfg.IndustryRetries)
}

func (o *Orchestrator) runIndustry(ctx context.Context, industry string) model.IndustryRunResult {
	result := model.IndustryRunResult{Industry: industry, Started: time.Now()}
	defer func() { result.Finished = time.Now() }()

	searchURL := o.cfg.SearchURL(industry)
	o.session.SetSearchURL(searchURL)
	if err := o.session.Navigate(ctx, searchURL); err != nil {
		log.Error("search navigation failed", "industry", industry, "err", err)
		result.Err = err.Error()
		return result
	}

	if o.session.DetectBlock(ctx) {
		// Advisory only; discovery may still surface partial results.
		log.Warn("block signal on search page before scrolling", "industry", industry)
		o.session.CaptureDebug(ctx, "blocked")
	}

	urls := o.discoverFn(ctx, o.session.Pane(), o.cfg.MaxScrollTries)
	result.Found = len(urls)
	if o.cfg.ListingCap > 0 && len(urls) > o.cfg.ListingCap {
		log.Info("listing cap applied", "industry", industry, "discovered", len(urls), "cap", o.cfg.ListingCap)
		urls = urls[:o.cfg.ListingCap]
	}
	log.Info("listings discovered", "industry", industry, "count", result.Found)

	spin := spinner.New(spinner.CharSets[9], 100*time.Millisecond)
	for i, url := range urls {
		if ctx.Err() != nil {
			break
		}
		spin.Suffix = fmt.Sprintf(" [%d/%d] %s", i+1, len(urls), industry)
		spin.Start()
		rec, ok := o.processListing(ctx, industry, url)
		spin.Stop()
		if !ok {
			continue
		}
		result.Processed++

		cleaned := sites.CleanWebsite(sentinelToEmpty(rec.Website))
		if cleaned != "" {
			// The lead already runs an independent site; drop it.
			result.Filtered++
			log.Debug("discarding business with real website", "name", rec.Name, "website", cleaned)
			continue
		}
		rec.Website = ""
		rec.Industry = industry
		result.Records = append(result.Records, rec)
		result.Kept++
	}
	return result
}

// processListing navigates to one listing and extracts its fields, recovering
// the session once if the browser died underneath us.
func (o *Orchestrator) processListing(ctx context.Context, industry, url string) (model.BusinessRecord, bool) {
	for attempt := 0; attempt < 2; attempt++ {
		err := o.session.Navigate(ctx, url)
		if err == nil {
			o.sleep(o.cfg.RandomDelay())
			rec := o.extractFn(ctx, o.session.Pane(), url)

			if o.session.DetectBlock(ctx) {
				log.Warn("block signal after extraction, continuing", "industry", industry, "url", url)
			}
			if noteErr := o.session.NoteProcessed(ctx); noteErr != nil {
				log.Error("session rotation failed", "err", noteErr)
			}
			return rec, true
		}

		if browser.IsSessionError(err) && attempt == 0 {
			log.Warn("session lost mid-listing, recovering", "url", url, "err", err)
			if recErr := o.session.Recover(ctx, err); recErr != nil {
				log.Error("session recovery failed", "err", recErr)
				return model.BusinessRecord{}, false
			}
			continue
		}
		log.Warn("skipping listing", "url", url, "err", err)
		return model.BusinessRecord{}, false
	}
	return model.BusinessRecord{}, false
}

func sentinelToEmpty(v string) string {
	if v == model.NotFound {
		return ""
	}
	return v
}

// Analysis flattens the run telemetry into the workbook's metric/value rows.
func Analysis(results []model.IndustryRunResult, started time.Time) []workbook.AnalysisRow {
	rows := []workbook.AnalysisRow{
		{Metric: "Run started", Value: started.Format(time.RFC3339)},
		{Metric: "Overall duration", Value: time.Since(started).Round(time.Second).String()},
		{Metric: "Industries", Value: fmt.Sprintf("%d", len(results))},
	}
	for _, r := range results {
		prefix := r.Industry
		rows = append(rows,
			workbook.AnalysisRow{Metric: prefix + ": found", Value: fmt.Sprintf("%d", r.Found)},
			workbook.AnalysisRow{Metric: prefix + ": processed", Value: fmt.Sprintf("%d", r.Processed)},
			workbook.AnalysisRow{Metric: prefix + ": kept", Value: fmt.Sprintf("%d", r.Kept)},
			workbook.AnalysisRow{Metric: prefix + ": filtered", Value: fmt.Sprintf("%d", r.Filtered)},
			workbook.AnalysisRow{Metric: prefix + ": duration", Value: r.Duration().Round(time.Second).String()},
		)
		if r.Err != "" {
			rows = append(rows, workbook.AnalysisRow{Metric: prefix + ": error", Value: r.Err})
		}
	}
	return rows
}

// Collect flattens the per-industry results into the final record sequence,
// preserving industry order then discovery order.
func Collect(results []model.IndustryRunResult) []model.BusinessRecord {
	var records []model.BusinessRecord
	for _, r := range results {
		records = append(records, r.Records...)
	}
	return records
}
