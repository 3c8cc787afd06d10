// Package discover drives the scroll/collect loop against a maps search
// results panel. Discovery is best-effort by design: it trades completeness
// for a bounded wall clock, stopping early once scrolling stops surfacing new
// listings.
package discover

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"mapleads/internal/config"
	"mapleads/internal/extract"
)

// Consecutive attempts without growth before scrolling escalates, and before
// discovery gives up entirely.
const (
	escalateAfter  = 2
	terminateAfter = 3
)

// Scroll stimuli, gentlest first. The wheel simulation targets the results
// feed; the keyboard variant pages harder; the window scroll is the fallback
// when no feed element exists at all.
const (
	wheelScrollJS = `(() => {
		const feed = document.querySelector('div[role="feed"]');
		if (!feed) return false;
		feed.dispatchEvent(new WheelEvent('wheel', {deltaY: 600, bubbles: true}));
		feed.scrollBy(0, feed.offsetHeight);
		return true;
	})()`

	aggressiveScrollJS = `(() => {
		const feed = document.querySelector('div[role="feed"]');
		if (!feed) return false;
		feed.dispatchEvent(new KeyboardEvent('keydown', {key: 'PageDown', bubbles: true}));
		feed.dispatchEvent(new WheelEvent('wheel', {deltaY: 2000, bubbles: true}));
		feed.scrollTo(0, feed.scrollHeight);
		return true;
	})()`

	pageScrollJS = `(() => {
		window.scrollTo(0, document.body.scrollHeight);
		return true;
	})()`
)

// Alternative anchor selectors for listing links; results are unioned.
const listingAnchorsJS = `(() => {
	const selectors = [
		'a.hfpxzc',
		'div[role="feed"] a[href*="/maps/place/"]',
		'a[href*="/maps/place/"]'
	];
	const seen = new Set();
	const out = [];
	for (const sel of selectors) {
		for (const a of document.querySelectorAll(sel)) {
			const href = a.href || a.getAttribute('href') || '';
			if (!href || seen.has(href)) continue;
			seen.add(href);
			out.push(href);
		}
	}
	return out;
})()`

// Discoverer accumulates deduplicated listing URLs from a live results pane.
type Discoverer struct {
	cfg   *config.Config
	sleep func(time.Duration)
}

func New(cfg *config.Config) *Discoverer {
	return &Discoverer{cfg: cfg, sleep: time.Sleep}
}

// Discover scrolls the results pane up to maxAttempts times and returns the
// accumulated listing URLs in insertion order. It never errors: a failed DOM
// query counts as an attempt with zero new URLs.
func (d *Discoverer) Discover(ctx context.Context, pane extract.Pane, maxAttempts int) []string {
	seen := make(map[string]struct{})
	var ordered []string
	stale := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		d.sleep(d.cfg.RandomDelay())
		d.scroll(ctx, pane, stale >= escalateAfter)
		d.sleep(d.cfg.RandomDelay())

		hrefs, err := d.listingHrefs(ctx, pane)
		if err != nil {
			log.Warn("listing query failed, counting as empty attempt", "attempt", attempt, "err", err)
		}

		grew := false
		for _, href := range hrefs {
			href = normalizeHref(href)
			if href == "" {
				continue
			}
			if _, dup := seen[href]; dup {
				continue
			}
			seen[href] = struct{}{}
			ordered = append(ordered, href)
			grew = true
		}

		if grew {
			stale = 0
			log.Debug("discovery progress", "attempt", attempt, "total", len(ordered))
			continue
		}
		stale++
		if stale >= terminateAfter {
			log.Info("discovery stagnated, stopping early", "attempt", attempt, "total", len(ordered))
			break
		}
	}
	return ordered
}

func (d *Discoverer) scroll(ctx context.Context, pane extract.Pane, aggressive bool) {
	js := wheelScrollJS
	if aggressive {
		js = aggressiveScrollJS
	}
	var hitFeed bool
	if err := pane.Eval(ctx, js, &hitFeed); err != nil {
		log.Debug("scroll stimulus failed", "err", err)
		return
	}
	if !hitFeed {
		// No results panel in the DOM: scroll the whole page instead.
		var ok bool
		if err := pane.Eval(ctx, pageScrollJS, &ok); err != nil {
			log.Debug("page scroll failed", "err", err)
		}
	}
}

func (d *Discoverer) listingHrefs(ctx context.Context, pane extract.Pane) ([]string, error) {
	var hrefs []string
	if err := pane.Eval(ctx, listingAnchorsJS, &hrefs); err != nil {
		return nil, err
	}
	return hrefs, nil
}

// normalizeHref resolves relative listing links against the mapping service
// origin and drops anything that still fails to parse.
func normalizeHref(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "/") {
		href = "https://www.google.com" + href
	}
	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.String()
}
