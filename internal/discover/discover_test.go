package discover

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mapleads/internal/config"
)

// snapshotPane replays a fixed sequence of anchor-query results, one snapshot
// per discovery attempt. Scroll stimuli report a present feed.
type snapshotPane struct {
	snapshots [][]string
	failAt    map[int]bool // attempt numbers whose query errors
	calls     int
}

func (p *snapshotPane) Eval(_ context.Context, js string, out any) error {
	if b, ok := out.(*bool); ok {
		*b = true // feed present, scroll succeeded
		return nil
	}
	hrefs, ok := out.(*[]string)
	if !ok {
		return nil
	}
	p.calls++
	if p.failAt[p.calls] {
		return errors.New("dom query failed")
	}
	if p.calls <= len(p.snapshots) {
		*hrefs = p.snapshots[p.calls-1]
	}
	return nil
}

func newTestDiscoverer() *Discoverer {
	d := New(&config.Config{DelayMin: time.Millisecond, DelayMax: time.Millisecond})
	d.sleep = func(time.Duration) {}
	return d
}

func TestDiscoverStopsOnStagnation(t *testing.T) {
	// {A,B} then {B,C} then three empty attempts: stop at the 3rd trailing
	// empty with {A,B,C}, well inside the attempt budget of 10.
	pane := &snapshotPane{snapshots: [][]string{
		{"https://maps.test/place/A", "https://maps.test/place/B"},
		{"https://maps.test/place/B", "https://maps.test/place/C"},
		{}, {}, {},
		{"https://maps.test/place/D"}, // never reached
	}}

	got := newTestDiscoverer().Discover(context.Background(), pane, 10)

	assert.Equal(t, []string{
		"https://maps.test/place/A",
		"https://maps.test/place/B",
		"https://maps.test/place/C",
	}, got)
	assert.Equal(t, 5, pane.calls)
}

func TestDiscoverIdempotentUnderDuplicates(t *testing.T) {
	// The same anchors on every attempt never grow the set.
	same := []string{"https://maps.test/place/A", "https://maps.test/place/B"}
	pane := &snapshotPane{snapshots: [][]string{same, same, same, same, same}}

	got := newTestDiscoverer().Discover(context.Background(), pane, 10)

	assert.Equal(t, same, got)
	// First attempt grows, then stagnation fires on the 4th attempt.
	assert.Equal(t, 4, pane.calls)
}

func TestDiscoverExhaustsAttemptBudget(t *testing.T) {
	// Growth on every attempt: run the full budget.
	pane := &snapshotPane{snapshots: [][]string{
		{"https://maps.test/place/1"},
		{"https://maps.test/place/2"},
		{"https://maps.test/place/3"},
	}}
	got := newTestDiscoverer().Discover(context.Background(), pane, 3)
	assert.Len(t, got, 3)
	assert.Equal(t, 3, pane.calls)
}

func TestDiscoverTerminatesWhenAlwaysEmpty(t *testing.T) {
	pane := &snapshotPane{snapshots: [][]string{{}, {}, {}, {}, {}, {}, {}, {}}}
	got := newTestDiscoverer().Discover(context.Background(), pane, 8)
	assert.Empty(t, got)
	assert.Equal(t, 3, pane.calls)
}

func TestDiscoverTreatsQueryErrorAsEmpty(t *testing.T) {
	pane := &snapshotPane{
		snapshots: [][]string{
			{"https://maps.test/place/A"},
			nil, // errors
			{"https://maps.test/place/B"},
		},
		failAt: map[int]bool{2: true},
	}
	got := newTestDiscoverer().Discover(context.Background(), pane, 5)
	assert.True(t, strings.HasSuffix(got[0], "/A"))
	assert.True(t, strings.HasSuffix(got[1], "/B"))
}

func TestNormalizeHref(t *testing.T) {
	assert.Equal(t, "https://www.google.com/maps/place/X", normalizeHref("/maps/place/X"))
	assert.Equal(t, "https://maps.test/place/A", normalizeHref(" https://maps.test/place/A "))
	assert.Equal(t, "", normalizeHref(""))
	assert.Equal(t, "", normalizeHref("not a url"))
}
