package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadIndustries(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file degrades to default", func(t *testing.T) {
		got := LoadIndustries(filepath.Join(dir, "nope.txt"))
		assert.Equal(t, []string{"restaurant"}, got)
	})

	t.Run("trims and skips blanks, keeps file order", func(t *testing.T) {
		path := filepath.Join(dir, "industries.txt")
		require.NoError(t, os.WriteFile(path, []byte("  bakery \n\nfrisør\nrørlegger\n \n"), 0o644))
		got := LoadIndustries(path)
		assert.Equal(t, []string{"bakery", "frisør", "rørlegger"}, got)
	})

	t.Run("blank-only file degrades to default", func(t *testing.T) {
		path := filepath.Join(dir, "blank.txt")
		require.NoError(t, os.WriteFile(path, []byte("\n  \n"), 0o644))
		assert.Equal(t, []string{"restaurant"}, LoadIndustries(path))
	})
}

func TestLoadProxies(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file yields empty pool", func(t *testing.T) {
		pool := LoadProxies(filepath.Join(dir, "nope.txt"))
		assert.Equal(t, 0, pool.Len())
		_, ok := pool.Pick()
		assert.False(t, ok)
	})

	t.Run("parses entries and skips comments", func(t *testing.T) {
		path := filepath.Join(dir, "proxies.txt")
		content := "# pool A\n10.0.0.1:8080\n10.0.0.2:8080:user:pass\nbadline\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		pool := LoadProxies(path)
		require.Equal(t, 2, pool.Len())

		ep, ok := pool.Pick()
		require.True(t, ok)
		assert.Contains(t, []string{"10.0.0.1:8080", "10.0.0.2:8080"}, ep.Addr())
	})
}

func TestRandomDelayBounds(t *testing.T) {
	cfg := &Config{DelayMin: 100 * time.Millisecond, DelayMax: 200 * time.Millisecond}
	for i := 0; i < 50; i++ {
		d := cfg.RandomDelay()
		assert.GreaterOrEqual(t, d, cfg.DelayMin)
		assert.Less(t, d, cfg.DelayMax)
	}

	// Degenerate bounds collapse to the minimum.
	cfg = &Config{DelayMin: 100 * time.Millisecond, DelayMax: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, cfg.RandomDelay())
}

func TestApplyFastTest(t *testing.T) {
	cfg := &Config{MaxScrollTries: 25}
	cfg.ApplyFastTest()
	assert.True(t, cfg.FastTest)
	assert.Equal(t, 3, cfg.MaxScrollTries)
	assert.Equal(t, 5, cfg.ListingCap)
}

func TestSearchURL(t *testing.T) {
	cfg := &Config{SearchLat: 59.9139, SearchLng: 10.7522, Zoom: 14}
	got := cfg.SearchURL("thai restaurant")
	assert.Contains(t, got, "https://www.google.com/maps/search/thai+restaurant/@")
	assert.Contains(t, got, "14z")
}
